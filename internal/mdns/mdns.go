// Package mdns announces each locally-attached DVB frontend as a
// _dvbstream._tcp service so RTSP/HTTP control planes on the local
// network can discover this streamer without static configuration.
package mdns

import (
	"fmt"
	"io"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/mpostema/dvbstreamer/internal/dvbdev"
	"github.com/mpostema/dvbstreamer/internal/logging"
)

const serviceType = "_dvbstream._tcp"

// Announcer owns one zeroconf registration per announced Frontend.
type Announcer struct {
	logger logging.Logger

	mu      sync.Mutex
	servers map[int]*zeroconf.Server
}

// NewAnnouncer builds an Announcer.
func NewAnnouncer(logger logging.Logger) *Announcer {
	return &Announcer{logger: logging.Named(logger, "mdns"), servers: make(map[int]*zeroconf.Server)}
}

// Announce publishes feID at port, carrying its delivery systems and a
// human name in the TXT record. Registration failures are logged and
// otherwise ignored — mDNS announcement is a discovery convenience, not a
// load-bearing dependency of the streaming pipeline. The returned Closer
// withdraws this specific announcement; on registration failure it is a
// no-op, so callers can defer Close() unconditionally.
func (a *Announcer) Announce(feID int, name string, caps dvbdev.Capabilities, port int) io.Closer {
	instance := fmt.Sprintf("dvb-frontend-%d", feID)
	txt := []string{
		fmt.Sprintf("feid=%d", feID),
		fmt.Sprintf("name=%s", name),
		fmt.Sprintf("delsys=%s", delSysTXT(caps)),
	}

	server, err := zeroconf.Register(instance, serviceType, "local.", port, txt, nil)
	if err != nil {
		a.logger.Warn("mdns announce failed", logging.FeIDField(feID), logging.ErrField(err))
		return noopCloser{}
	}

	a.mu.Lock()
	if old, ok := a.servers[feID]; ok {
		old.Shutdown()
	}
	a.servers[feID] = server
	a.mu.Unlock()

	return &announcement{announcer: a, feID: feID}
}

// announcement withdraws a single feID's announcement on Close.
type announcement struct {
	announcer *Announcer
	feID      int
}

func (a *announcement) Close() error {
	a.announcer.Withdraw(a.feID)
	return nil
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

// Withdraw stops announcing feID.
func (a *Announcer) Withdraw(feID int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.servers[feID]; ok {
		s.Shutdown()
		delete(a.servers, feID)
	}
}

// Close withdraws every announcement.
func (a *Announcer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for feID, s := range a.servers {
		s.Shutdown()
		delete(a.servers, feID)
	}
}

func delSysTXT(caps dvbdev.Capabilities) string {
	out := ""
	for i, sys := range caps.DeliverySys {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", sys)
	}
	return out
}
