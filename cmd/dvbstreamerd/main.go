// Command dvbstreamerd is the DVB streaming daemon: it enumerates local
// DVB adapters, exposes an HTTP control plane to tune frontends and start
// RTP streaming sessions, and optionally serves a monitor/mDNS surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mpostema/dvbstreamer/internal/config"
	"github.com/mpostema/dvbstreamer/internal/enumeration"
	"github.com/mpostema/dvbstreamer/internal/frontend"
	"github.com/mpostema/dvbstreamer/internal/frontenddata"
	"github.com/mpostema/dvbstreamer/internal/logging"
	"github.com/mpostema/dvbstreamer/internal/mdns"
	"github.com/mpostema/dvbstreamer/internal/monitor"
	"github.com/mpostema/dvbstreamer/internal/streaming"
)

func main() {
	const defaultConfigPath = "config.json"

	persisted, err := config.LoadOrCreate(defaultConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Parse(os.Args[1:], os.LookupEnv, persisted)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse config: %v\n", err)
		os.Exit(1)
	}
	if err := config.Save(cfg.ConfigPath, config.PersistentFromCLI(cfg)); err != nil {
		fmt.Fprintf(os.Stderr, "save config: %v\n", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log level: %v\n", err)
		os.Exit(1)
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log format: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(level, format, os.Stdout)
	logging.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	frontends, err := enumeration.BuildFrontends(cfg.DeviceRoot, logger)
	if err != nil {
		logger.Error("enumerate adapters failed", logging.ErrField(err))
		os.Exit(1)
	}
	if len(frontends) == 0 {
		logger.Warn("no frontends discovered", logging.Field{Key: "root", Value: cfg.DeviceRoot})
	}
	for _, fe := range frontends {
		if err := fe.Setup(); err != nil {
			logger.Warn("frontend setup failed", logging.FeIDField(fe.FeID()), logging.ErrField(err))
			continue
		}
		fe.SetWaitOnLockTimeout(cfg.WaitOnLock())
		fe.SetDVRBufferSizeMB(cfg.DVRBufferSizeMB)
		loadFrontendXML(fe, logger)
	}

	hub := monitor.NewHub()

	var announcer *mdns.Announcer
	if cfg.MDNSEnabled {
		announcer = mdns.NewAnnouncer(logger)
		defer announcer.Close()
		_, portStr, _ := net.SplitHostPort(cfg.ListenAddr)
		port, _ := strconv.Atoi(portStr)
		for _, fe := range frontends {
			announcer.Announce(fe.FeID(), fmt.Sprintf("dvbstreamerd-%d", fe.FeID()), fe.Capabilities(), port)
		}
	}

	srv := newServer(frontends, hub, logger)

	mux := http.NewServeMux()
	srv.registerHandlers(mux)
	if cfg.MonitorAddr != "" {
		monitorMux := http.NewServeMux()
		hub.RegisterHandlers(monitorMux)
		monitorServer := &http.Server{Addr: cfg.MonitorAddr, Handler: monitorMux}
		defer monitorServer.Close()
		go func() {
			logger.Info("monitor listening", logging.Field{Key: "addr", Value: cfg.MonitorAddr})
			if err := monitorServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("monitor exited", logging.ErrField(err))
			}
		}()
	}

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		logger.Info("control plane listening", logging.Field{Key: "addr", Value: cfg.ListenAddr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("control plane exited", logging.ErrField(err))
		}
	}()

	go srv.reportLoop(ctx, hub)

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	for _, fe := range frontends {
		saveFrontendXML(fe, logger)
		fe.Teardown()
	}
}

// frontendXMLPath is the on-disk location of one frontend's persisted
// tuning limits and transformation table, next to the JSON config.
func frontendXMLPath(feID int) string {
	return fmt.Sprintf("frontend%d.xml", feID)
}

func loadFrontendXML(fe *frontend.Frontend, logger logging.Logger) {
	data, err := os.ReadFile(frontendXMLPath(fe.FeID()))
	if err != nil {
		return
	}
	if err := fe.FromXML(data); err != nil {
		logger.Warn("load frontend xml failed", logging.FeIDField(fe.FeID()), logging.ErrField(err))
	}
}

func saveFrontendXML(fe *frontend.Frontend, logger logging.Logger) {
	data, err := fe.ToXML()
	if err != nil {
		logger.Warn("render frontend xml failed", logging.FeIDField(fe.FeID()), logging.ErrField(err))
		return
	}
	if err := os.WriteFile(frontendXMLPath(fe.FeID()), data, 0o644); err != nil {
		logger.Warn("save frontend xml failed", logging.FeIDField(fe.FeID()), logging.ErrField(err))
	}
}

// server binds the HTTP control plane to the discovered frontends and
// their active streaming sessions.
type server struct {
	logger    logging.Logger
	frontends map[int]*frontend.Frontend

	mu       sync.Mutex
	sessions map[int]*streaming.StreamThreadBase
}

func newServer(frontends []*frontend.Frontend, hub *monitor.Hub, logger logging.Logger) *server {
	byID := make(map[int]*frontend.Frontend, len(frontends))
	for _, fe := range frontends {
		byID[fe.FeID()] = fe
	}
	return &server{logger: logger, frontends: byID, sessions: make(map[int]*streaming.StreamThreadBase)}
}

func (s *server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/frontends", s.handleList)
	mux.HandleFunc("/frontends/", s.handleFrontend)
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		FeID  int    `json:"feid"`
		State string `json:"state"`
	}
	out := make([]entry, 0, len(s.frontends))
	for id, fe := range s.frontends {
		out = append(out, entry{FeID: id, State: fe.State().String()})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// handleFrontend dispatches "/frontends/{feid}/{action}", where action is
// one of tune, stop, or status.
func (s *server) handleFrontend(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/frontends/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	feID, err := strconv.Atoi(parts[0])
	if err != nil {
		http.Error(w, "bad frontend id", http.StatusBadRequest)
		return
	}
	fe, ok := s.frontends[feID]
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch parts[1] {
	case "tune":
		s.handleTune(w, r, fe)
	case "stop":
		s.handleStop(w, r, fe)
	case "status":
		s.handleStatus(w, fe)
	default:
		http.NotFound(w, r)
	}
}

// handleTune accepts the tuning query string verbatim in the request's own
// query (freq=...&msys=...&pids=...&dest=host:port[&method=SETUP|PLAY]),
// tunes the frontend, and — unless method=SETUP — launches an RTP
// streaming worker toward dest.
func (s *server) handleTune(w http.ResponseWriter, r *http.Request, fe *frontend.Frontend) {
	query := r.URL.RawQuery
	method := frontenddata.ParseMethod(r.URL.Query().Get("method"))

	if err := fe.ParseStreamString(query, method); err != nil {
		http.Error(w, fmt.Sprintf("parse stream string: %v", err), http.StatusBadRequest)
		return
	}
	if _, err := fe.Update(); err != nil {
		http.Error(w, fmt.Sprintf("tune: %v", err), http.StatusInternalServerError)
		return
	}

	if method == frontenddata.MethodSetup {
		w.WriteHeader(http.StatusOK)
		return
	}

	dest := r.URL.Query().Get("dest")
	if dest == "" {
		http.Error(w, "missing dest=host:port", http.StatusBadRequest)
		return
	}
	addr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		http.Error(w, fmt.Sprintf("resolve dest: %v", err), http.StatusBadRequest)
		return
	}

	client := streaming.NewClientDescriptor(addr, sessionSSRC(fe.FeID()))
	sink := streaming.NewRTPSink(s.logger)
	thread := streaming.NewStreamThreadBase("rtp", fe, sink, client, s.logger)

	s.mu.Lock()
	if old, ok := s.sessions[fe.FeID()]; ok {
		old.Stop()
	}
	s.sessions[fe.FeID()] = thread
	s.mu.Unlock()

	go thread.Run()
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request, fe *frontend.Frontend) {
	s.mu.Lock()
	thread, ok := s.sessions[fe.FeID()]
	delete(s.sessions, fe.FeID())
	s.mu.Unlock()
	if ok {
		thread.Stop()
	}
	fe.Teardown()
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleStatus(w http.ResponseWriter, fe *frontend.Frontend) {
	snap := fe.MonitorSignal()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		FeID     int                          `json:"feid"`
		State    string                       `json:"state"`
		Snapshot frontenddata.MonitorSnapshot `json:"snapshot"`
	}{FeID: fe.FeID(), State: fe.State().String(), Snapshot: snap})
}

// reportLoop samples every tuned frontend's signal quality once per second
// and feeds it into the monitor hub, until ctx is cancelled.
func (s *server) reportLoop(ctx context.Context, hub *monitor.Hub) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for id, fe := range s.frontends {
				if fe.State() != frontend.LockedStreaming && fe.State() != frontend.LockedNoLock {
					continue
				}
				hub.Buffer(id).Report(fe.MonitorSignal())
			}
		}
	}
}

func sessionSSRC(feID int) uint32 {
	return 0xA5000000 | uint32(feID)
}
