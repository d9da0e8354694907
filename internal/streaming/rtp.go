package streaming

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/mpostema/dvbstreamer/internal/logging"
)

// rtpHeaderByte0 is byte 0 ("V=2, P=0, X=0, CC=0") and rtpPayloadType is
// byte 1 ("M=0, PT=33 MP2T") of every RTP header this sink emits.
const (
	rtpHeaderByte0 = 0x80
	rtpPayloadType = 33
)

// sndbufMultiplier grows the socket's send buffer to 20x the OS default,
// giving the sender room to absorb scheduling jitter without dropping.
const sndbufMultiplier = 20

// rtpSocketTTL is the IP TTL set on the RTP/RTCP socket, conventional for
// streaming traffic that may cross routed hops toward the client.
const rtpSocketTTL = 32

// RTPSink streams TS buffers framed with an RTP header over UDP, with an
// accompanying RTCP sender-report goroutine.
type RTPSink struct {
	logger logging.Logger

	mu   sync.Mutex
	conn *ipv4.PacketConn
	udp  *net.UDPConn

	rtcp *rtcpReporter
}

// NewRTPSink builds an RTP/RTCP sink.
func NewRTPSink(logger logging.Logger) *RTPSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &RTPSink{logger: logger}
}

// Start opens the UDP socket and grows its send buffer.
func (s *RTPSink) Start(client *ClientDescriptor) error {
	udp, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return fmt.Errorf("rtp: listen udp: %w", err)
	}

	if err := udp.SetWriteBuffer(defaultSndbuf() * sndbufMultiplier); err != nil {
		s.logger.Debug("rtp: grow sndbuf failed", logging.ErrField(err))
	}

	conn := ipv4.NewPacketConn(udp)
	if err := conn.SetTTL(rtpSocketTTL); err != nil {
		s.logger.Debug("rtp: set ttl failed", logging.ErrField(err))
	}

	s.mu.Lock()
	s.udp = udp
	s.conn = conn
	s.mu.Unlock()

	s.rtcp = newRTCPReporter(udp, client, s.logger)
	s.rtcp.start()
	return nil
}

// WriteDataToOutputDevice prefixes payload with a stamped RTP header and
// sends it with MSG_DONTWAIT. On send failure the client is marked
// self-destructing (once).
func (s *RTPSink) WriteDataToOutputDevice(payload []byte, client *ClientDescriptor, seq uint16, timestamp90kHz uint32) error {
	frame := make([]byte, rtpHeaderSize+len(payload))
	frame[0] = rtpHeaderByte0
	frame[1] = rtpPayloadType
	binary.BigEndian.PutUint16(frame[2:4], seq)
	binary.BigEndian.PutUint32(frame[4:8], timestamp90kHz)
	binary.BigEndian.PutUint32(frame[8:12], client.SSRC)
	copy(frame[rtpHeaderSize:], payload)

	s.mu.Lock()
	udp := s.udp
	s.mu.Unlock()
	if udp == nil {
		return fmt.Errorf("rtp sink not started")
	}

	if err := sendDontWait(udp, frame, client.RTPAddr); err != nil {
		if !client.ShouldDestruct() {
			client.SelfDestruct()
		}
		return fmt.Errorf("rtp send: %w", err)
	}
	s.rtcp.packetCount.Add(1)
	s.rtcp.octetCount.Add(uint32(len(payload)))
	return nil
}

// sendDontWait issues sendto(2) with MSG_DONTWAIT so a client that can't
// keep up never stalls the sender goroutine behind a full socket buffer.
func sendDontWait(udp *net.UDPConn, frame []byte, dst *net.UDPAddr) error {
	ip4 := dst.IP.To4()
	if ip4 == nil {
		return fmt.Errorf("rtp: destination %s is not IPv4", dst.IP)
	}
	var sa unix.SockaddrInet4
	sa.Port = dst.Port
	copy(sa.Addr[:], ip4)

	rawConn, err := udp.SyscallConn()
	if err != nil {
		return fmt.Errorf("rtp: raw conn: %w", err)
	}

	// A single attempt only: returning true unconditionally tells the
	// poller not to park the goroutine waiting for the fd to become
	// writable again, so EAGAIN surfaces immediately as an ordinary send
	// failure instead of blocking behind a full socket buffer.
	var sendErr error
	writeErr := rawConn.Write(func(fd uintptr) bool {
		sendErr = unix.Sendto(int(fd), frame, unix.MSG_DONTWAIT, &sa)
		return true
	})
	if writeErr != nil {
		return fmt.Errorf("rtp: sendto: %w", writeErr)
	}
	return sendErr
}

// Stop closes the UDP socket and the RTCP reporter goroutine.
func (s *RTPSink) Stop() {
	if s.rtcp != nil {
		s.rtcp.stop()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.udp != nil {
		_ = s.udp.Close()
	}
}

func defaultSndbuf() int {
	const defaultUDPSndbuf = 212992 // Linux net.core.wmem_default historical value
	return defaultUDPSndbuf
}

// rtcpReporter emits RTCP sender-report packets on its own cadence,
// independent of the RTP data loop.
type rtcpReporter struct {
	conn   *net.UDPConn
	client *ClientDescriptor
	logger logging.Logger
	stopCh chan struct{}
	doneCh chan struct{}

	packetCount atomic.Uint32
	octetCount  atomic.Uint32
}

func newRTCPReporter(conn *net.UDPConn, client *ClientDescriptor, logger logging.Logger) *rtcpReporter {
	return &rtcpReporter{conn: conn, client: client, logger: logger, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
}

const rtcpSenderReportInterval = 5 * time.Second

func (r *rtcpReporter) start() {
	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(rtcpSenderReportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				if err := r.sendReport(); err != nil {
					r.logger.Debug("rtcp send failed", logging.ErrField(err))
				}
			}
		}
	}()
}

func (r *rtcpReporter) stop() {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	<-r.doneCh
}

// sendReport builds and sends a minimal RTCP SR packet (header + sender
// info, no report blocks — this sink is a source, not a mixer).
func (r *rtcpReporter) sendReport() error {
	pkt := make([]byte, 28)
	pkt[0] = 0x80                  // V=2
	pkt[1] = 200                   // PT=200 (SR)
	binary.BigEndian.PutUint16(pkt[2:4], 6) // length in 32-bit words minus one
	binary.BigEndian.PutUint32(pkt[4:8], r.client.SSRC)

	now := time.Now()
	ntpSec := uint32(now.Unix() + 2208988800) // NTP epoch offset from Unix epoch
	ntpFrac := uint32(now.Nanosecond())
	binary.BigEndian.PutUint32(pkt[8:12], ntpSec)
	binary.BigEndian.PutUint32(pkt[12:16], ntpFrac)
	binary.BigEndian.PutUint32(pkt[16:20], 0) // RTP timestamp, best-effort
	binary.BigEndian.PutUint32(pkt[20:24], r.packetCount.Load())
	binary.BigEndian.PutUint32(pkt[24:28], r.octetCount.Load())

	_, err := r.conn.WriteToUDP(pkt, r.client.RTCPAddr)
	return err
}
