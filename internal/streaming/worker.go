package streaming

import (
	"github.com/mpostema/dvbstreamer/internal/logging"
)

// DataSource is the subset of Frontend a streaming worker depends on —
// narrowed to an interface so tests can drive the worker without a real
// device.
type DataSource interface {
	IsDataAvailable() bool
	ReadFullTSPacket(capacity int) ([]byte, bool)
}

// Sink is implemented by each output variant (RTP/RTCP, TS-writer). Start
// is called once per client before the loop begins; WriteDataToOutputDevice
// is called once per filled buffer; Stop releases any sink resources.
type Sink interface {
	Start(client *ClientDescriptor) error
	WriteDataToOutputDevice(payload []byte, client *ClientDescriptor, seq uint16, timestamp90kHz uint32) error
	Stop()
}

// StreamThreadBase owns one goroutine per active client, split into a
// reader (demux -> queue) and a sender (queue -> sink) so a slow client
// cannot stall demux reads. It tracks the RTP sequence counter and
// protocol name; framing specifics live in the sink.
type StreamThreadBase struct {
	Protocol string

	source DataSource
	sink   Sink
	client *ClientDescriptor
	logger logging.Logger
	queue  *packetQueue

	stop     chan struct{}
	readDone chan struct{}
	sendDone chan struct{}
	stopped  chan struct{}

	seq       uint16
	tickCount uint32
}

// NewStreamThreadBase builds a worker bound to one Frontend-like source,
// one sink variant, and one client.
func NewStreamThreadBase(protocol string, source DataSource, sink Sink, client *ClientDescriptor, logger logging.Logger) *StreamThreadBase {
	if logger == nil {
		logger = logging.Default()
	}
	return &StreamThreadBase{
		Protocol: protocol,
		source:   source,
		sink:     sink,
		client:   client,
		logger:   logger,
		queue:    newPacketQueue(QueueConfig{}),
		stop:     make(chan struct{}),
		readDone: make(chan struct{}),
		sendDone: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Run starts the reader and sender goroutines and blocks until both exit
// (via Stop or a self-destructing client). Intended to be launched with
// `go thread.Run()`.
func (t *StreamThreadBase) Run() {
	defer close(t.stopped)

	if err := t.sink.Start(t.client); err != nil {
		t.logger.Warn("sink start failed", logging.Field{Key: "protocol", Value: t.Protocol}, logging.ErrField(err))
		close(t.readDone)
		close(t.sendDone)
		return
	}

	go t.readLoop()
	go t.sendLoop()

	<-t.readDone
	<-t.sendDone
	t.sink.Stop()
}

func (t *StreamThreadBase) readLoop() {
	defer close(t.readDone)
	buf := NewPacketBuffer()

	for {
		select {
		case <-t.stop:
			t.queue.close()
			return
		default:
		}
		if t.client.ShouldDestruct() {
			t.queue.close()
			return
		}

		if !t.source.IsDataAvailable() {
			continue
		}

		chunk, ok := t.source.ReadFullTSPacket(buf.PayloadCapacity())
		if !ok {
			continue
		}
		copy(buf.WriteSlice(), chunk)
		buf.Advance(len(chunk))

		if !buf.Full() {
			continue
		}

		t.seq++
		t.tickCount++
		payload := append([]byte(nil), buf.PayloadOnly()...)
		item := queueItem{payload: payload, seq: t.seq, timestamp: t.tickCount * 90}
		buf.Reset()

		if err := t.queue.enqueue(item, t.stop); err != nil {
			t.queue.close()
			return
		}
	}
}

func (t *StreamThreadBase) sendLoop() {
	defer close(t.sendDone)
	for {
		item, err := t.queue.dequeue()
		if err != nil {
			return
		}
		if err := t.sink.WriteDataToOutputDevice(item.payload, t.client, item.seq, item.timestamp); err != nil {
			t.logger.Warn("write to output device failed", logging.Field{Key: "protocol", Value: t.Protocol}, logging.ErrField(err))
			t.client.SelfDestruct()
		}
		if t.client.ShouldDestruct() {
			return
		}
	}
}

// Stop signals both loops to exit and waits for them to finish.
func (t *StreamThreadBase) Stop() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	t.queue.close()
	<-t.stopped
}
