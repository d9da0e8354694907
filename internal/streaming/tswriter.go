package streaming

import (
	"fmt"
	"os"

	"github.com/mpostema/dvbstreamer/internal/logging"
)

// TSWriterSink writes the raw TS payload (no RTP header) to an output
// file, opened once at Start.
type TSWriterSink struct {
	path   string
	logger logging.Logger
	file   *os.File
}

// NewTSWriterSink builds a file-capture sink writing to path.
func NewTSWriterSink(path string, logger logging.Logger) *TSWriterSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &TSWriterSink{path: path, logger: logger}
}

// Start opens the output file, truncating any previous capture.
func (s *TSWriterSink) Start(client *ClientDescriptor) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("ts writer: open %s: %w", s.path, err)
	}
	s.file = f
	return nil
}

// WriteDataToOutputDevice writes the TS payload only — the RTP header
// that PacketBuffer reserves room for is never written by this variant.
func (s *TSWriterSink) WriteDataToOutputDevice(payload []byte, client *ClientDescriptor, seq uint16, timestamp90kHz uint32) error {
	_, err := s.file.Write(payload)
	if err != nil {
		if !client.ShouldDestruct() {
			client.SelfDestruct()
		}
		return fmt.Errorf("ts writer: write: %w", err)
	}
	return nil
}

// Stop closes the output file.
func (s *TSWriterSink) Stop() {
	if s.file != nil {
		_ = s.file.Close()
	}
}
