package streaming

import (
	"net"
	"os"
	"path/filepath"
	"testing"
)

func TestTSWriterSinkWritesPayloadWithoutHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.ts")
	sink := NewTSWriterSink(path, nil)
	client := NewClientDescriptor(&net.UDPAddr{Port: 1}, 1)

	if err := sink.Start(client); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := sink.WriteDataToOutputDevice([]byte("packetA"), client, 1, 90); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.WriteDataToOutputDevice([]byte("packetB"), client, 2, 180); err != nil {
		t.Fatalf("write: %v", err)
	}
	sink.Stop()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read capture file: %v", err)
	}
	if string(got) != "packetApacketB" {
		t.Fatalf("got %q, want %q", got, "packetApacketB")
	}
}

func TestTSWriterSinkTruncatesOnRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.ts")
	client := NewClientDescriptor(&net.UDPAddr{Port: 1}, 1)

	first := NewTSWriterSink(path, nil)
	if err := first.Start(client); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := first.WriteDataToOutputDevice([]byte("aaaaaaaaaa"), client, 1, 1); err != nil {
		t.Fatalf("write: %v", err)
	}
	first.Stop()

	second := NewTSWriterSink(path, nil)
	if err := second.Start(client); err != nil {
		t.Fatalf("start: %v", err)
	}
	second.Stop()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read capture file: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected truncated file, got %d bytes", len(got))
	}
}
