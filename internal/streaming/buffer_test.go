package streaming

import "testing"

func TestPacketBufferFillsAndResets(t *testing.T) {
	buf := NewPacketBuffer()
	if buf.Full() {
		t.Fatalf("a fresh buffer must not be full")
	}
	if buf.PayloadCapacity() != tsPayloadSize {
		t.Fatalf("unexpected payload capacity %d", buf.PayloadCapacity())
	}

	chunk := make([]byte, tsPacketSize)
	for i := range chunk {
		chunk[i] = byte(i)
	}

	for i := 0; i < tsPacketsPerBuffer-1; i++ {
		copy(buf.WriteSlice(), chunk)
		buf.Advance(len(chunk))
		if buf.Full() {
			t.Fatalf("buffer filled early after %d packets", i+1)
		}
	}

	copy(buf.WriteSlice(), chunk)
	buf.Advance(len(chunk))
	if !buf.Full() {
		t.Fatalf("expected buffer full after %d packets", tsPacketsPerBuffer)
	}
	if len(buf.PayloadOnly()) != tsPayloadSize {
		t.Fatalf("PayloadOnly length = %d, want %d", len(buf.PayloadOnly()), tsPayloadSize)
	}
	if len(buf.Bytes()) != rtpHeaderSize+tsPayloadSize {
		t.Fatalf("Bytes length = %d, want %d", len(buf.Bytes()), rtpHeaderSize+tsPayloadSize)
	}

	buf.Reset()
	if buf.Full() {
		t.Fatalf("Reset must clear the full state")
	}
}

func TestPacketBufferHeaderBytesIsMutable(t *testing.T) {
	buf := NewPacketBuffer()
	hdr := buf.HeaderBytes()
	if len(hdr) != rtpHeaderSize {
		t.Fatalf("header length = %d, want %d", len(hdr), rtpHeaderSize)
	}
	hdr[0] = 0x80
	if buf.Bytes()[0] != 0x80 {
		t.Fatalf("HeaderBytes must alias the underlying buffer")
	}
}
