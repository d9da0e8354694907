package streaming

import (
	"net"
	"testing"
)

func TestNewClientDescriptorDerivesRTCPPort(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("192.0.2.1"), Port: 5004}
	client := NewClientDescriptor(addr, 0xdeadbeef)

	if client.RTPAddr.Port != 5004 {
		t.Fatalf("RTPAddr.Port = %d, want 5004", client.RTPAddr.Port)
	}
	if client.RTCPAddr.Port != 5005 {
		t.Fatalf("RTCPAddr.Port = %d, want 5005", client.RTCPAddr.Port)
	}
	if client.SSRC != 0xdeadbeef {
		t.Fatalf("SSRC = %x, want deadbeef", client.SSRC)
	}
}

func TestSelfDestructIsIdempotentAndSticky(t *testing.T) {
	client := NewClientDescriptor(&net.UDPAddr{Port: 1}, 1)
	if client.ShouldDestruct() {
		t.Fatalf("a fresh client must not be marked for destruction")
	}
	client.SelfDestruct()
	client.SelfDestruct()
	if !client.ShouldDestruct() {
		t.Fatalf("expected ShouldDestruct true after SelfDestruct")
	}
}
