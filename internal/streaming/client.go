package streaming

import (
	"net"
	"sync/atomic"
)

// ClientDescriptor holds one remote client's destination and session
// state. Ownership belongs to the control plane; at most one streaming
// worker references it at a time.
type ClientDescriptor struct {
	RTPAddr  *net.UDPAddr
	RTCPAddr *net.UDPAddr
	SSRC     uint32

	selfDestruct atomic.Bool
}

// NewClientDescriptor builds a descriptor for a client reachable at addr,
// deriving the conventional RTCP port (RTP port + 1).
func NewClientDescriptor(addr *net.UDPAddr, ssrc uint32) *ClientDescriptor {
	rtcp := *addr
	rtcp.Port++
	return &ClientDescriptor{RTPAddr: addr, RTCPAddr: &rtcp, SSRC: ssrc}
}

// SelfDestruct marks the client for reaping. Idempotent: only the first
// call has any effect, matching "mark it so; the control plane reaps it."
func (c *ClientDescriptor) SelfDestruct() {
	c.selfDestruct.Store(true)
}

// ShouldDestruct reports whether the client has been marked for reaping.
func (c *ClientDescriptor) ShouldDestruct() bool {
	return c.selfDestruct.Load()
}
