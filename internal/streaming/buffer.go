// Package streaming implements the per-client output pipeline: draining
// MPEG-TS packets from a Frontend into fixed-size buffers, stamping RTP
// headers, and dispatching to a network or file sink.
package streaming

// rtpHeaderSize is the fixed 12-byte RTP header every PacketBuffer
// reserves room for, whether or not the active sink uses it.
const rtpHeaderSize = 12

// tsPacketsPerBuffer and tsPacketSize combine to the standard 1316-byte
// RTP payload: 7 MPEG-TS packets of 188 bytes each.
const (
	tsPacketSize       = 188
	tsPacketsPerBuffer = 7
	tsPayloadSize      = tsPacketSize * tsPacketsPerBuffer
)

// PacketBuffer is a fixed-capacity buffer reserving an RTP header prefix.
// Demux reads advance the write cursor. The read cursor is only zeroed by
// Reset; no method advances it, and sends take the whole filled buffer.
type PacketBuffer struct {
	data  []byte
	write int
	read  int
}

// NewPacketBuffer allocates a buffer sized for the RTP header plus one
// batch of TS packets.
func NewPacketBuffer() *PacketBuffer {
	return &PacketBuffer{data: make([]byte, rtpHeaderSize+tsPayloadSize)}
}

// HeaderBytes returns the mutable 12-byte RTP header prefix.
func (b *PacketBuffer) HeaderBytes() []byte { return b.data[:rtpHeaderSize] }

// PayloadCapacity returns how many TS-payload bytes this buffer holds.
func (b *PacketBuffer) PayloadCapacity() int { return tsPayloadSize }

// WriteSlice returns the unwritten tail of the payload region, suitable as
// a read(2) destination from the demux.
func (b *PacketBuffer) WriteSlice() []byte {
	return b.data[rtpHeaderSize+b.write:]
}

// Advance records n freshly-written payload bytes.
func (b *PacketBuffer) Advance(n int) { b.write += n }

// Full reports whether the payload region has been completely filled.
func (b *PacketBuffer) Full() bool { return b.write >= tsPayloadSize }

// Bytes returns the full buffer (header + payload) for a framed send.
func (b *PacketBuffer) Bytes() []byte { return b.data }

// PayloadOnly returns just the TS payload, for sinks that strip the RTP
// header (the TS-writer variant).
func (b *PacketBuffer) PayloadOnly() []byte { return b.data[rtpHeaderSize : rtpHeaderSize+b.write] }

// Reset clears both cursors for reuse.
func (b *PacketBuffer) Reset() {
	b.write = 0
	b.read = 0
}
