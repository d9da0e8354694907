package frontenddata

import (
	"github.com/Comcast/gots/packet"
	"github.com/Comcast/gots/psi"
)

// tsPacketSize is the size of one MPEG-TS packet on the wire.
const tsPacketSize = 188

// AddFilterData receives a full TS read buffer (a multiple of 188 bytes)
// and updates per-PID packet/continuity-counter statistics, additionally
// flagging any PID that carries a Program Map Table. PMT detection is
// bookkeeping only — no program table is synthesized or exposed.
func (d *Data) AddFilterData(buf []byte) {
	for off := 0; off+tsPacketSize <= len(buf); off += tsPacketSize {
		var pkt packet.Packet
		copy(pkt[:], buf[off:off+tsPacketSize])

		pid := packet.Pid(&pkt)

		cc := packet.ContinuityCounter(&pkt)
		hasPayload := packet.ContainsPayload(&pkt)
		d.Pids.RecordPacket(uint16(pid), cc, hasPayload)

		if packet.PayloadUnitStartIndicator(&pkt) {
			d.inspectForPMT(&pkt, uint16(pid))
		}
	}
}

// inspectForPMT attempts to parse the packet's payload as a PMT section;
// a successful parse marks pid as carrying a PMT. Any other table (PAT,
// SDT, ...) or a mid-section fragment simply fails to parse and is ignored
// — this is bookkeeping, not full section reassembly.
func (d *Data) inspectForPMT(pkt *packet.Packet, pid uint16) {
	payload, err := packet.Payload(pkt)
	if err != nil || len(payload) == 0 {
		return
	}
	if _, err := psi.NewPMT(payload); err == nil {
		d.Pids.MarkPMT(pid)
	}
}
