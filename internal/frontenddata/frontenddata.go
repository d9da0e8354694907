// Package frontenddata holds the mutable per-tuner tuning intent, PID
// filter table, and latest signal monitor snapshot.
package frontenddata

import "github.com/mpostema/dvbstreamer/internal/dvbdev"

// MaxPIDs is the size of the dense PID table (13-bit PID space).
const MaxPIDs = 8192

// Polarization selects the LNB supply voltage on satellite links.
type Polarization int

const (
	PolNone Polarization = iota
	PolHorizontal
	PolVertical
	PolLeft
	PolRight
)

// TuningDescriptor is the logical tuning request, shared by all delivery
// system families; only the fields relevant to the active family are used.
type TuningDescriptor struct {
	DeliverySystem dvbdev.DeliverySystemID
	FrequencyKHz   uint32

	// Satellite fields.
	Polarization    Polarization
	LNBBand         int // 0 = low band, 1 = high band
	OrbitalPosition int
	DiseqcCommitted int
	DiseqcUncommit  int
	SymbolRateSat   uint32
	Rolloff         string
	Pilot           string
	ModulationSat   string
	FECSat          string

	// Terrestrial fields.
	BandwidthHz       uint32
	TransmissionMode  string
	GuardInterval     string
	Hierarchy         string
	PLPID             int
	ModulationTerr    string

	// Cable fields.
	SymbolRateCable uint32
	ModulationCable string
	FECCable        string
}

// Equal reports whether two descriptors describe the same physical tune,
// used to decide whether a re-tune is needed on a PID-only change.
func (d TuningDescriptor) Equal(o TuningDescriptor) bool {
	return d == o
}

// PidEntry is the per-PID bookkeeping: desired/opened state, packet and
// continuity-counter-error counts, and whether the PID carries a PMT.
type PidEntry struct {
	Desired      bool
	Opened       bool
	PacketCount  uint64
	CCErrorCount uint64
	IsPMT        bool
	lastCC       uint8
	haveCC       bool
}

// PidTable is the dense MAX_PIDS mapping plus a single changed flag
// summarizing any desired/opened divergence.
type PidTable struct {
	entries [MaxPIDs]PidEntry
	changed bool
}

// SetDesired marks pid as desired or not desired, raising the changed flag
// on any actual transition.
func (t *PidTable) SetDesired(pid uint16, desired bool) {
	if int(pid) >= MaxPIDs {
		return
	}
	e := &t.entries[pid]
	if e.Desired != desired {
		e.Desired = desired
		t.changed = true
	}
}

// ClearAllDesired marks every PID undesired, used by a stream-string "none".
func (t *PidTable) ClearAllDesired() {
	for i := range t.entries {
		if t.entries[i].Desired {
			t.entries[i].Desired = false
			t.changed = true
		}
	}
}

// SetAllDesired marks every PID 0..MAX_PIDS-1 desired, the "all" literal.
func (t *PidTable) SetAllDesired() {
	for i := range t.entries {
		if !t.entries[i].Desired {
			t.entries[i].Desired = true
			t.changed = true
		}
	}
}

// Changed reports the table-changed flag.
func (t *PidTable) Changed() bool { return t.changed }

// ClearChanged resets the changed flag, called once updatePIDFilters has
// reconciled every PID.
func (t *PidTable) ClearChanged() { t.changed = false }

// Entry returns a copy of the bookkeeping for pid.
func (t *PidTable) Entry(pid uint16) PidEntry {
	if int(pid) >= MaxPIDs {
		return PidEntry{}
	}
	return t.entries[pid]
}

// ShouldOpen reports desired && !opened — the updatePIDFilters open predicate.
func (t *PidTable) ShouldOpen(pid uint16) bool {
	e := &t.entries[pid]
	return e.Desired && !e.Opened
}

// ShouldClose reports opened && !desired — the updatePIDFilters close predicate.
func (t *PidTable) ShouldClose(pid uint16) bool {
	e := &t.entries[pid]
	return e.Opened && !e.Desired
}

// MarkOpened flips opened after a successful demux open/add.
func (t *PidTable) MarkOpened(pid uint16, opened bool) {
	t.entries[pid].Opened = opened
}

// CloseAllDesired marks every currently-opened PID undesired and raises the
// changed flag, used by teardown and by the close-all-PIDs step of a re-tune.
func (t *PidTable) CloseAllDesired() {
	for i := range t.entries {
		if t.entries[i].Opened {
			t.entries[i].Desired = false
			t.changed = true
		}
	}
}

// RecordPacket updates packet/CC-error counters for a single 188-byte TS
// packet already known to carry pid, given its continuity-counter nibble.
func (t *PidTable) RecordPacket(pid uint16, cc uint8, hasPayload bool) {
	if int(pid) >= MaxPIDs {
		return
	}
	e := &t.entries[pid]
	e.PacketCount++
	if e.haveCC {
		expected := (e.lastCC + 1) & 0x0f
		if hasPayload && cc != expected {
			e.CCErrorCount++
		}
	}
	e.lastCC = cc
	e.haveCC = true
}

// MarkPMT records that pid carries a Program Map Table.
func (t *PidTable) MarkPMT(pid uint16) {
	if int(pid) < MaxPIDs {
		t.entries[pid].IsPMT = true
	}
}

// MonitorSnapshot is the latest signal-quality sample.
type MonitorSnapshot struct {
	StatusBits        uint32
	Strength0To240    uint16
	SNR0To15          uint16
	BER               uint32
	UncorrectedBlocks uint32
}

// Locked reports whether FE_HAS_LOCK is set in the snapshot.
func (m MonitorSnapshot) Locked() bool {
	return m.StatusBits&dvbdev.FEHasLock != 0
}

// Data is the per-frontend mutable state: tuning intent, PID table, and
// monitor snapshot, plus the dirty flag that decides whether the next
// update must re-tune.
type Data struct {
	Tuning  TuningDescriptor
	Pids    PidTable
	Monitor MonitorSnapshot
	dirty   bool
}

// Dirty reports whether the tuning descriptor changed since the last clear.
func (d *Data) Dirty() bool { return d.dirty }

// ClearDirty resets the dirty flag once a re-tune has started.
func (d *Data) ClearDirty() { d.dirty = false }

// SetTuning replaces the tuning descriptor, raising dirty on any change.
func (d *Data) SetTuning(t TuningDescriptor) {
	if !d.Tuning.Equal(t) {
		d.dirty = true
	}
	d.Tuning = t
}

// Reset reinitializes FrontendData, used by teardown.
func (d *Data) Reset() {
	*d = Data{}
}
