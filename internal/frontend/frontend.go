// Package frontend implements the per-tuner state machine binding the
// device handles, delivery-system registry, FrontendData, and transform
// into one controller.
package frontend

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/mpostema/dvbstreamer/internal/delivery"
	"github.com/mpostema/dvbstreamer/internal/dvbdev"
	"github.com/mpostema/dvbstreamer/internal/dvbxml"
	"github.com/mpostema/dvbstreamer/internal/frontenddata"
	"github.com/mpostema/dvbstreamer/internal/logging"
	"github.com/mpostema/dvbstreamer/internal/transform"
	"golang.org/x/sys/unix"
)

// State is the controller's coarse lifecycle state.
type State int

const (
	Unopened State = iota
	OpenedIdle
	Tuning
	LockedStreaming
	LockedNoLock
)

func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case OpenedIdle:
		return "opened-idle"
	case Tuning:
		return "tuning"
	case LockedStreaming:
		return "locked-streaming"
	case LockedNoLock:
		return "locked-no-lock"
	default:
		return "unknown"
	}
}

// Paths names the three device nodes backing one tuner.
type Paths struct {
	Frontend string
	Demux    string
	DVR      string
}

const (
	defaultWaitOnLockMS    = 1000
	maxWaitOnLockMS        = 3500
	defaultDVRBufferMB     = 18
	maxDVRBufferMB         = 180
	demuxOpenRetries       = 4
	demuxOpenRetryGapMS    = 20
	postCloseSleepMS       = 5
	lockPollIntervalMS     = 20
	dataAvailablePollMS    = 180
	lockPollShortCircuitMS = 500
)

// Frontend is one tuner's control-and-data pipeline.
type Frontend struct {
	mu sync.Mutex

	feID  int
	paths Paths

	logger logging.Logger

	caps     dvbdev.Capabilities
	registry *delivery.Registry

	fe    *dvbdev.FrontendHandle
	demux *dvbdev.DemuxHandle
	dvr   *dvbdev.DVRHandle

	data      frontenddata.Data
	transform *transform.Transform

	state  State
	tuned  bool
	demuxMu sync.RWMutex

	waitOnLockTimeout time.Duration
	dvrBufferSizeMB   int

	oldAPICallStats bool
	modernStatCalls int

	readBuf []byte
}

// New constructs a Frontend from its device paths without opening anything.
func New(feID int, paths Paths, logger logging.Logger) *Frontend {
	if logger == nil {
		logger = logging.Default()
	}
	return &Frontend{
		feID:              feID,
		paths:             paths,
		logger:            logger.With(logging.FeIDField(feID)),
		transform:         transform.New(),
		waitOnLockTimeout: defaultWaitOnLockMS * time.Millisecond,
		dvrBufferSizeMB:   defaultDVRBufferMB,
		fe:                dvbdev.ClosedFrontendHandle(),
		demux:             dvbdev.ClosedDemuxHandle(),
		dvr:               dvbdev.ClosedDVRHandle(),
		readBuf:           make([]byte, 0, 188*2048),
	}
}

// FeID returns the frontend's small-integer identity.
func (f *Frontend) FeID() int { return f.feID }

// State returns the controller's current coarse state.
func (f *Frontend) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Capabilities returns the immutable, read-once frontend description.
func (f *Frontend) Capabilities() dvbdev.Capabilities {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.caps
}

// SetWaitOnLockTimeout bounds the tune-lock wait, clamped to [0, 3500ms].
func (f *Frontend) SetWaitOnLockTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if d > maxWaitOnLockMS*time.Millisecond {
		d = maxWaitOnLockMS * time.Millisecond
	}
	f.mu.Lock()
	f.waitOnLockTimeout = d
	f.mu.Unlock()
}

// SetDVRBufferSizeMB bounds the demux buffer size, clamped to [0, 180] MiB.
func (f *Frontend) SetDVRBufferSizeMB(mb int) {
	if mb < 0 {
		mb = 0
	}
	if mb > maxDVRBufferMB {
		mb = maxDVRBufferMB
	}
	f.mu.Lock()
	f.dvrBufferSizeMB = mb
	f.mu.Unlock()
}

// Transform exposes the frontend's stream-string mapping table.
func (f *Frontend) Transform() *transform.Transform { return f.transform }

// DeliverySystemCounts tallies this frontend's physical delivery-system
// entries, then applies the transform's masquerade flags exactly as the
// original advertise-as override does: DVBS2 is reported as the cable
// count when advertising as DVB-S2, and DVBC is reported as the
// (pre-override) DVB-S2 count when advertising as DVB-C.
func (f *Frontend) DeliverySystemCounts() dvbdev.DeliverySystemCounts {
	f.mu.Lock()
	physical := dvbdev.CountDeliverySystems(f.caps.DeliverySys)
	f.mu.Unlock()

	advertised := physical
	if f.transform.AdvertisedAsDVBS2() {
		advertised.DVBS2 = physical.DVBC
	}
	if f.transform.AdvertisedAsDVBC() {
		advertised.DVBC = physical.DVBS2
	}
	return advertised
}

// ToXML renders this frontend's persistent configuration — device
// identity, tuning limits, the transformation table, and each registered
// delivery system's own elements — mirroring Frontend::doAddToXML.
func (f *Frontend) ToXML() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := dvbxml.NewDocument()
	doc.AddElement("frontendname", f.caps.Name)
	doc.AddElement("pathname", f.paths.Frontend)
	doc.AddElement("freq", fmt.Sprintf("%d Hz to %d Hz", f.caps.FreqMinHz, f.caps.FreqMaxHz))
	doc.AddElement("symbol", fmt.Sprintf("%d symbols/s to %d symbols/s", f.caps.SymbolRateMin, f.caps.SymbolRateMax))
	doc.AddNumberInput("dvrbuffer", f.dvrBufferSizeMB, 0, maxDVRBufferMB)
	doc.AddNumberInput("waitOnLockTimeout", int(f.waitOnLockTimeout/time.Millisecond), 0, maxWaitOnLockMS)

	f.transform.ToXML(doc)

	if f.registry != nil {
		for i, sys := range f.registry.Systems() {
			sys.ToXML(doc, fmt.Sprintf("deliverySystem%d", i))
		}
	}

	return doc.Marshal("frontend")
}

// FromXML restores tuning limits and the transformation table from a
// document previously produced by ToXML. Device identity and delivery
// system capability are rediscovered by Setup, never overwritten here.
func (f *Frontend) FromXML(data []byte) error {
	doc, err := dvbxml.Parse(data)
	if err != nil {
		return fmt.Errorf("frontend from xml: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.dvrBufferSizeMB = doc.FindNumber("dvrbuffer", f.dvrBufferSizeMB)
	if f.dvrBufferSizeMB > maxDVRBufferMB {
		f.dvrBufferSizeMB = defaultDVRBufferMB
	}
	waitMS := doc.FindNumber("waitOnLockTimeout", int(f.waitOnLockTimeout/time.Millisecond))
	if waitMS > maxWaitOnLockMS {
		waitMS = maxWaitOnLockMS
	}
	f.waitOnLockTimeout = time.Duration(waitMS) * time.Millisecond

	f.transform.FromXML(doc)

	if f.registry != nil {
		for i, sys := range f.registry.Systems() {
			sys.FromXML(doc, fmt.Sprintf("deliverySystem%d", i))
		}
	}
	return nil
}

// setupFrontend performs the Unopened -> Opened-Idle transition: opens the
// frontend read-only long enough to enumerate delivery systems, registers
// one delivery-system module per family present, then closes it again
// (the next tune reopens read-write).
func (f *Frontend) setupFrontend() error {
	fe, err := dvbdev.OpenFrontend(f.paths.Frontend, false)
	if err != nil {
		f.logger.Warn("frontend not found", logging.Field{Key: "path", Value: f.paths.Frontend})
		f.caps = dvbdev.Capabilities{Name: "Not Found"}
		f.state = OpenedIdle
		return nil
	}
	defer fe.Close()

	caps, err := dvbdev.ProbeCapabilities(fe)
	if err != nil {
		return fmt.Errorf("probe capabilities: %w", err)
	}
	f.caps = caps
	f.registry = delivery.NewRegistry(caps, f.logger)
	f.state = OpenedIdle
	return nil
}

// Setup runs setupFrontend if this is the first call, otherwise is a no-op.
func (f *Frontend) Setup() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Unopened {
		return nil
	}
	return f.setupFrontend()
}

// ParseStreamString parses msg (optionally first passed through the
// transform table) into the tuning descriptor and desired PID set.
func (f *Frontend) ParseStreamString(msg string, method frontenddata.Method) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	mapped := f.transform.TransformStreamString(f.feID, msg, method)
	return f.data.ParseStreamString(mapped, method)
}

// Update drives Opened-Idle -> Tuning -> {Locked-Streaming, Locked-NoLock}
// when the tuning descriptor is dirty, and resyncs PID filters either way.
func (f *Frontend) Update() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.data.Dirty() {
		if err := f.retune(); err != nil {
			return false, err
		}
	}

	if f.tuned && f.data.Pids.Changed() {
		f.updatePIDFilters()
	}

	return f.tuned, nil
}

// retune implements "close all PIDs, close demux, close frontend, sleep
// 5ms, reopen frontend read-write, tune" — the full Opened-Idle -> Tuning
// transition triggered by a dirty tuning descriptor.
func (f *Frontend) retune() error {
	f.state = Tuning
	f.closeAllPIDsLocked()
	f.closeDemuxLocked()
	f.closeFrontendLocked()
	time.Sleep(postCloseSleepMS * time.Millisecond)

	start := time.Now()
	fe, err := dvbdev.OpenFrontend(f.paths.Frontend, true)
	if err != nil {
		f.state = OpenedIdle
		return fmt.Errorf("reopen frontend: %w", err)
	}
	f.fe = fe

	f.data.ClearDirty()

	if f.registry == nil {
		f.state = OpenedIdle
		return fmt.Errorf("no delivery systems registered")
	}
	sys := f.registry.Select(f.data.Tuning.DeliverySystem)
	if sys == nil {
		f.state = OpenedIdle
		return fmt.Errorf("no delivery system capable of %v", f.data.Tuning.DeliverySystem)
	}

	if !sys.Tune(f.fe, f.data.Tuning) {
		f.state = OpenedIdle
		return fmt.Errorf("tune failed")
	}

	if err := dvbdev.SetTopBoxSource(f.demux, f.feID); err != nil {
		f.logger.Debug("set-top-box source probe failed", logging.ErrField(err))
	}

	// Open-and-tune already slow: skip the lock poll and report not-locked
	// immediately rather than adding the poll's own latency on top.
	if elapsed := time.Since(start); elapsed >= lockPollShortCircuitMS*time.Millisecond {
		f.logger.Info("not locked yet", logging.Field{Key: "openAndTuneMS", Value: elapsed.Milliseconds()})
		f.tuned = true
		f.state = LockedNoLock
		return nil
	}

	f.waitForLock()
	return nil
}

// waitForLock polls FE_READ_STATUS every 20ms until FE_HAS_LOCK or
// waitOnLockTimeout elapses, seeding an optimistic monitor snapshot on
// success. On timeout, the state transition still succeeds — streaming
// may be attempted, but the monitor will reflect the unlocked status.
func (f *Frontend) waitForLock() {
	deadline := time.Now().Add(f.waitOnLockTimeout)
	for {
		status, err := f.fe.ReadStatus()
		if err == nil && status&dvbdev.FEHasLock != 0 {
			f.tuned = true
			f.state = LockedStreaming
			f.data.Monitor = frontenddata.MonitorSnapshot{
				StatusBits:     status,
				Strength0To240: 100,
				SNR0To15:       8,
			}
			return
		}
		if time.Now().After(deadline) {
			f.tuned = true
			f.state = LockedNoLock
			return
		}
		time.Sleep(lockPollIntervalMS * time.Millisecond)
	}
}

// Teardown implements "Any -> Opened-Idle": close all PIDs, clear the
// tuned flag, close demux and frontend, reinitialize FrontendData, reset
// the transform masquerade flags.
func (f *Frontend) Teardown() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closeAllPIDsLocked()
	f.tuned = false
	f.closeDemuxLocked()
	f.closeFrontendLocked()
	f.data.Reset()
	f.transform.Reset()
	f.state = OpenedIdle
}

func (f *Frontend) closeFrontendLocked() {
	if f.fe != nil {
		_ = f.fe.Close()
	}
}

func (f *Frontend) closeDemuxLocked() {
	f.demuxMu.Lock()
	defer f.demuxMu.Unlock()
	if f.demux != nil {
		_ = f.demux.Close()
	}
}

func (f *Frontend) closeAllPIDsLocked() {
	f.data.Pids.CloseAllDesired()
	f.updatePIDFilters()
}

// updatePIDFilters is a no-op unless tuned and the table-changed flag is
// set; otherwise it makes a single pass over MAX_PIDS closing
// opened-but-undesired PIDs and opening desired-but-unopened ones.
func (f *Frontend) updatePIDFilters() {
	if !f.tuned || !f.data.Pids.Changed() {
		return
	}
	for pid := 0; pid < frontenddata.MaxPIDs; pid++ {
		p := uint16(pid)
		if f.data.Pids.ShouldClose(p) {
			f.closePID(p)
		}
		if f.data.Pids.ShouldOpen(p) {
			f.openPID(p)
		}
	}
	f.data.Pids.ClearChanged()
}

// openPID opens the demux if needed (retrying up to 4 times with a 20ms
// gap), sets the buffer size, and installs either the first PES filter on
// this demux or an additional PID via DMX_ADD_PID.
func (f *Frontend) openPID(pid uint16) {
	f.demuxMu.Lock()
	defer f.demuxMu.Unlock()

	firstOnDemux := !f.demux.Open()
	if firstOnDemux {
		if err := f.openDemuxWithRetry(); err != nil {
			f.logger.Warn("open demux failed", logging.PIDField(pid), logging.ErrField(err))
			return
		}
		bufBytes := uint32(f.dvrBufferSizeMB) * 1024 * 1024
		if err := f.demux.SetBufferSize(bufBytes); err != nil {
			f.logger.Warn("set buffer size failed", logging.ErrField(err))
		}
	}

	var err error
	if firstOnDemux {
		err = f.demux.SetPESFilter(pid)
	} else {
		err = f.demux.AddPID(pid)
	}
	if err != nil {
		f.logger.Warn("open pid failed", logging.PIDField(pid), logging.ErrField(err))
		return
	}
	f.data.Pids.MarkOpened(pid, true)
}

func (f *Frontend) openDemuxWithRetry() error {
	op := func() error {
		d, err := dvbdev.OpenDemux(f.paths.Demux)
		if err != nil {
			return err
		}
		f.demux = d
		return nil
	}
	boff := backoff.NewConstantBackOff(demuxOpenRetryGapMS * time.Millisecond)
	return backoff.Retry(op, backoff.WithMaxRetries(boff, demuxOpenRetries))
}

// closePID issues DMX_REMOVE_PID and logs lifetime packet/CC-error counters.
func (f *Frontend) closePID(pid uint16) {
	f.demuxMu.Lock()
	defer f.demuxMu.Unlock()

	entry := f.data.Pids.Entry(pid)
	if f.demux.Open() {
		if err := f.demux.RemovePID(pid); err != nil {
			f.logger.Warn("remove pid failed", logging.PIDField(pid), logging.ErrField(err))
		}
	}
	f.data.Pids.MarkOpened(pid, false)
	f.logger.Info("pid closed",
		logging.PIDField(pid),
		logging.Field{Key: "packets", Value: entry.PacketCount},
		logging.Field{Key: "cc_errors", Value: entry.CCErrorCount},
	)
}

// MonitorSignal reads FE_READ_STATUS and the signal-quality ioctls,
// preferring the modern stats property path and latching permanently to
// the legacy ioctl path on the first FE_SCALE_NOT_AVAILABLE response.
func (f *Frontend) MonitorSignal() frontenddata.MonitorSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.tuned || !f.fe.Open() {
		return f.data.Monitor
	}

	status, err := f.fe.ReadStatus()
	if err != nil {
		return f.data.Monitor
	}

	var strength, snr uint16
	var ber, unc uint32

	if !f.oldAPICallStats {
		f.modernStatCalls++
		vals, err := f.fe.GetProperties([]uint32{dvbdev.PropSignalStrength, dvbdev.PropCNR, dvbdev.PropErrorBlockCount})
		if err != nil || len(vals) < 3 || vals[0] == 0xffffffff {
			f.oldAPICallStats = true
		} else {
			strength = normalizeLegacyScale(vals[0])
			snr = uint16((vals[1] & 0xffff) * 15 / 0xffff)
			unc = vals[2]
		}
	}

	if f.oldAPICallStats {
		if v, err := f.fe.ReadSignalStrength(); err == nil {
			strength = normalizeLegacyScale(uint32(v))
		}
		if v, err := f.fe.ReadSNR(); err == nil {
			snr = uint16(uint32(v) * 15 / 0xffff)
		}
		if v, err := f.fe.ReadBER(); err == nil {
			ber = v
		}
		if v, err := f.fe.ReadUncorrectedBlocks(); err == nil {
			unc = v
		}
	}

	f.data.Monitor = frontenddata.MonitorSnapshot{
		StatusBits:        status,
		Strength0To240:    strength,
		SNR0To15:          snr,
		BER:               ber,
		UncorrectedBlocks: unc,
	}
	return f.data.Monitor
}

// normalizeLegacyScale maps a raw 16-bit reading into 0..240 (used for
// strength on both paths; SNR is scaled into 0..15 separately).
func normalizeLegacyScale(raw uint32) uint16 {
	return uint16((raw & 0xffff) * 240 / 0xffff)
}

// ModernStatCalls reports how many times the modern stats property path
// was attempted, used to verify the legacy-latch property (must be 1 once
// latched).
func (f *Frontend) ModernStatCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modernStatCalls
}

// IsDataAvailable polls the demux fd with a 180ms timeout for readability.
func (f *Frontend) IsDataAvailable() bool {
	f.demuxMu.RLock()
	defer f.demuxMu.RUnlock()
	if !f.demux.Open() {
		return false
	}
	ok, err := f.demux.PollReadable(dataAvailablePollMS)
	if err != nil {
		f.logger.Warn("poll demux failed", logging.ErrField(err))
		return false
	}
	return ok
}

// ReadFullTSPacket reads at most the buffer's remaining capacity; when the
// buffer fills, it hands the data to addFilterData and returns true.
// Errors other than EAGAIN/EWOULDBLOCK are logged; partial reads are
// retained across calls.
func (f *Frontend) ReadFullTSPacket(capacity int) ([]byte, bool) {
	full, ok := f.readChunk(capacity)
	if !ok {
		return nil, false
	}
	// addFilterData only needs the PID table, which has a single writer
	// per PID; it is updated outside demuxMu so a concurrent retune
	// holding the Frontend mutex is never blocked behind a demux read.
	f.mu.Lock()
	f.data.AddFilterData(full)
	f.mu.Unlock()
	return full, true
}

func (f *Frontend) readChunk(capacity int) ([]byte, bool) {
	f.demuxMu.Lock()
	defer f.demuxMu.Unlock()

	if !f.demux.Open() {
		return nil, false
	}

	remaining := capacity - len(f.readBuf)
	if remaining <= 0 {
		remaining = capacity
	}
	chunk := make([]byte, remaining)
	n, err := f.demux.Read(chunk)
	if err != nil {
		if !isTemporary(err) {
			f.logger.Warn("demux read error", logging.ErrField(err))
		}
		return nil, false
	}
	f.readBuf = append(f.readBuf, chunk[:n]...)

	if len(f.readBuf) < capacity {
		return nil, false
	}

	full := f.readBuf
	f.readBuf = make([]byte, 0, capacity)
	return full, true
}

func isTemporary(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
