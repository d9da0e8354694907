package dvbdev

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// NoFD is the sentinel value stored in a closed handle.
const NoFD = -1

// ClosedFrontendHandle returns a handle in the closed state, usable as a
// placeholder before the first Setup/retune opens the real device.
func ClosedFrontendHandle() *FrontendHandle { return &FrontendHandle{fd: NoFD} }

// ClosedDemuxHandle returns a handle in the closed state.
func ClosedDemuxHandle() *DemuxHandle { return &DemuxHandle{fd: NoFD} }

// ClosedDVRHandle returns a handle in the closed state.
func ClosedDVRHandle() *DVRHandle { return &DVRHandle{fd: NoFD} }

// FrontendHandle is a scoped wrapper over /dev/dvb/adapterN/frontendM.
// Close is idempotent and always resets fd to NoFD.
type FrontendHandle struct {
	fd int
}

// OpenFrontend opens the frontend device. readWrite selects O_RDWR over
// O_RDONLY; the tuning phase needs read-write, pure monitoring does not.
func OpenFrontend(path string, readWrite bool) (*FrontendHandle, error) {
	flags := unix.O_RDONLY | unix.O_NONBLOCK
	if readWrite {
		flags = unix.O_RDWR | unix.O_NONBLOCK
	}
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return &FrontendHandle{fd: NoFD}, fmt.Errorf("open frontend %s: %w", path, err)
	}
	return &FrontendHandle{fd: fd}, nil
}

func (h *FrontendHandle) FD() int { return h.fd }

func (h *FrontendHandle) Open() bool { return h.fd != NoFD }

// Close releases the descriptor. Safe to call on an already-closed handle.
func (h *FrontendHandle) Close() error {
	if h.fd == NoFD {
		return nil
	}
	err := unix.Close(h.fd)
	h.fd = NoFD
	return err
}

// FEInfo mirrors the fixed-size prefix of struct dvb_frontend_info.
type FEInfo struct {
	Name          [128]byte
	Type          uint32
	FrequencyMin  uint32
	FrequencyMax  uint32
	FrequencyStep uint32
	SymbolRateMin uint32
	SymbolRateMax uint32
	Caps          uint32
}

// GetInfo issues FE_GET_INFO.
func (h *FrontendHandle) GetInfo() (FEInfo, error) {
	var info FEInfo
	if err := ioctlPtr(h.fd, feGetInfo, unsafe.Pointer(&info)); err != nil {
		return info, fmt.Errorf("FE_GET_INFO: %w", err)
	}
	return info, nil
}

// ReadStatus issues FE_READ_STATUS and returns the FE_HAS_* bitmask.
func (h *FrontendHandle) ReadStatus() (uint32, error) {
	var status uint32
	if err := ioctlPtr(h.fd, feReadStatus, unsafe.Pointer(&status)); err != nil {
		return 0, fmt.Errorf("FE_READ_STATUS: %w", err)
	}
	return status, nil
}

// ReadSignalStrength issues the legacy FE_READ_SIGNAL_STRENGTH ioctl.
func (h *FrontendHandle) ReadSignalStrength() (uint16, error) {
	var v uint16
	if err := ioctlPtr(h.fd, feReadSignalStr, unsafe.Pointer(&v)); err != nil {
		return 0, fmt.Errorf("FE_READ_SIGNAL_STRENGTH: %w", err)
	}
	return v, nil
}

// ReadSNR issues the legacy FE_READ_SNR ioctl.
func (h *FrontendHandle) ReadSNR() (uint16, error) {
	var v uint16
	if err := ioctlPtr(h.fd, feReadSNR, unsafe.Pointer(&v)); err != nil {
		return 0, fmt.Errorf("FE_READ_SNR: %w", err)
	}
	return v, nil
}

// ReadBER issues FE_READ_BER.
func (h *FrontendHandle) ReadBER() (uint32, error) {
	var v uint32
	if err := ioctlPtr(h.fd, feReadBER, unsafe.Pointer(&v)); err != nil {
		return 0, fmt.Errorf("FE_READ_BER: %w", err)
	}
	return v, nil
}

// ReadUncorrectedBlocks issues FE_READ_UNCORRECTED_BLOCKS.
func (h *FrontendHandle) ReadUncorrectedBlocks() (uint32, error) {
	var v uint32
	if err := ioctlPtr(h.fd, feReadUncBlocks, unsafe.Pointer(&v)); err != nil {
		return 0, fmt.Errorf("FE_READ_UNCORRECTED_BLOCKS: %w", err)
	}
	return v, nil
}

// SetProperties issues FE_SET_PROPERTY for an ordered sequence of
// (cmd, value) pairs, the shape every delivery-system tune sequence uses.
func (h *FrontendHandle) SetProperties(props []Property) error {
	raw := make([]dtvProperty, len(props))
	for i, p := range props {
		raw[i].cmd = p.Cmd
		putU32(raw[i].data[:4], p.Value)
	}
	bundle := dtvProperties{num: uint32(len(raw))}
	if len(raw) > 0 {
		bundle.props = uintptr(unsafe.Pointer(&raw[0]))
	}
	if err := ioctlPtr(h.fd, feSetPropertyNum, unsafe.Pointer(&bundle)); err != nil {
		return fmt.Errorf("FE_SET_PROPERTY: %w", err)
	}
	return nil
}

// GetProperties issues FE_GET_PROPERTY for the given commands and returns
// their raw 32-bit values in order.
func (h *FrontendHandle) GetProperties(cmds []uint32) ([]uint32, error) {
	raw := make([]dtvProperty, len(cmds))
	for i, c := range cmds {
		raw[i].cmd = c
	}
	bundle := dtvProperties{num: uint32(len(raw))}
	if len(raw) > 0 {
		bundle.props = uintptr(unsafe.Pointer(&raw[0]))
	}
	if err := ioctlPtr(h.fd, feGetPropertyNum, unsafe.Pointer(&bundle)); err != nil {
		return nil, fmt.Errorf("FE_GET_PROPERTY: %w", err)
	}
	out := make([]uint32, len(raw))
	for i := range raw {
		out[i] = getU32(raw[i].data[:4])
	}
	return out, nil
}

// SetTone issues FE_SET_TONE (22kHz tone on/off, used for LNB band select).
func (h *FrontendHandle) SetTone(on bool) error {
	v := uintptr(0)
	if on {
		v = 1
	}
	if err := ioctl(h.fd, feSetTone, v); err != nil {
		return fmt.Errorf("FE_SET_TONE: %w", err)
	}
	return nil
}

// SetVoltage issues FE_SET_VOLTAGE (13V/18V supply, used for polarization).
func (h *FrontendHandle) SetVoltage(v18 bool) error {
	v := uintptr(0)
	if v18 {
		v = 1
	}
	if err := ioctl(h.fd, feSetVoltage, v); err != nil {
		return fmt.Errorf("FE_SET_VOLTAGE: %w", err)
	}
	return nil
}

// DiseqcMsg mirrors struct dvb_diseqc_master_cmd.
type DiseqcMsg struct {
	Msg    [6]byte
	MsgLen uint8
}

// DiseqcSendMasterCmd issues FE_DISEQC_SEND_MASTER_CMD.
func (h *FrontendHandle) DiseqcSendMasterCmd(msg DiseqcMsg) error {
	if err := ioctlPtr(h.fd, feDiseqcSendMsg, unsafe.Pointer(&msg)); err != nil {
		return fmt.Errorf("FE_DISEQC_SEND_MASTER_CMD: %w", err)
	}
	return nil
}

// DiseqcSendBurst issues FE_DISEQC_SEND_BURST (mini-DiSEqC A/B tone burst).
func (h *FrontendHandle) DiseqcSendBurst(burstB bool) error {
	v := uintptr(0)
	if burstB {
		v = 1
	}
	if err := ioctl(h.fd, feDiseqcSendBrst, v); err != nil {
		return fmt.Errorf("FE_DISEQC_SEND_BURST: %w", err)
	}
	return nil
}

// Property is a single (command, value) pair in a tune property sequence.
type Property struct {
	Cmd   uint32
	Value uint32
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// DemuxHandle is a scoped wrapper over /dev/dvb/adapterN/demuxM.
type DemuxHandle struct {
	fd int
}

// OpenDemux opens the demux device read-write.
func OpenDemux(path string) (*DemuxHandle, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return &DemuxHandle{fd: NoFD}, fmt.Errorf("open demux %s: %w", path, err)
	}
	return &DemuxHandle{fd: fd}, nil
}

func (h *DemuxHandle) FD() int    { return h.fd }
func (h *DemuxHandle) Open() bool { return h.fd != NoFD }

func (h *DemuxHandle) Close() error {
	if h.fd == NoFD {
		return nil
	}
	err := unix.Close(h.fd)
	h.fd = NoFD
	return err
}

// dmxPESFilterParams mirrors struct dmx_pes_filter_params.
type dmxPESFilterParams struct {
	pid     uint16
	input   uint32
	output  uint32
	pesType uint32
	flags   uint32
}

const (
	dmxInputFrontend  = 0
	dmxOutputTSDemux  = 2 // DMX_OUT_TSDEMUX_TAP
	dmxPESOther       = 19
	dmxImmediateStart = 0x04
)

// SetPESFilter installs the first PID filter on this demux and starts it.
func (h *DemuxHandle) SetPESFilter(pid uint16) error {
	p := dmxPESFilterParams{
		pid:     pid,
		input:   dmxInputFrontend,
		output:  dmxOutputTSDemux,
		pesType: dmxPESOther,
		flags:   dmxImmediateStart,
	}
	if err := ioctlPtr(h.fd, dmxSetPESFilter, unsafe.Pointer(&p)); err != nil {
		return fmt.Errorf("DMX_SET_PES_FILTER pid=%d: %w", pid, err)
	}
	return nil
}

// AddPID issues DMX_ADD_PID for an additional PID on an already-started demux.
func (h *DemuxHandle) AddPID(pid uint16) error {
	v := uint32(pid)
	if err := ioctlPtr(h.fd, dmxAddPid, unsafe.Pointer(&v)); err != nil {
		return fmt.Errorf("DMX_ADD_PID pid=%d: %w", pid, err)
	}
	return nil
}

// RemovePID issues DMX_REMOVE_PID.
func (h *DemuxHandle) RemovePID(pid uint16) error {
	v := uint32(pid)
	if err := ioctlPtr(h.fd, dmxRemovePid, unsafe.Pointer(&v)); err != nil {
		return fmt.Errorf("DMX_REMOVE_PID pid=%d: %w", pid, err)
	}
	return nil
}

// SetBufferSize issues DMX_SET_BUFFER_SIZE in bytes.
func (h *DemuxHandle) SetBufferSize(bytes uint32) error {
	if err := ioctl(h.fd, dmxSetBufferSize, uintptr(bytes)); err != nil {
		return fmt.Errorf("DMX_SET_BUFFER_SIZE: %w", err)
	}
	return nil
}

// SetSource issues DMX_SET_SOURCE, used by the set-top-box frontend-index probe.
func (h *DemuxHandle) SetSource(source uint32) error {
	if err := ioctlPtr(h.fd, dmxSetSource, unsafe.Pointer(&source)); err != nil {
		return fmt.Errorf("DMX_SET_SOURCE: %w", err)
	}
	return nil
}

// PollReadable polls the demux fd for readability with the given timeout.
func (h *DemuxHandle) PollReadable(timeoutMS int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(h.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, timeoutMS)
	if err != nil {
		return false, err
	}
	return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
}

// Read reads available TS data into buf.
func (h *DemuxHandle) Read(buf []byte) (int, error) {
	return unix.Read(h.fd, buf)
}

// DVRHandle is a scoped wrapper over /dev/dvb/adapterN/dvrM, the filtered
// TS data tap.
type DVRHandle struct {
	fd int
}

// OpenDVR opens the DVR device read-only, non-blocking.
func OpenDVR(path string) (*DVRHandle, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return &DVRHandle{fd: NoFD}, fmt.Errorf("open dvr %s: %w", path, err)
	}
	return &DVRHandle{fd: fd}, nil
}

func (h *DVRHandle) FD() int    { return h.fd }
func (h *DVRHandle) Open() bool { return h.fd != NoFD }

func (h *DVRHandle) Close() error {
	if h.fd == NoFD {
		return nil
	}
	err := unix.Close(h.fd)
	h.fd = NoFD
	return err
}

// SetTopBoxSource detects a set-top-box /proc/stb/info/version and, if
// present, applies DMX_SET_SOURCE with the frontend index offset by
// /proc/stb/frontend/dvr_source_offset when that override file exists.
func SetTopBoxSource(demux *DemuxHandle, feIndex int) error {
	if _, err := os.Stat("/proc/stb/info/version"); err != nil {
		return nil
	}
	offset := 0
	if data, err := os.ReadFile("/proc/stb/frontend/dvr_source_offset"); err == nil {
		fmt.Sscanf(string(data), "%d", &offset)
	}
	return demux.SetSource(uint32(feIndex + offset))
}
