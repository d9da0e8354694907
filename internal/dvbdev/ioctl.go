// Package dvbdev provides scoped handles and raw ioctl primitives for the
// Linux DVB API (frontend, demux, dvr character devices) without cgo.
package dvbdev

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Frontend ioctl numbers (linux/dvb/frontend.h). Encoded by hand since the
// kernel header is not importable without cgo.
const (
	feGetInfo        = 0x80a86fb1
	feReadStatus     = 0x40046fb2
	feReadBER        = 0x40046fb3
	feReadSignalStr  = 0x40046fb4
	feReadSNR        = 0x40046fb5
	feReadUncBlocks  = 0x40046fb6
	feSetFrontend    = 0x40586fc8 // legacy struct dvb_frontend_parameters
	feGetFrontend    = 0x80586fc9
	feGetPropertyNum = 0x80086fca
	feSetPropertyNum = 0x40086fcb
	feEnableHighVolt = 0x20006f1a
	feSetTone        = 0x20006f14
	feSetVoltage     = 0x20006f15
	feDiseqcSendMsg  = 0x40106f12
	feDiseqcSendBrst = 0x20006f17
)

// Demux ioctl numbers (linux/dvb/dmx.h).
const (
	dmxStartIoctl       = 0x00006f29
	dmxStopIoctl        = 0x00006f2a
	dmxSetFilterIoctl   = 0x40a86f2b
	dmxSetPESFilter     = 0x40286f2c
	dmxSetBufferSize    = 0x00006f2d
	dmxAddPid           = 0x40046f33
	dmxRemovePid        = 0x40046f34
	dmxSetSource        = 0x40046f29 // shares number space with START on some kernels; DVR layer disambiguates by fd type
)

// FE_STATUS bits.
const (
	FEHasSignal  = 0x01
	FEHasCarrier = 0x02
	FEHasViterbi = 0x04
	FEHasSync    = 0x08
	FEHasLock    = 0x10
	FETimedout   = 0x20
	FEReinit     = 0x40
)

// Legacy fe_type values (FE_GET_INFO.type on pre-S2API kernels).
const (
	feTypeQPSK = 0
	feTypeQAM  = 1
	feTypeOFDM = 2
	feTypeATSC = 3
)

// Legacy capability bit used to infer DVB-S2 support on old kernels.
const feCan2GModulation = 0x10000000

// fe_delivery_system values (linux/dvb/frontend.h).
type DeliverySystemID uint32

const (
	SysUndefined DeliverySystemID = iota
	SysDVBC_ANNEX_A
	SysDVBC_ANNEX_B
	SysDVBT
	SysDSS
	SysDVBS
	SysDVBS2
	SysDVBH
	SysISDBT
	SysISDBS
	SysISDBC
	SysATSC
	SysATSCMH
	SysDTMB
	SysCMMB
	SysDAB
	SysDVBT2
	SysTURBO
	SysDVBC_ANNEX_C
)

// dtv_property, the unit of the extended (S2API) property protocol.
type dtvProperty struct {
	cmd      uint32
	reserved [3]uint32
	data     [32]byte
	result   int32
}

// dtv_properties, a bundle of properties for one FE_GET/SET_PROPERTY call.
type dtvProperties struct {
	num   uint32
	props uintptr
}

// Property command identifiers used by Tune sequences (DTV_* in
// linux/dvb/frontend.h). Exported so delivery-system modules can build
// property sequences without a second constant table.
const (
	PropUndefined       uint32 = 0
	PropTune            uint32 = 1
	PropClear           uint32 = 2
	PropFrequency       uint32 = 3
	PropModulation      uint32 = 4
	PropBandwidthHz     uint32 = 5
	PropInversion       uint32 = 6
	PropSymbolRate      uint32 = 7
	PropInnerFEC        uint32 = 8
	PropVoltage         uint32 = 9
	PropTone            uint32 = 10
	PropPilot           uint32 = 11
	PropRolloff         uint32 = 12
	PropDiseqcSlave     uint32 = 13
	PropDeliverySystem  uint32 = 17
	PropCodeRateHP      uint32 = 24
	PropCodeRateLP      uint32 = 25
	PropGuardInterval   uint32 = 26
	PropTransmissionM   uint32 = 27
	PropHierarchy       uint32 = 28
	PropStreamID        uint32 = 42
	dtvEnumDelSys              = 44
	PropSignalStrength  uint32 = 65
	PropCNR             uint32 = 66
	PropErrorBlockCount uint32 = 71
)

func ioctl(fd int, req uint, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctlPtr(fd int, req uint, p unsafe.Pointer) error {
	return ioctl(fd, req, uintptr(p))
}
