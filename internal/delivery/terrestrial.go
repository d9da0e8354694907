package delivery

import (
	"github.com/mpostema/dvbstreamer/internal/dvbdev"
	"github.com/mpostema/dvbstreamer/internal/dvbxml"
	"github.com/mpostema/dvbstreamer/internal/frontenddata"
	"github.com/mpostema/dvbstreamer/internal/logging"
)

// Terrestrial drives DVB-T/T2 tuning.
type Terrestrial struct {
	logger logging.Logger
}

func NewTerrestrial(logger logging.Logger) *Terrestrial {
	if logger == nil {
		logger = logging.Default()
	}
	return &Terrestrial{logger: logger}
}

func (t *Terrestrial) IsCapableOf(sys dvbdev.DeliverySystemID) bool {
	return dvbdev.FamilyOf(sys) == dvbdev.FamilyTerrestrial
}

// Tune issues the property sequence
// {CLEAR, DELIVERY_SYSTEM, FREQUENCY, MODULATION, BANDWIDTH_HZ,
//  CODE_RATE_HP, CODE_RATE_LP, TRANSMISSION_MODE, GUARD_INTERVAL,
//  HIERARCHY, INVERSION, (DVB-T2: STREAM_ID), TUNE}.
func (t *Terrestrial) Tune(fe *dvbdev.FrontendHandle, desc frontenddata.TuningDescriptor) bool {
	clearPendingEvents(fe)

	props := []dvbdev.Property{
		{Cmd: dvbdev.PropClear, Value: 0},
		{Cmd: dvbdev.PropDeliverySystem, Value: uint32(desc.DeliverySystem)},
		{Cmd: dvbdev.PropFrequency, Value: desc.FrequencyKHz * 1000},
		{Cmd: dvbdev.PropModulation, Value: terrestrialModulationCode(desc.ModulationTerr)},
		{Cmd: dvbdev.PropBandwidthHz, Value: desc.BandwidthHz},
		{Cmd: dvbdev.PropCodeRateHP, Value: 9}, // FEC_AUTO
		{Cmd: dvbdev.PropCodeRateLP, Value: 9},
		{Cmd: dvbdev.PropTransmissionM, Value: transmissionModeCode(desc.TransmissionMode)},
		{Cmd: dvbdev.PropGuardInterval, Value: guardIntervalCode(desc.GuardInterval)},
		{Cmd: dvbdev.PropHierarchy, Value: 0}, // HIERARCHY_NONE
		{Cmd: dvbdev.PropInversion, Value: 2}, // INVERSION_AUTO
	}
	if desc.DeliverySystem == dvbdev.SysDVBT2 {
		props = append(props, dvbdev.Property{Cmd: dvbdev.PropStreamID, Value: uint32(desc.PLPID)})
	}
	props = append(props, dvbdev.Property{Cmd: dvbdev.PropTune, Value: 0})

	if err := fe.SetProperties(props); err != nil {
		t.logger.Warn("terrestrial tune failed", logging.ErrField(err))
		return false
	}
	return true
}

func (t *Terrestrial) ToXML(doc *dvbxml.Document, prefix string) {
	doc.AddElement(prefix+".family", "terrestrial")
}

func (t *Terrestrial) FromXML(*dvbxml.Document, string) {}

func terrestrialModulationCode(v string) uint32 {
	switch v {
	case "16":
		return 1 // QAM_16
	case "64":
		return 3 // QAM_64
	case "256":
		return 4 // QAM_256
	default:
		return 10 // QAM_AUTO
	}
}

func transmissionModeCode(v string) uint32 {
	switch v {
	case "2k":
		return 0
	case "8k":
		return 1
	case "4k":
		return 2
	case "1k":
		return 3
	case "16k":
		return 4
	case "32k":
		return 5
	default:
		return 9 // TRANSMISSION_MODE_AUTO
	}
}

func guardIntervalCode(v string) uint32 {
	switch v {
	case "1/32":
		return 0
	case "1/16":
		return 1
	case "1/8":
		return 2
	case "1/4":
		return 3
	case "1/128":
		return 4
	case "19/128":
		return 5
	case "19/256":
		return 6
	default:
		return 7 // GUARD_INTERVAL_AUTO
	}
}
