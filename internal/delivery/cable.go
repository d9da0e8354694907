package delivery

import (
	"github.com/mpostema/dvbstreamer/internal/dvbdev"
	"github.com/mpostema/dvbstreamer/internal/dvbxml"
	"github.com/mpostema/dvbstreamer/internal/frontenddata"
	"github.com/mpostema/dvbstreamer/internal/logging"
)

// Cable drives DVB-C tuning. All Annex variants collapse onto this single
// module — a physical cable tuner counts once regardless of how many
// Annex entries the kernel enumerates.
type Cable struct {
	logger logging.Logger
}

func NewCable(logger logging.Logger) *Cable {
	if logger == nil {
		logger = logging.Default()
	}
	return &Cable{logger: logger}
}

func (c *Cable) IsCapableOf(sys dvbdev.DeliverySystemID) bool {
	return dvbdev.FamilyOf(sys) == dvbdev.FamilyCable
}

// Tune issues the property sequence
// {CLEAR, DELIVERY_SYSTEM, FREQUENCY, MODULATION, SYMBOL_RATE, INNER_FEC,
//  INVERSION, TUNE}.
func (c *Cable) Tune(fe *dvbdev.FrontendHandle, desc frontenddata.TuningDescriptor) bool {
	clearPendingEvents(fe)

	props := []dvbdev.Property{
		{Cmd: dvbdev.PropClear, Value: 0},
		{Cmd: dvbdev.PropDeliverySystem, Value: uint32(desc.DeliverySystem)},
		{Cmd: dvbdev.PropFrequency, Value: desc.FrequencyKHz * 1000},
		{Cmd: dvbdev.PropModulation, Value: cableModulationCode(desc.ModulationCable)},
		{Cmd: dvbdev.PropSymbolRate, Value: desc.SymbolRateCable},
		{Cmd: dvbdev.PropInnerFEC, Value: fecCode(desc.FECCable)},
		{Cmd: dvbdev.PropInversion, Value: 2}, // INVERSION_AUTO
		{Cmd: dvbdev.PropTune, Value: 0},
	}

	if err := fe.SetProperties(props); err != nil {
		c.logger.Warn("cable tune failed", logging.ErrField(err))
		return false
	}
	return true
}

func (c *Cable) ToXML(doc *dvbxml.Document, prefix string) {
	doc.AddElement(prefix+".family", "cable")
}

func (c *Cable) FromXML(*dvbxml.Document, string) {}

func cableModulationCode(v string) uint32 {
	switch v {
	case "16":
		return 1
	case "32":
		return 2
	case "64":
		return 3
	case "128":
		return 5
	case "256":
		return 4
	default:
		return 10 // QAM_AUTO
	}
}
