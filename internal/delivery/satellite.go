package delivery

import (
	"strconv"
	"strings"

	"github.com/mpostema/dvbstreamer/internal/dvbdev"
	"github.com/mpostema/dvbstreamer/internal/dvbxml"
	"github.com/mpostema/dvbstreamer/internal/frontenddata"
	"github.com/mpostema/dvbstreamer/internal/logging"
)

// lnbLowMHz/lnbHighMHz/lnbSwitchMHz describe a standard universal LNB: low
// band below the switch frequency uses the low local oscillator, high band
// above it uses the high local oscillator and the 22kHz tone.
const (
	lnbLowMHz    = 9750
	lnbHighMHz   = 10600
	lnbSwitchMHz = 11700
)

// Satellite drives DVB-S/S2 tuning, including LNB band/polarization
// selection and DiSEqC switching.
type Satellite struct {
	logger logging.Logger
}

// NewSatellite builds a Satellite delivery-system module.
func NewSatellite(logger logging.Logger) *Satellite {
	if logger == nil {
		logger = logging.Default()
	}
	return &Satellite{logger: logger}
}

func (s *Satellite) IsCapableOf(sys dvbdev.DeliverySystemID) bool {
	return dvbdev.FamilyOf(sys) == dvbdev.FamilySatellite
}

// Tune selects LNB band by frequency, computes the intermediate frequency,
// drives DiSEqC if a committed switch port is set, sets tone/voltage, and
// issues the property sequence
// {CLEAR, DELIVERY_SYSTEM, FREQUENCY, MODULATION, SYMBOL_RATE, INNER_FEC,
//  INVERSION, ROLLOFF, PILOT, TUNE}.
func (s *Satellite) Tune(fe *dvbdev.FrontendHandle, desc frontenddata.TuningDescriptor) bool {
	clearPendingEvents(fe)

	highBand := desc.FrequencyKHz/1000 >= lnbSwitchMHz
	var intermediateKHz uint32
	if highBand {
		intermediateKHz = desc.FrequencyKHz - lnbHighMHz*1000
	} else {
		intermediateKHz = desc.FrequencyKHz - lnbLowMHz*1000
	}

	voltage18 := desc.Polarization == frontenddata.PolVertical || desc.Polarization == frontenddata.PolRight

	sendDiseqc(fe, s.logger, desc.DiseqcCommitted, desc.DiseqcUncommit, voltage18, highBand)

	props := []dvbdev.Property{
		{Cmd: dvbdev.PropClear, Value: 0},
		{Cmd: dvbdev.PropDeliverySystem, Value: uint32(desc.DeliverySystem)},
		{Cmd: dvbdev.PropFrequency, Value: intermediateKHz},
		{Cmd: dvbdev.PropModulation, Value: modulationCode(desc.ModulationSat)},
		{Cmd: dvbdev.PropSymbolRate, Value: desc.SymbolRateSat},
		{Cmd: dvbdev.PropInnerFEC, Value: fecCode(desc.FECSat)},
		{Cmd: dvbdev.PropInversion, Value: 2}, // INVERSION_AUTO
		{Cmd: dvbdev.PropRolloff, Value: rolloffCode(desc.Rolloff)},
		{Cmd: dvbdev.PropPilot, Value: pilotCode(desc.Pilot)},
		{Cmd: dvbdev.PropTune, Value: 0},
	}

	if err := fe.SetProperties(props); err != nil {
		s.logger.Warn("satellite tune failed", logging.ErrField(err))
		return false
	}
	return true
}

func (s *Satellite) ToXML(doc *dvbxml.Document, prefix string) {
	doc.AddElement(prefix+".family", "satellite")
}

func (s *Satellite) FromXML(*dvbxml.Document, string) {}

func modulationCode(v string) uint32 {
	switch strings.ToUpper(v) {
	case "QPSK":
		return 0
	case "8PSK":
		return 5
	case "16APSK":
		return 6
	case "32APSK":
		return 7
	default:
		return 0
	}
}

func fecCode(v string) uint32 {
	v = strings.ReplaceAll(v, "/", "")
	n, err := strconv.Atoi(v)
	if err != nil {
		return 9 // FEC_AUTO
	}
	switch n {
	case 12:
		return 1
	case 23:
		return 2
	case 34:
		return 3
	case 56:
		return 4
	case 78:
		return 5
	case 89:
		return 6
	case 35:
		return 7
	case 45:
		return 8
	case 910:
		return 10
	default:
		return 9
	}
}

func rolloffCode(v string) uint32 {
	switch v {
	case "0.20", "0.2":
		return 2
	case "0.25":
		return 1
	case "0.35":
		return 0
	default:
		return 0
	}
}

func pilotCode(v string) uint32 {
	switch strings.ToLower(v) {
	case "on":
		return 0
	case "off":
		return 1
	default:
		return 2 // PILOT_AUTO
	}
}
