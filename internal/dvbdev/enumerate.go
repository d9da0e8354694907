package dvbdev

import "strings"

// Capabilities is the immutable, read-once description of a tuner: its
// human name, frequency/symbol-rate ranges, modulation capability bits,
// and supported delivery systems.
type Capabilities struct {
	Name          string
	FreqMinHz     uint32
	FreqMaxHz     uint32
	SymbolRateMin uint32
	SymbolRateMax uint32
	Can2G         bool
	DeliverySys   []DeliverySystemID
}

// ProbeCapabilities reads FE_GET_INFO and enumerates delivery systems on an
// already-open frontend handle, which the caller keeps and closes.
//
// It first tries the modern DTV_ENUM_DELSYS property; when that fails or
// yields nothing, it falls back to inferring one or two delivery systems
// (e.g. DVB-S plus DVB-S2) from the legacy fe_type field plus the FE_CAN_2G_MODULATION capability bit, mirroring
// the old-kernel fallback in the original tuner's setup routine.
func ProbeCapabilities(h *FrontendHandle) (Capabilities, error) {
	info, err := h.GetInfo()
	if err != nil {
		return Capabilities{}, err
	}

	caps := Capabilities{
		Name:          strings.TrimRight(string(info.Name[:]), "\x00"),
		FreqMinHz:     info.FrequencyMin,
		FreqMaxHz:     info.FrequencyMax,
		SymbolRateMin: info.SymbolRateMin,
		SymbolRateMax: info.SymbolRateMax,
		Can2G:         info.Caps&feCan2GModulation != 0,
	}

	if systems, err := probeModernDelSys(h); err == nil && len(systems) > 0 {
		caps.DeliverySys = systems
		return caps, nil
	}

	caps.DeliverySys = legacyDelSys(info.Type, caps.Can2G)
	return caps, nil
}

func probeModernDelSys(h *FrontendHandle) ([]DeliverySystemID, error) {
	vals, err := h.GetProperties([]uint32{dtvEnumDelSys})
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	// The kernel returns up to MAX_DELSYS packed values through repeated
	// GET_PROPERTY calls in the real driver; a single-slot bundle like this
	// one surfaces the primary delivery system, sufficient to pick a
	// registrable family. Once this returns any value, the legacy
	// fallback is not consulted for further systems.
	out := make([]DeliverySystemID, 0, len(vals))
	for _, v := range vals {
		if v != uint32(SysUndefined) {
			out = append(out, DeliverySystemID(v))
		}
	}
	return out, nil
}

func legacyDelSys(feType uint32, can2G bool) []DeliverySystemID {
	switch feType {
	case feTypeQPSK:
		if can2G {
			return []DeliverySystemID{SysDVBS, SysDVBS2}
		}
		return []DeliverySystemID{SysDVBS}
	case feTypeOFDM:
		if can2G {
			return []DeliverySystemID{SysDVBT, SysDVBT2}
		}
		return []DeliverySystemID{SysDVBT}
	case feTypeQAM:
		return []DeliverySystemID{SysDVBC_ANNEX_A}
	case feTypeATSC:
		return []DeliverySystemID{SysATSC}
	default:
		return nil
	}
}

// Family buckets a delivery system into one of the three registrable module
// families the controller instantiates.
type Family int

const (
	FamilyUnknown Family = iota
	FamilySatellite
	FamilyTerrestrial
	FamilyCable
)

// FamilyOf classifies a delivery system, collapsing every cable Annex
// variant onto FamilyCable — a physical cable tuner is one module
// regardless of how many Annex entries the kernel enumerates.
func FamilyOf(sys DeliverySystemID) Family {
	switch sys {
	case SysDVBS, SysDVBS2, SysDSS, SysTURBO:
		return FamilySatellite
	case SysDVBT, SysDVBT2:
		return FamilyTerrestrial
	case SysDVBC_ANNEX_A, SysDVBC_ANNEX_B, SysDVBC_ANNEX_C:
		return FamilyCable
	default:
		return FamilyUnknown
	}
}

// DeliverySystemCounts tallies how many of a tuner's enumerated delivery
// systems fall into each advertised bucket, the way a control plane
// decides how many virtual tuners of each family to report.
type DeliverySystemCounts struct {
	DVBS2 int
	DVBT  int
	DVBT2 int
	DVBC  int
	DVBC2 int
}

// CountDeliverySystems buckets systems the way the original enumeration
// does: every DVB-S/DVB-S2 entry increments the DVBS2 bucket, DVB-T and
// DVB-T2 each get their own bucket, and the DVB-C Annex variants collapse
// onto a single DVBC count since they describe one physical cable tuner.
// DVBC2 is never incremented — no enumerated delivery system maps to it —
// but the bucket is kept for parity with the counts a control plane reports.
func CountDeliverySystems(systems []DeliverySystemID) DeliverySystemCounts {
	var c DeliverySystemCounts
	for _, sys := range systems {
		switch sys {
		case SysDVBS, SysDVBS2:
			c.DVBS2++
		case SysDVBT:
			c.DVBT++
		case SysDVBT2:
			c.DVBT2++
		case SysDVBC_ANNEX_A, SysDVBC_ANNEX_B, SysDVBC_ANNEX_C:
			if c.DVBC == 0 {
				c.DVBC++
			}
		}
	}
	return c
}
