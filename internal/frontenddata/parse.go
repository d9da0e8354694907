package frontenddata

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mpostema/dvbstreamer/internal/dvbdev"
)

// Method is the RTSP-style verb accompanying a stream request string.
type Method int

const (
	MethodPlay Method = iota
	MethodSetup
	MethodOptions
)

// ParseMethod converts a verb string, defaulting to PLAY on unknown input.
func ParseMethod(s string) Method {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SETUP":
		return MethodSetup
	case "OPTIONS":
		return MethodOptions
	default:
		return MethodPlay
	}
}

// ParseStreamString parses a URL-query-style stream request
// ("freq=...&msys=...&pol=h&sr=...&pids=...") into the descriptor's tuning
// fields and desired PID set, raising the dirty flag on any field or PID-set
// change. method is currently advisory (OPTIONS never mutates state).
func (d *Data) ParseStreamString(msg string, method Method) error {
	if method == MethodOptions {
		return nil
	}

	values, err := url.ParseQuery(msg)
	if err != nil {
		return fmt.Errorf("parse stream string: %w", err)
	}

	desc := d.Tuning
	if v := values.Get("freq"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("freq: %w", err)
		}
		desc.FrequencyKHz = uint32(n)
	}
	if v := values.Get("msys"); v != "" {
		desc.DeliverySystem = parseDeliverySystem(v)
	}
	if v := values.Get("pol"); v != "" {
		desc.Polarization = parsePolarization(v)
	}
	if v := values.Get("ro"); v != "" {
		desc.Rolloff = v
	}
	if v := values.Get("plts"); v != "" {
		desc.Pilot = v
	}
	if v := values.Get("mtype"); v != "" {
		switch dvbdev.FamilyOf(desc.DeliverySystem) {
		case dvbdev.FamilyTerrestrial:
			desc.ModulationTerr = v
		case dvbdev.FamilyCable:
			desc.ModulationCable = v
		default:
			desc.ModulationSat = v
		}
	}
	if v := values.Get("sr"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("sr: %w", err)
		}
		switch dvbdev.FamilyOf(desc.DeliverySystem) {
		case dvbdev.FamilyCable:
			desc.SymbolRateCable = uint32(n)
		default:
			desc.SymbolRateSat = uint32(n)
		}
	}
	if v := values.Get("fec"); v != "" {
		switch dvbdev.FamilyOf(desc.DeliverySystem) {
		case dvbdev.FamilyCable:
			desc.FECCable = v
		default:
			desc.FECSat = v
		}
	}
	if v := values.Get("bw"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("bw: %w", err)
		}
		desc.BandwidthHz = uint32(n) * 1_000_000
	}
	if v := values.Get("tmode"); v != "" {
		desc.TransmissionMode = v
	}
	if v := values.Get("gi"); v != "" {
		desc.GuardInterval = v
	}
	if v := values.Get("plp"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("plp: %w", err)
		}
		desc.PLPID = n
	}

	d.SetTuning(desc)

	if v := values.Get("pids"); v != "" {
		if err := d.applyPidList(v); err != nil {
			return fmt.Errorf("pids: %w", err)
		}
	}

	return nil
}

// applyPidList implements the PID-set grammar: "all" opens every PID,
// "none" closes all, otherwise a comma-separated list of decimal PIDs
// becomes the exact desired set.
func (d *Data) applyPidList(spec string) error {
	spec = strings.TrimSpace(spec)
	switch spec {
	case "all":
		d.Pids.SetAllDesired()
		return nil
	case "none":
		d.Pids.ClearAllDesired()
		return nil
	}

	wanted := make(map[uint16]bool)
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		n, err := strconv.ParseUint(tok, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid pid %q: %w", tok, err)
		}
		if n >= MaxPIDs {
			return fmt.Errorf("pid %d out of range", n)
		}
		wanted[uint16(n)] = true
	}

	for pid := 0; pid < MaxPIDs; pid++ {
		d.Pids.SetDesired(uint16(pid), wanted[uint16(pid)])
	}
	return nil
}

func parseDeliverySystem(v string) dvbdev.DeliverySystemID {
	switch strings.ToLower(v) {
	case "dvbs":
		return dvbdev.SysDVBS
	case "dvbs2":
		return dvbdev.SysDVBS2
	case "dvbt":
		return dvbdev.SysDVBT
	case "dvbt2":
		return dvbdev.SysDVBT2
	case "dvbc", "dvbc/annex_a", "dvbc2annexa":
		return dvbdev.SysDVBC_ANNEX_A
	case "dvbc/annex_b":
		return dvbdev.SysDVBC_ANNEX_B
	case "dvbc/annex_c":
		return dvbdev.SysDVBC_ANNEX_C
	default:
		return dvbdev.SysUndefined
	}
}

func parsePolarization(v string) Polarization {
	switch strings.ToLower(v) {
	case "h":
		return PolHorizontal
	case "v":
		return PolVertical
	case "l":
		return PolLeft
	case "r":
		return PolRight
	default:
		return PolNone
	}
}

// FormatStreamString re-serializes the current tuning descriptor as a
// stream-request string, used by the parse/format round-trip property.
func (d *Data) FormatStreamString() string {
	v := url.Values{}
	v.Set("freq", strconv.FormatUint(uint64(d.Tuning.FrequencyKHz), 10))
	v.Set("msys", formatDeliverySystem(d.Tuning.DeliverySystem))
	switch dvbdev.FamilyOf(d.Tuning.DeliverySystem) {
	case dvbdev.FamilySatellite:
		v.Set("pol", formatPolarization(d.Tuning.Polarization))
		v.Set("ro", d.Tuning.Rolloff)
		v.Set("plts", d.Tuning.Pilot)
		v.Set("mtype", d.Tuning.ModulationSat)
		v.Set("sr", strconv.FormatUint(uint64(d.Tuning.SymbolRateSat), 10))
		v.Set("fec", d.Tuning.FECSat)
	case dvbdev.FamilyTerrestrial:
		v.Set("bw", strconv.FormatUint(uint64(d.Tuning.BandwidthHz/1_000_000), 10))
		v.Set("tmode", d.Tuning.TransmissionMode)
		v.Set("gi", d.Tuning.GuardInterval)
		v.Set("mtype", d.Tuning.ModulationTerr)
	case dvbdev.FamilyCable:
		v.Set("sr", strconv.FormatUint(uint64(d.Tuning.SymbolRateCable), 10))
		v.Set("fec", d.Tuning.FECCable)
		v.Set("mtype", d.Tuning.ModulationCable)
	}
	return v.Encode()
}

func formatDeliverySystem(s dvbdev.DeliverySystemID) string {
	switch s {
	case dvbdev.SysDVBS:
		return "dvbs"
	case dvbdev.SysDVBS2:
		return "dvbs2"
	case dvbdev.SysDVBT:
		return "dvbt"
	case dvbdev.SysDVBT2:
		return "dvbt2"
	case dvbdev.SysDVBC_ANNEX_A:
		return "dvbc"
	case dvbdev.SysDVBC_ANNEX_B:
		return "dvbc/annex_b"
	case dvbdev.SysDVBC_ANNEX_C:
		return "dvbc/annex_c"
	default:
		return ""
	}
}

func formatPolarization(p Polarization) string {
	switch p {
	case PolHorizontal:
		return "h"
	case PolVertical:
		return "v"
	case PolLeft:
		return "l"
	case PolRight:
		return "r"
	default:
		return ""
	}
}
