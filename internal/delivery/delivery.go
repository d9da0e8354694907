// Package delivery implements the capability-based polymorphism over
// DVB-S/S2, DVB-T/T2, and DVB-C/Annex variants, each translating a
// TuningDescriptor into a kernel property sequence and issuing the tune.
package delivery

import (
	"github.com/mpostema/dvbstreamer/internal/dvbdev"
	"github.com/mpostema/dvbstreamer/internal/dvbxml"
	"github.com/mpostema/dvbstreamer/internal/frontenddata"
	"github.com/mpostema/dvbstreamer/internal/logging"
)

// System is the common trait every delivery-system module implements:
// capability test, tune, and XML persistence hooks. ToXML/FromXML add to
// and read from elements under prefix (e.g. "deliverySystem0.family"),
// mirroring the original's ADD_XML_N_ELEMENT(xml, "deliverySystem", i, ...).
type System interface {
	IsCapableOf(sys dvbdev.DeliverySystemID) bool
	Tune(fe *dvbdev.FrontendHandle, desc frontenddata.TuningDescriptor) bool
	ToXML(doc *dvbxml.Document, prefix string)
	FromXML(doc *dvbxml.Document, prefix string)
}

// Registry holds the delivery-system modules registered for one Frontend,
// one per family present in its enumerated capabilities.
type Registry struct {
	systems []System
}

// NewRegistry builds a Registry with one module per distinct family found
// in caps.DeliverySys.
func NewRegistry(caps dvbdev.Capabilities, logger logging.Logger) *Registry {
	r := &Registry{}
	seen := map[dvbdev.Family]bool{}
	for _, sys := range caps.DeliverySys {
		fam := dvbdev.FamilyOf(sys)
		if fam == dvbdev.FamilyUnknown || seen[fam] {
			continue
		}
		seen[fam] = true
		switch fam {
		case dvbdev.FamilySatellite:
			r.systems = append(r.systems, NewSatellite(logger))
		case dvbdev.FamilyTerrestrial:
			r.systems = append(r.systems, NewTerrestrial(logger))
		case dvbdev.FamilyCable:
			r.systems = append(r.systems, NewCable(logger))
		}
	}
	return r
}

// Select returns the first registered system capable of driving sys, the
// "at most one delivery system drives tuning at a time" rule.
func (r *Registry) Select(sys dvbdev.DeliverySystemID) System {
	for _, s := range r.systems {
		if s.IsCapableOf(sys) {
			return s
		}
	}
	return nil
}

// Systems returns every registered module, used by ToXML/FromXML round trips.
func (r *Registry) Systems() []System { return r.systems }

// clearPendingEvents issues one best-effort FE_READ_STATUS before a new
// tune sequence. It does not issue FE_GET_EVENT, so frontend events
// already queued by the kernel are not drained.
func clearPendingEvents(fe *dvbdev.FrontendHandle) {
	_, _ = fe.ReadStatus()
}
