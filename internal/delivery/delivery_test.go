package delivery

import (
	"fmt"
	"testing"

	"github.com/mpostema/dvbstreamer/internal/dvbdev"
	"github.com/mpostema/dvbstreamer/internal/dvbxml"
)

func TestNewRegistryOneModulePerFamily(t *testing.T) {
	caps := dvbdev.Capabilities{
		DeliverySys: []dvbdev.DeliverySystemID{
			dvbdev.SysDVBS, dvbdev.SysDVBS2, dvbdev.SysDVBT, dvbdev.SysDVBT2,
		},
	}
	reg := NewRegistry(caps, nil)
	if len(reg.Systems()) != 2 {
		t.Fatalf("expected one module per distinct family, got %d", len(reg.Systems()))
	}
}

func TestRegistrySelectReturnsFirstCapable(t *testing.T) {
	caps := dvbdev.Capabilities{
		DeliverySys: []dvbdev.DeliverySystemID{dvbdev.SysDVBS2, dvbdev.SysDVBT2, dvbdev.SysDVBC_ANNEX_A},
	}
	reg := NewRegistry(caps, nil)

	if s := reg.Select(dvbdev.SysDVBS2); s == nil || !s.IsCapableOf(dvbdev.SysDVBS2) {
		t.Fatalf("expected a satellite-capable module for SysDVBS2")
	}
	if s := reg.Select(dvbdev.SysDVBC_ANNEX_B); s == nil || !s.IsCapableOf(dvbdev.SysDVBC_ANNEX_B) {
		t.Fatalf("expected the cable module to also serve Annex B, got %v", s)
	}
	if s := reg.Select(dvbdev.SysATSC); s != nil {
		t.Fatalf("expected no module capable of ATSC, got %v", s)
	}
}

func TestNewRegistrySkipsUnknownFamilies(t *testing.T) {
	caps := dvbdev.Capabilities{DeliverySys: []dvbdev.DeliverySystemID{dvbdev.SysATSC}}
	reg := NewRegistry(caps, nil)
	if len(reg.Systems()) != 0 {
		t.Fatalf("expected no modules registered for an unrecognized family, got %d", len(reg.Systems()))
	}
}

func TestRegistrySystemsToXMLWriteFamilyPerPrefix(t *testing.T) {
	caps := dvbdev.Capabilities{
		DeliverySys: []dvbdev.DeliverySystemID{dvbdev.SysDVBS2, dvbdev.SysDVBT2, dvbdev.SysDVBC_ANNEX_A},
	}
	reg := NewRegistry(caps, nil)

	doc := dvbxml.NewDocument()
	for i, sys := range reg.Systems() {
		prefix := fmt.Sprintf("deliverySystem%d", i)
		sys.ToXML(doc, prefix)
		if _, ok := doc.FindElement(prefix + ".family"); !ok {
			t.Fatalf("expected a family element written at %s.family", prefix)
		}
		sys.FromXML(doc, prefix)
	}
}
