package frontend

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mpostema/dvbstreamer/internal/dvbdev"
)

func TestNewStartsUnopenedWithClosedHandles(t *testing.T) {
	fe := New(3, Paths{}, nil)
	if fe.FeID() != 3 {
		t.Fatalf("FeID() = %d, want 3", fe.FeID())
	}
	if fe.State() != Unopened {
		t.Fatalf("State() = %v, want Unopened", fe.State())
	}
	if fe.fe.Open() || fe.demux.Open() || fe.dvr.Open() {
		t.Fatalf("a freshly constructed Frontend must report every handle closed")
	}
}

func TestSetWaitOnLockTimeoutClamps(t *testing.T) {
	fe := New(0, Paths{}, nil)

	fe.SetWaitOnLockTimeout(-time.Second)
	if fe.waitOnLockTimeout != 0 {
		t.Fatalf("negative timeout should clamp to 0, got %v", fe.waitOnLockTimeout)
	}

	fe.SetWaitOnLockTimeout(10 * time.Second)
	if fe.waitOnLockTimeout != maxWaitOnLockMS*time.Millisecond {
		t.Fatalf("timeout should clamp to %dms, got %v", maxWaitOnLockMS, fe.waitOnLockTimeout)
	}

	fe.SetWaitOnLockTimeout(500 * time.Millisecond)
	if fe.waitOnLockTimeout != 500*time.Millisecond {
		t.Fatalf("in-range timeout should pass through unchanged, got %v", fe.waitOnLockTimeout)
	}
}

func TestSetDVRBufferSizeMBClamps(t *testing.T) {
	fe := New(0, Paths{}, nil)

	fe.SetDVRBufferSizeMB(-1)
	if fe.dvrBufferSizeMB != 0 {
		t.Fatalf("negative size should clamp to 0, got %d", fe.dvrBufferSizeMB)
	}

	fe.SetDVRBufferSizeMB(1000)
	if fe.dvrBufferSizeMB != maxDVRBufferMB {
		t.Fatalf("size should clamp to %d, got %d", maxDVRBufferMB, fe.dvrBufferSizeMB)
	}
}

func TestSetupOnMissingDeviceLeavesOpenedIdleWithNotFoundCaps(t *testing.T) {
	paths := Paths{Frontend: filepath.Join(t.TempDir(), "no-such-frontend")}
	fe := New(0, paths, nil)

	if err := fe.Setup(); err != nil {
		t.Fatalf("Setup on a missing device must not error, got %v", err)
	}
	if fe.State() != OpenedIdle {
		t.Fatalf("State() = %v, want OpenedIdle", fe.State())
	}
	if fe.Capabilities().Name != "Not Found" {
		t.Fatalf("Capabilities().Name = %q, want %q", fe.Capabilities().Name, "Not Found")
	}

	// A second Setup call must be a no-op regardless of device state.
	if err := fe.Setup(); err != nil {
		t.Fatalf("second Setup call: %v", err)
	}
}

func TestNormalizeLegacyScale(t *testing.T) {
	tests := []struct {
		raw  uint32
		want uint16
	}{
		{raw: 0, want: 0},
		{raw: 0xffff, want: 240},
		{raw: 0x7fff, want: 119},
	}
	for _, tt := range tests {
		if got := normalizeLegacyScale(tt.raw); got != tt.want {
			t.Fatalf("normalizeLegacyScale(%#x) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestIsTemporaryOnlyMatchesRetryableErrors(t *testing.T) {
	if isTemporary(nil) {
		t.Fatalf("a nil error must not be temporary")
	}
}

func TestDeliverySystemCountsAppliesAdvertiseOverride(t *testing.T) {
	fe := New(0, Paths{}, nil)
	fe.caps = dvbdev.Capabilities{
		DeliverySys: []dvbdev.DeliverySystemID{
			dvbdev.SysDVBS, dvbdev.SysDVBS2, dvbdev.SysDVBC_ANNEX_A,
		},
	}

	physical := fe.DeliverySystemCounts()
	if physical.DVBS2 != 2 || physical.DVBC != 1 {
		t.Fatalf("unexpected physical counts: %+v", physical)
	}

	fe.Transform().AdvertiseAsDVBS2(true)
	masqueraded := fe.DeliverySystemCounts()
	if masqueraded.DVBS2 != physical.DVBC {
		t.Fatalf("advertising as DVB-S2 should report the cable count, got %+v", masqueraded)
	}
	fe.Transform().AdvertiseAsDVBS2(false)

	fe.Transform().AdvertiseAsDVBC(true)
	masqueraded = fe.DeliverySystemCounts()
	if masqueraded.DVBC != physical.DVBS2 {
		t.Fatalf("advertising as DVB-C should report the DVB-S2 count, got %+v", masqueraded)
	}
}

func TestToXMLFromXMLRoundTripsTuningLimitsAndTransform(t *testing.T) {
	fe := New(0, Paths{}, nil)
	fe.SetDVRBufferSizeMB(42)
	fe.SetWaitOnLockTimeout(1500 * time.Millisecond)
	fe.Transform().AdvertiseAsDVBS2(true)

	data, err := fe.ToXML()
	if err != nil {
		t.Fatalf("ToXML: %v", err)
	}

	restored := New(0, Paths{}, nil)
	if err := restored.FromXML(data); err != nil {
		t.Fatalf("FromXML: %v", err)
	}

	if restored.dvrBufferSizeMB != 42 {
		t.Fatalf("dvrBufferSizeMB = %d, want 42", restored.dvrBufferSizeMB)
	}
	if restored.waitOnLockTimeout != 1500*time.Millisecond {
		t.Fatalf("waitOnLockTimeout = %v, want 1500ms", restored.waitOnLockTimeout)
	}
	if !restored.Transform().AdvertisedAsDVBS2() {
		t.Fatalf("expected AdvertiseAsDVBS2 to round trip")
	}
}
