package mdns

import (
	"io"
	"testing"

	"github.com/mpostema/dvbstreamer/internal/dvbdev"
)

var (
	_ io.Closer = noopCloser{}
	_ io.Closer = (*announcement)(nil)
)

func TestNoopCloserCloseReturnsNil(t *testing.T) {
	if err := (noopCloser{}).Close(); err != nil {
		t.Fatalf("noopCloser.Close() = %v, want nil", err)
	}
}

func TestDelSysTXT(t *testing.T) {
	tests := []struct {
		name string
		caps dvbdev.Capabilities
		want string
	}{
		{name: "empty", caps: dvbdev.Capabilities{}, want: ""},
		{name: "single", caps: dvbdev.Capabilities{DeliverySys: []dvbdev.DeliverySystemID{dvbdev.SysDVBS2}}, want: "6"},
		{
			name: "multiple",
			caps: dvbdev.Capabilities{DeliverySys: []dvbdev.DeliverySystemID{dvbdev.SysDVBS, dvbdev.SysDVBS2}},
			want: "5,6",
		},
	}
	for _, tt := range tests {
		if got := delSysTXT(tt.caps); got != tt.want {
			t.Fatalf("%s: delSysTXT() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
