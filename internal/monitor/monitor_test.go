package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mpostema/dvbstreamer/internal/frontenddata"
)

func TestBufferReportTrimsToHistoryLimit(t *testing.T) {
	buf := NewBuffer(3)
	for i := 0; i < 5; i++ {
		buf.Report(frontenddata.MonitorSnapshot{Strength0To240: uint16(i)})
	}
	history := buf.History()
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	if history[0].Snapshot.Strength0To240 != 2 {
		t.Fatalf("expected the oldest 2 samples to be trimmed, got %+v", history[0])
	}
}

func TestBufferSmoothedAveragesStrengthAndSNR(t *testing.T) {
	buf := NewBuffer(10)
	buf.Report(frontenddata.MonitorSnapshot{Strength0To240: 100, SNR0To15: 10})
	buf.Report(frontenddata.MonitorSnapshot{Strength0To240: 200, SNR0To15: 14})

	strength, snr := buf.Smoothed()
	if strength != 150 {
		t.Fatalf("strength = %v, want 150", strength)
	}
	if snr != 12 {
		t.Fatalf("snr = %v, want 12", snr)
	}
}

func TestBufferSmoothedEmptyReturnsZero(t *testing.T) {
	buf := NewBuffer(10)
	strength, snr := buf.Smoothed()
	if strength != 0 || snr != 0 {
		t.Fatalf("expected zero values on an empty buffer, got %v/%v", strength, snr)
	}
}

func TestBufferSubscribeReceivesNewSamples(t *testing.T) {
	buf := NewBuffer(10)
	ch, cancel := buf.Subscribe()
	defer cancel()

	buf.Report(frontenddata.MonitorSnapshot{Strength0To240: 77})

	select {
	case sample := <-ch:
		if sample.Snapshot.Strength0To240 != 77 {
			t.Fatalf("unexpected sample %+v", sample)
		}
	default:
		t.Fatalf("expected a buffered sample on the subscriber channel")
	}
}

func TestParseFrontendPath(t *testing.T) {
	tests := []struct {
		path     string
		wantID   int
		wantRest string
		wantOK   bool
	}{
		{path: "/api/frontends/0/history", wantID: 0, wantRest: "history", wantOK: true},
		{path: "/api/frontends/3/live", wantID: 3, wantRest: "live", wantOK: true},
		{path: "/api/frontends/abc/live", wantOK: false},
		{path: "/api/frontends/1", wantOK: false},
	}
	for _, tt := range tests {
		id, rest, ok := parseFrontendPath(tt.path)
		if ok != tt.wantOK {
			t.Fatalf("parseFrontendPath(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
		}
		if ok && (id != tt.wantID || rest != tt.wantRest) {
			t.Fatalf("parseFrontendPath(%q) = (%d, %q), want (%d, %q)", tt.path, id, rest, tt.wantID, tt.wantRest)
		}
	}
}

func TestHubHistoryHandlerServesJSON(t *testing.T) {
	hub := NewHub()
	hub.Buffer(5).Report(frontenddata.MonitorSnapshot{Strength0To240: 42})

	mux := http.NewServeMux()
	hub.RegisterHandlers(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/frontends/5/history", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var samples []Sample
	if err := json.Unmarshal(rec.Body.Bytes(), &samples); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(samples) != 1 || samples[0].Snapshot.Strength0To240 != 42 {
		t.Fatalf("unexpected samples: %+v", samples)
	}
}
