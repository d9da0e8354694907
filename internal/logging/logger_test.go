package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: Debug},
		{in: "INFO", want: Info},
		{in: "", want: Info},
		{in: "warning", want: Warn},
		{in: "error", want: Error},
		{in: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseLevel(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "json", want: JSON},
		{in: "TEXT", want: Text},
		{in: "", want: Text},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseFormat(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogTextFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Warn, Text, &buf)
	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing logged below level, got %q", buf.String())
	}
	logger.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected message in output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[WARN]") {
		t.Fatalf("expected level tag in output, got %q", buf.String())
	}
}

func TestLogTextIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Debug, Text, &buf)
	logger.Info("tuning", Field{Key: "feid", Value: 2})
	if !strings.Contains(buf.String(), "feid=2") {
		t.Fatalf("expected field in output, got %q", buf.String())
	}
}

func TestWithCarriesFieldsIntoChildLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Debug, Text, &buf).With(Field{Key: "feid", Value: 1})
	logger.Info("locked")
	if !strings.Contains(buf.String(), "feid=1") {
		t.Fatalf("expected inherited field in output, got %q", buf.String())
	}
}

func TestLogJSONProducesValidObjectWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Debug, JSON, &buf)
	logger.Error("tune failed", Field{Key: "feid", Value: 3})

	line := strings.TrimSpace(buf.String())
	idx := strings.IndexByte(line, '{')
	if idx < 0 {
		t.Fatalf("expected a JSON object in output, got %q", line)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line[idx:]), &payload); err != nil {
		t.Fatalf("decode JSON log line: %v", err)
	}
	if payload["msg"] != "tune failed" {
		t.Fatalf("msg = %v, want %q", payload["msg"], "tune failed")
	}
	if payload["level"] != "ERROR" {
		t.Fatalf("level = %v, want ERROR", payload["level"])
	}
	if payload["feid"] != float64(3) {
		t.Fatalf("feid = %v, want 3", payload["feid"])
	}
}

func TestFeIDFieldAndPIDFieldKeys(t *testing.T) {
	if f := FeIDField(5); f.Key != "feid" || f.Value != 5 {
		t.Fatalf("FeIDField(5) = %+v, want key feid value 5", f)
	}
	if f := PIDField(100); f.Key != "pid" || f.Value != uint16(100) {
		t.Fatalf("PIDField(100) = %+v, want key pid value 100", f)
	}
}

func TestNamedScopesComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger := Named(New(Debug, Text, &buf), "demux")
	logger.Info("opened")
	if !strings.Contains(buf.String(), "component=demux") {
		t.Fatalf("expected component field in output, got %q", buf.String())
	}
}

func TestNamedFallsBackToDefaultOnNilLogger(t *testing.T) {
	logger := Named(nil, "frontend")
	if logger == nil {
		t.Fatalf("expected a non-nil logger")
	}
}

func TestLevelAndFormatString(t *testing.T) {
	if Debug.String() != "DEBUG" || Error.String() != "ERROR" {
		t.Fatalf("unexpected Level.String() values")
	}
	if Text.String() != "text" || JSON.String() != "json" {
		t.Fatalf("unexpected Format.String() values")
	}
}
