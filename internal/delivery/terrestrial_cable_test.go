package delivery

import "testing"

func TestTerrestrialModulationCode(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"16", 1}, {"64", 3}, {"256", 4}, {"unknown", 10},
	}
	for _, tt := range tests {
		if got := terrestrialModulationCode(tt.in); got != tt.want {
			t.Fatalf("terrestrialModulationCode(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTransmissionModeCode(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"2k", 0}, {"8k", 1}, {"4k", 2}, {"1k", 3}, {"16k", 4}, {"32k", 5}, {"", 9},
	}
	for _, tt := range tests {
		if got := transmissionModeCode(tt.in); got != tt.want {
			t.Fatalf("transmissionModeCode(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestGuardIntervalCode(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"1/32", 0}, {"1/16", 1}, {"1/8", 2}, {"1/4", 3},
		{"1/128", 4}, {"19/128", 5}, {"19/256", 6}, {"", 7},
	}
	for _, tt := range tests {
		if got := guardIntervalCode(tt.in); got != tt.want {
			t.Fatalf("guardIntervalCode(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCableModulationCode(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"16", 1}, {"32", 2}, {"64", 3}, {"128", 5}, {"256", 4}, {"", 10},
	}
	for _, tt := range tests {
		if got := cableModulationCode(tt.in); got != tt.want {
			t.Fatalf("cableModulationCode(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
