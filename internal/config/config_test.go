package config

import (
	"os"
	"path/filepath"
	"testing"
)

func noEnv(string) (string, bool) { return "", false }

func TestParseUsesDefaultsWithNoOverrides(t *testing.T) {
	cli, err := Parse(nil, noEnv, DefaultPersistent())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := DefaultPersistent()
	if cli.DeviceRoot != want.DeviceRoot || cli.ListenAddr != want.ListenAddr || cli.MDNSEnabled != want.MDNSEnabled {
		t.Fatalf("unexpected defaults: %+v", cli)
	}
}

func TestParseEnvOverridesDefaults(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "DVBSTREAMER_DEVICE_ROOT" {
			return "/custom/dvb", true
		}
		return "", false
	}
	cli, err := Parse(nil, lookup, DefaultPersistent())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cli.DeviceRoot != "/custom/dvb" {
		t.Fatalf("DeviceRoot = %q, want /custom/dvb", cli.DeviceRoot)
	}
}

func TestParseFlagsOverrideEnvAndDefaults(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "DVBSTREAMER_DEVICE_ROOT" {
			return "/from-env", true
		}
		return "", false
	}
	cli, err := Parse([]string{"-device-root", "/from-flag"}, lookup, DefaultPersistent())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cli.DeviceRoot != "/from-flag" {
		t.Fatalf("DeviceRoot = %q, want /from-flag", cli.DeviceRoot)
	}
}

func TestWaitOnLockConvertsMillisToDuration(t *testing.T) {
	cli := CLI{WaitOnLockMillis: 1500}
	if got := cli.WaitOnLock(); got.Milliseconds() != 1500 {
		t.Fatalf("WaitOnLock() = %v, want 1500ms", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	original := DefaultPersistent()
	original.ListenAddr = ":9999"

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != original {
		t.Fatalf("got %+v, want %+v", loaded, original)
	}
}

func TestLoadOrCreateWritesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file to not exist yet")
	}

	loaded, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != DefaultPersistent() {
		t.Fatalf("got %+v, want defaults", loaded)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
}
