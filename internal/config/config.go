// Package config loads dvbstreamerd's runtime configuration from
// defaults, a persisted JSON file, environment variables, and command
// line flags, in that order of increasing precedence.
package config

import (
	"encoding/json"
	"flag"
	"os"
	"strconv"
	"time"
)

// CLI holds the fully-resolved configuration for one run of the daemon.
type CLI struct {
	DeviceRoot       string
	ListenAddr       string
	MonitorAddr      string
	MDNSEnabled      bool
	HistoryLimit     int
	WaitOnLockMillis int
	DVRBufferSizeMB  int
	LogLevel         string
	LogFormat        string
	ConfigPath       string
}

// WaitOnLock returns WaitOnLockMillis as a time.Duration.
func (c CLI) WaitOnLock() time.Duration {
	return time.Duration(c.WaitOnLockMillis) * time.Millisecond
}

// Persistent is the subset of CLI that survives across runs in the
// config JSON file.
type Persistent struct {
	DeviceRoot       string `json:"device_root"`
	ListenAddr       string `json:"listen_addr"`
	MonitorAddr      string `json:"monitor_addr"`
	MDNSEnabled      bool   `json:"mdns_enabled"`
	HistoryLimit     int    `json:"history_limit"`
	WaitOnLockMillis int    `json:"wait_on_lock_millis"`
	DVRBufferSizeMB  int    `json:"dvr_buffer_size_mb"`
	LogLevel         string `json:"log_level"`
	LogFormat        string `json:"log_format"`
}

// DefaultPersistent returns the built-in defaults used when no config
// file exists yet.
func DefaultPersistent() Persistent {
	return Persistent{
		DeviceRoot:       "/dev/dvb",
		ListenAddr:       ":9100",
		MonitorAddr:      ":8080",
		MDNSEnabled:      true,
		HistoryLimit:     200,
		WaitOnLockMillis: 3500,
		DVRBufferSizeMB:  8,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// LoadOrCreate reads path, creating it with DefaultPersistent's values
// if it does not yet exist.
func LoadOrCreate(path string) (Persistent, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultPersistent()
			if saveErr := Save(path, cfg); saveErr != nil {
				return Persistent{}, saveErr
			}
			return cfg, nil
		}
		return Persistent{}, err
	}
	defer f.Close()

	var cfg Persistent
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return Persistent{}, err
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON.
func Save(path string, cfg Persistent) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Parse builds a CLI by layering flags (args) over environment
// variables over defaults. lookup is os.LookupEnv in production and a
// stub in tests.
func Parse(args []string, lookup func(string) (string, bool), defaults Persistent) (CLI, error) {
	cfg := CLI{}
	fs := flag.NewFlagSet("dvbstreamerd", flag.ContinueOnError)

	fs.StringVar(&cfg.DeviceRoot, "device-root", envString(lookup, "DVBSTREAMER_DEVICE_ROOT", defaults.DeviceRoot), "Root of the DVB adapter device tree")
	fs.StringVar(&cfg.ListenAddr, "listen", envString(lookup, "DVBSTREAMER_LISTEN", defaults.ListenAddr), "Control-plane listen address")
	fs.StringVar(&cfg.MonitorAddr, "monitor-addr", envString(lookup, "DVBSTREAMER_MONITOR_ADDR", defaults.MonitorAddr), "Monitor HTTP listen address (empty disables it)")
	fs.BoolVar(&cfg.MDNSEnabled, "mdns", envBool(lookup, "DVBSTREAMER_MDNS", defaults.MDNSEnabled), "Announce frontends over mDNS")
	fs.IntVar(&cfg.HistoryLimit, "history-limit", envInt(lookup, "DVBSTREAMER_HISTORY_LIMIT", defaults.HistoryLimit), "Monitor samples per frontend (stored in the config; the monitor hub does not read it and keeps 200 samples)")
	fs.IntVar(&cfg.WaitOnLockMillis, "wait-on-lock-ms", envInt(lookup, "DVBSTREAMER_WAIT_ON_LOCK_MS", defaults.WaitOnLockMillis), "Milliseconds to wait for a frontend lock after tuning")
	fs.IntVar(&cfg.DVRBufferSizeMB, "dvr-buffer-mb", envInt(lookup, "DVBSTREAMER_DVR_BUFFER_MB", defaults.DVRBufferSizeMB), "Demux buffer size in MiB")
	fs.StringVar(&cfg.LogLevel, "log-level", envString(lookup, "DVBSTREAMER_LOG_LEVEL", defaults.LogLevel), "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.LogFormat, "log-format", envString(lookup, "DVBSTREAMER_LOG_FORMAT", defaults.LogFormat), "Log format (text|json)")
	fs.StringVar(&cfg.ConfigPath, "config", envString(lookup, "DVBSTREAMER_CONFIG", "config.json"), "Path to the persisted config file")

	if err := fs.Parse(args); err != nil {
		return CLI{}, err
	}
	return cfg, nil
}

// PersistentFromCLI projects the persistable fields back out of a CLI,
// for writing back to the config file after a run with flag overrides.
func PersistentFromCLI(cfg CLI) Persistent {
	return Persistent{
		DeviceRoot:       cfg.DeviceRoot,
		ListenAddr:       cfg.ListenAddr,
		MonitorAddr:      cfg.MonitorAddr,
		MDNSEnabled:      cfg.MDNSEnabled,
		HistoryLimit:     cfg.HistoryLimit,
		WaitOnLockMillis: cfg.WaitOnLockMillis,
		DVRBufferSizeMB:  cfg.DVRBufferSizeMB,
		LogLevel:         cfg.LogLevel,
		LogFormat:        cfg.LogFormat,
	}
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(lookup func(string) (string, bool), key string, def bool) bool {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}
