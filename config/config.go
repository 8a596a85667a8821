// Package config loads the monitor configuration by merging built-in defaults
// with an optional JSON override file. Values are fixed for the lifetime of
// the process; every other component reads the resulting struct and nothing
// writes it after Load returns.
package config

import (
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds every tunable of the dump monitor. Interval and timeout fields
// are in seconds, matching the JSON keys of the configuration file.
type Config struct {
	DeviceDumpPath       string `json:"device_dump_path"`
	DeviceQueueFile      string `json:"device_queue_file"`
	LocalSavePath        string `json:"local_save_path"`
	UseLogcat            bool   `json:"use_logcat"`
	PollIntervalSeconds  int    `json:"poll_interval"`
	PullWorkers          int    `json:"pull_workers"`
	StatsIntervalSeconds int    `json:"stats_interval"`
	ADBTimeoutSeconds    int    `json:"adb_timeout"`
	MaxRetries           int    `json:"max_retries"`
	RetryDelaySeconds    int    `json:"retry_delay"`
	LogFile              string `json:"log_file"`
	LogLevel             string `json:"log_level"`
	ADBPath              string `json:"adb_path"`
	ManifestDB           string `json:"manifest_db"`
}

// Default returns the built-in configuration used when no override file is
// present. Paths mirror the vendor audio dump layout on the device.
func Default() Config {
	return Config{
		DeviceDumpPath:       "/data/vendor/audio_dump/",
		DeviceQueueFile:      "/data/vendor/audio_dump/.queue",
		LocalSavePath:        "./audio_dumps",
		UseLogcat:            true,
		PollIntervalSeconds:  10,
		PullWorkers:          2,
		StatsIntervalSeconds: 60,
		ADBTimeoutSeconds:    30,
		MaxRetries:           3,
		RetryDelaySeconds:    2,
		LogFile:              "audio_dump_monitor.log",
		LogLevel:             "info",
		ADBPath:              "adb",
		ManifestDB:           "",
	}
}

// Load reads a JSON override file and merges it over the defaults; file values
// win. A missing file is not an error. A malformed or unreadable file returns
// the pristine defaults together with the error so the caller can log a
// warning and continue starting up.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Default(), fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize clamps values that would break the worker pool or the timing
// loops. Out-of-range overrides fall back to the corresponding default.
func (c *Config) normalize() {
	def := Default()
	if c.PullWorkers < 1 {
		c.PullWorkers = def.PullWorkers
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = def.MaxRetries
	}
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = def.PollIntervalSeconds
	}
	if c.StatsIntervalSeconds <= 0 {
		c.StatsIntervalSeconds = def.StatsIntervalSeconds
	}
	if c.ADBTimeoutSeconds <= 0 {
		c.ADBTimeoutSeconds = def.ADBTimeoutSeconds
	}
	if c.RetryDelaySeconds < 0 {
		c.RetryDelaySeconds = def.RetryDelaySeconds
	}
	if strings.TrimSpace(c.ADBPath) == "" {
		c.ADBPath = def.ADBPath
	}
}
