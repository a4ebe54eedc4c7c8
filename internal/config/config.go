// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config loads keepalive settings. Defaults are overlaid by an optional
// YAML file, which is in turn overlaid by environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const DefaultPath = "keepalive.yml"

type Config struct {
	TargetCPUPercent   int      `yaml:"target_cpu_percent"`
	CPUPeriod          Duration `yaml:"cpu_period"`
	CPUCurve           bool     `yaml:"cpu_curve"`
	CPUCurveMinPercent int      `yaml:"cpu_curve_min_percent"`
	CPUCurveMaxPercent int      `yaml:"cpu_curve_max_percent"`

	TargetMemoryMB int  `yaml:"target_memory_mb"`
	MemoryLock     bool `yaml:"memory_lock"`

	StatusBind  string `yaml:"status_bind"`
	StatusPort  int    `yaml:"status_port"`
	MetricsAddr string `yaml:"metrics_addr"`

	TrafficEnabled       bool     `yaml:"traffic_enabled"`
	TrafficURL           string   `yaml:"traffic_url"`
	TrafficTotal         ByteSize `yaml:"traffic_total"`
	TrafficRate          ByteSize `yaml:"traffic_rate"`
	TrafficChunk         ByteSize `yaml:"traffic_chunk"`
	TrafficTimeoutMargin Duration `yaml:"traffic_timeout_margin"`
	TrafficRetryDelay    Duration `yaml:"traffic_retry_delay"`
	TrafficMaxRetries    int      `yaml:"traffic_max_retries"`
	TrafficWindowStart   int      `yaml:"traffic_window_start"`
	TrafficWindowEnd     int      `yaml:"traffic_window_end"`
	TrafficTimezone      string   `yaml:"traffic_timezone"`
	ScheduleInterval     Duration `yaml:"schedule_interval"`

	Debug bool `yaml:"debug"`
}

func Default() Config {
	return Config{
		TargetCPUPercent:   15,
		CPUPeriod:          Duration(100 * time.Millisecond),
		CPUCurve:           true,
		CPUCurveMinPercent: 20,
		CPUCurveMaxPercent: 50,

		TargetMemoryMB: 150,

		StatusBind: "0.0.0.0",
		StatusPort: 65080,

		TrafficEnabled:       true,
		TrafficURL:           "https://proof.ovh.net/files/1Gb.dat",
		TrafficTotal:         ByteSize(units.GiB),
		TrafficRate:          ByteSize(2 * units.MiB),
		TrafficChunk:         ByteSize(512 * units.KiB),
		TrafficTimeoutMargin: Duration(10 * time.Minute),
		TrafficRetryDelay:    Duration(5 * time.Second),
		TrafficWindowStart:   0,
		TrafficWindowEnd:     4,
		TrafficTimezone:      "UTC",
		ScheduleInterval:     Duration(30 * time.Second),
	}
}

// Load returns the defaults overlaid by the YAML file at path (if it exists)
// and then by the environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	intVar := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolVar := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	stringVar := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	durationVar := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = Duration(d)
		}
	}
	sizeVar := func(key string, dst *ByteSize) {
		if v, ok := lookup(key); ok {
			n, err := parseSize(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = ByteSize(n)
		}
	}

	intVar("TARGET_CPU_PERCENT", &c.TargetCPUPercent)
	durationVar("CPU_PERIOD", &c.CPUPeriod)
	boolVar("CPU_CURVE", &c.CPUCurve)
	intVar("CPU_CURVE_MIN_PERCENT", &c.CPUCurveMinPercent)
	intVar("CPU_CURVE_MAX_PERCENT", &c.CPUCurveMaxPercent)
	intVar("TARGET_MEMORY_MB", &c.TargetMemoryMB)
	boolVar("MEMORY_LOCK", &c.MemoryLock)
	stringVar("STATUS_BIND", &c.StatusBind)
	intVar("STATUS_PORT", &c.StatusPort)
	stringVar("METRICS_ADDR", &c.MetricsAddr)
	boolVar("TRAFFIC_ENABLED", &c.TrafficEnabled)
	stringVar("TRAFFIC_URL", &c.TrafficURL)
	sizeVar("TRAFFIC_TOTAL", &c.TrafficTotal)
	sizeVar("TRAFFIC_RATE", &c.TrafficRate)
	sizeVar("TRAFFIC_CHUNK", &c.TrafficChunk)
	durationVar("TRAFFIC_TIMEOUT_MARGIN", &c.TrafficTimeoutMargin)
	durationVar("TRAFFIC_RETRY_DELAY", &c.TrafficRetryDelay)
	intVar("TRAFFIC_MAX_RETRIES", &c.TrafficMaxRetries)
	intVar("TRAFFIC_WINDOW_START", &c.TrafficWindowStart)
	intVar("TRAFFIC_WINDOW_END", &c.TrafficWindowEnd)
	stringVar("TRAFFIC_TIMEZONE", &c.TrafficTimezone)
	durationVar("SCHEDULE_INTERVAL", &c.ScheduleInterval)
	// DEBUG also accepts "yes" and never fails the load.
	if v, ok := lookup("DEBUG"); ok {
		c.Debug = slices.Contains([]string{"1", "true", "yes"}, strings.ToLower(strings.TrimSpace(v)))
	}

	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.TargetCPUPercent >= 0 && c.TargetCPUPercent <= 100,
		"target_cpu_percent %d out of range [0,100]", c.TargetCPUPercent)
	check(c.CPUPeriod > 0, "cpu_period must be positive")
	if c.CPUCurve {
		check(c.CPUCurveMinPercent > 0 && c.CPUCurveMaxPercent <= 100 &&
			c.CPUCurveMinPercent <= c.CPUCurveMaxPercent,
			"cpu curve range %d-%d invalid", c.CPUCurveMinPercent, c.CPUCurveMaxPercent)
	}
	check(c.TargetMemoryMB >= 0, "target_memory_mb must not be negative")
	check(c.StatusPort > 0 && c.StatusPort <= 65535, "status_port %d out of range", c.StatusPort)

	if c.TrafficEnabled {
		check(c.TrafficURL != "", "traffic_url is required when traffic is enabled")
		check(c.TrafficTotal > 0, "traffic_total must be positive")
		check(c.TrafficRate > 0, "traffic_rate must be positive")
		check(c.TrafficChunk > 0, "traffic_chunk must be positive")
		check(c.TrafficRetryDelay > 0, "traffic_retry_delay must be positive")
		check(c.TrafficMaxRetries >= 0, "traffic_max_retries must not be negative")
		check(validHour(c.TrafficWindowStart), "traffic_window_start %d out of range [0,23]", c.TrafficWindowStart)
		check(validHour(c.TrafficWindowEnd), "traffic_window_end %d out of range [0,23]", c.TrafficWindowEnd)
		check(c.ScheduleInterval > 0, "schedule_interval must be positive")
		if _, err := time.LoadLocation(c.TrafficTimezone); err != nil {
			errs = append(errs, fmt.Errorf("%w: traffic_timezone: %w", ErrInvalid, err))
		}
	}

	return errors.Join(errs...)
}

// CPUTarget is the duty-cycle target as a fraction.
func (c *Config) CPUTarget() float64 {
	return float64(c.TargetCPUPercent) / 100
}

func (c *Config) StatusAddr() string {
	return net.JoinHostPort(c.StatusBind, strconv.Itoa(c.StatusPort))
}

func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.TrafficTimezone)
}

// TrafficTimeout is the nominal transfer duration plus the safety margin.
func (c *Config) TrafficTimeout() time.Duration {
	nominal := time.Duration(float64(c.TrafficTotal) / float64(c.TrafficRate) * float64(time.Second))
	return nominal + c.TrafficTimeoutMargin.Std()
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}
