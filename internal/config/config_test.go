// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.TargetCPUPercent)
	assert.Equal(t, 150, cfg.TargetMemoryMB)
	assert.Equal(t, "0.0.0.0:65080", cfg.StatusAddr())
	assert.InDelta(t, 0.15, cfg.CPUTarget(), 1e-9)
	assert.Equal(t, 30*time.Second, cfg.ScheduleInterval.Std())
	assert.Equal(t, ByteSize(512*units.KiB), cfg.TrafficChunk)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keepalive.yml")
	data := `
target_cpu_percent: 25
target_memory_mb: 64
traffic_total: 100MiB
traffic_rate: 1m
traffic_retry_delay: 2s
traffic_window_start: 22
traffic_window_end: 3
traffic_timezone: Asia/Shanghai
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	t.Setenv("TARGET_MEMORY_MB", "0")
	t.Setenv("TRAFFIC_CHUNK", "64k")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.TargetCPUPercent)
	assert.Equal(t, 0, cfg.TargetMemoryMB)
	assert.Equal(t, ByteSize(100*units.MiB), cfg.TrafficTotal)
	assert.Equal(t, ByteSize(units.MiB), cfg.TrafficRate)
	assert.Equal(t, ByteSize(64*units.KiB), cfg.TrafficChunk)
	assert.Equal(t, 2*time.Second, cfg.TrafficRetryDelay.Std())
	assert.Equal(t, 22, cfg.TrafficWindowStart)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Shanghai", loc.String())
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "cpu above 100", env: map[string]string{"TARGET_CPU_PERCENT": "120"}},
		{name: "cpu not a number", env: map[string]string{"TARGET_CPU_PERCENT": "lots"}},
		{name: "bad hour", env: map[string]string{"TRAFFIC_WINDOW_END": "24"}},
		{name: "bad zone", env: map[string]string{"TRAFFIC_TIMEZONE": "Mars/Olympus"}},
		{name: "bad size", env: map[string]string{"TRAFFIC_RATE": "fast"}},
		{name: "zero rate", env: map[string]string{"TRAFFIC_RATE": "0"}},
		{name: "bad duration", env: map[string]string{"TRAFFIC_RETRY_DELAY": "5"}},
		{name: "zero retry delay", env: map[string]string{"TRAFFIC_RETRY_DELAY": "0s"}},
		{name: "inverted curve", env: map[string]string{"CPU_CURVE_MIN_PERCENT": "60"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestValidateSkipsTrafficWhenDisabled(t *testing.T) {
	cfg := Default()
	cfg.TrafficEnabled = false
	cfg.TrafficRate = 0

	assert.NoError(t, cfg.Validate())
}

func TestValidateWrapsErrInvalid(t *testing.T) {
	cfg := Default()
	cfg.StatusPort = 0

	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestTrafficTimeout(t *testing.T) {
	cfg := Default()
	cfg.TrafficTotal = ByteSize(10 * units.MiB)
	cfg.TrafficRate = ByteSize(units.MiB)
	cfg.TrafficTimeoutMargin = Duration(time.Minute)

	assert.Equal(t, 70*time.Second, cfg.TrafficTimeout())
}

func TestParseSize(t *testing.T) {
	for in, want := range map[string]int64{
		"1024":   1024,
		"512k":   512 * units.KiB,
		"512KiB": 512 * units.KiB,
		"1GB":    units.GiB,
		"2m":     2 * units.MiB,
	} {
		got, err := parseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestLoadDebugFromEnv(t *testing.T) {
	for v, want := range map[string]bool{"1": true, "YES": true, "true": true, "0": false, "nope": false} {
		t.Setenv("DEBUG", v)
		cfg, err := Load("")
		require.NoError(t, err, v)
		assert.Equal(t, want, cfg.Debug, v)
	}
}
