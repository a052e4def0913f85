package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	opts, err := loadConfig([]string{"/dev/ttyACM0", "/dev/ttyACM1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"/dev/ttyACM0", "/dev/ttyACM1"}, opts.Ports)
	assert.Equal(t, "subjectdata", opts.OutDir)
	assert.Equal(t, 115200, opts.Baud)
	assert.Equal(t, 10*24*time.Hour, opts.Retention)
	assert.Equal(t, time.Second, opts.WatchdogTick)
	assert.Equal(t, 10, opts.WatchdogThreshold)
	assert.Equal(t, 10*time.Minute, opts.MaintenanceInterval)
	assert.Equal(t, 1, opts.MaintenanceConcurrency)
	assert.Equal(t, "info", opts.LogLevel)
	assert.False(t, opts.NoDelete)
	assert.Empty(t, opts.Journal)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, "arimu.yaml", `
ports: [COM3, COM4]
outdir: /data/arimu
retention: 48h
watchdog:
  tick: 500ms
  threshold: 4
maintenance:
  interval: 1m
  concurrency: 2
log:
  level: debug
no_delete: true
journal: arimu.db
`)

	opts, err := loadConfig([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, []string{"COM3", "COM4"}, opts.Ports)
	assert.Equal(t, "/data/arimu", opts.OutDir)
	assert.Equal(t, 48*time.Hour, opts.Retention)
	assert.Equal(t, 500*time.Millisecond, opts.WatchdogTick)
	assert.Equal(t, 4, opts.WatchdogThreshold)
	assert.Equal(t, time.Minute, opts.MaintenanceInterval)
	assert.Equal(t, 2, opts.MaintenanceConcurrency)
	assert.Equal(t, "debug", opts.LogLevel)
	assert.True(t, opts.NoDelete)
	assert.Equal(t, "arimu.db", opts.Journal)
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeConfig(t, "arimu.json", `{"ports": ["COM3"], "outdir": "from-file", "retention": "48h", "retries": 2}`)
	t.Setenv("ARIMU_RETENTION", "72h")
	t.Setenv("ARIMU_OUTDIR", "from-env")

	opts, err := loadConfig([]string{"--config", path, "--outdir", "from-flag"})
	require.NoError(t, err)

	assert.Equal(t, "from-flag", opts.OutDir, "flag beats env")
	assert.Equal(t, 72*time.Hour, opts.Retention, "env beats file")
	assert.Equal(t, 2, opts.Retries, "file beats default")
}

func TestLoadConfigEnvNestedKey(t *testing.T) {
	t.Setenv("ARIMU_WATCHDOG_THRESHOLD", "3")
	t.Setenv("ARIMU_NO_DELETE", "true")

	opts, err := loadConfig([]string{"COM3"})
	require.NoError(t, err)
	assert.Equal(t, 3, opts.WatchdogThreshold)
	assert.True(t, opts.NoDelete)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no ports", nil},
		{"negative simulate", []string{"--simulate", "-1"}},
		{"zero baud", []string{"--baud", "0", "COM3"}},
		{"negative retention", []string{"--retention", "-1h", "COM3"}},
		{"zero retention", []string{"--retention", "0s", "COM3"}},
		{"zero watchdog tick", []string{"--watchdog.tick", "0s", "COM3"}},
		{"zero maintenance interval", []string{"--maintenance.interval", "0s", "COM3"}},
		{"unknown flag", []string{"--bogus", "COM3"}},
		{"missing config file", []string{"--config", "/nonexistent/arimu.yaml", "COM3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigWithoutPorts(t *testing.T) {
	t.Run("list ports", func(t *testing.T) {
		opts, err := loadConfig([]string{"--list-ports"})
		require.NoError(t, err)
		assert.True(t, opts.ListPorts)
	})

	t.Run("simulate", func(t *testing.T) {
		opts, err := loadConfig([]string{"--simulate", "3"})
		require.NoError(t, err)
		assert.Equal(t, 3, opts.Simulate)
		assert.Empty(t, opts.Ports)
	})
}
