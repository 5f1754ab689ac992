package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, "mqtt", cfg.Source)
	assert.Equal(t, 250.0, cfg.SampleRate)
	assert.Equal(t, 10*time.Second, cfg.EpochWindow)
	assert.Equal(t, 20, cfg.RunRepeats)
	assert.Equal(t, 0.26, cfg.EngagementThreshold)
	assert.Equal(t, "clickhouse", cfg.StoreBackend)
	assert.Equal(t, 2500, cfg.WindowSamples())
	assert.Equal(t, 7500, cfg.BufferSamples())
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("EEG_SOURCE", "synthetic")
	t.Setenv("EPOCH_WINDOW", "2s")
	t.Setenv("RUN_REPEATS", "3")
	t.Setenv("ENGAGEMENT_THRESHOLD", "0.4")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("EXPORT_EDF", "false")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, "synthetic", cfg.Source)
	assert.Equal(t, 2*time.Second, cfg.EpochWindow)
	assert.Equal(t, 3, cfg.RunRepeats)
	assert.Equal(t, 0.4, cfg.EngagementThreshold)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.False(t, cfg.ExportEDF)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("EEG_DEVICE_ID=lab-7\nRUN_REPEATS=5\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("EEG_DEVICE_ID")
		os.Unsetenv("RUN_REPEATS")
	})

	cfg := Load(path)

	assert.Equal(t, "lab-7", cfg.DeviceID)
	assert.Equal(t, 5, cfg.RunRepeats)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("EEG_SAMPLE_RATE", "fast")
	t.Setenv("EPOCH_WINDOW", "ten seconds")
	t.Setenv("RUN_REPEATS", "many")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, 250.0, cfg.SampleRate)
	assert.Equal(t, 10*time.Second, cfg.EpochWindow)
	assert.Equal(t, 20, cfg.RunRepeats)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"negative window", func(c *Config) { c.EpochWindow = -time.Second }, true},
		{"zero repeats", func(c *Config) { c.RunRepeats = 0 }, true},
		{"negative queue", func(c *Config) { c.PersistQueueSize = -1 }, true},
		{"unknown source", func(c *Config) { c.Source = "bluetooth" }, true},
		{"unknown backend", func(c *Config) { c.StoreBackend = "sqlite" }, true},
		{"postgres backend", func(c *Config) { c.StoreBackend = "postgres" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
threshold: 0.3
bands:
  theta: [3.5, 7.5]
  beta: [12, 30]
`), 0o644))

	settings, err := LoadProfile(path, DefaultEngagementSettings(0.26))
	require.NoError(t, err)

	assert.Equal(t, 0.3, settings.Threshold)
	assert.Equal(t, 3.5, settings.Theta.Low)
	assert.Equal(t, 7.5, settings.Theta.High)
	assert.Equal(t, 8.0, settings.Alpha.Low, "alpha keeps its default")
	assert.Equal(t, 30.0, settings.Beta.High)
}

func TestLoadProfile_Invalid(t *testing.T) {
	tests := map[string]string{
		"inverted band": "bands:\n  alpha: [13, 8]\n",
		"single edge":   "bands:\n  alpha: [8]\n",
		"unknown band":  "bands:\n  gamma: [32, 45]\n",
		"bad yaml":      "threshold: [\n",
		"negative":      "threshold: -1\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "profile.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			base := DefaultEngagementSettings(0.26)
			settings, err := LoadProfile(path, base)
			assert.Error(t, err)
			assert.Equal(t, base, settings)
		})
	}
}

func TestLoadProfile_ExplicitZeroThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold: 0\n"), 0o644))

	settings, err := LoadProfile(path, DefaultEngagementSettings(0.26))
	require.NoError(t, err)
	assert.Zero(t, settings.Threshold)

	// left out keeps the base
	require.NoError(t, os.WriteFile(path, []byte("bands:\n  beta: [13, 30]\n"), 0o644))
	settings, err = LoadProfile(path, DefaultEngagementSettings(0.26))
	require.NoError(t, err)
	assert.Equal(t, 0.26, settings.Threshold)
}

// watchProfile starts WatchProfile on path and returns the settings it applies
func watchProfile(t *testing.T, path string) <-chan EngagementSettings {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan EngagementSettings, 16)
	done := make(chan error, 1)
	go func() {
		done <- WatchProfile(ctx, path, DefaultEngagementSettings(0.26), func(s EngagementSettings) {
			select {
			case updates <- s:
			default:
			}
		})
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	return updates
}

// waitThreshold waits for a reload carrying want. A write can surface as
// several events (truncate, then data).
func waitThreshold(t *testing.T, updates <-chan EngagementSettings, want float64) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-updates:
			if s.Threshold == want {
				return
			}
		case <-deadline:
			t.Fatalf("no reload with threshold %v observed", want)
		}
	}
}

// replaceFile writes body to a temp file and renames it over path
func replaceFile(t *testing.T, path, body string) {
	t.Helper()

	tmp := filepath.Join(filepath.Dir(path), ".profile.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(body), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestWatchProfile_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold: 0.26\n"), 0o644))

	updates := watchProfile(t, path)

	require.NoError(t, os.WriteFile(path, []byte("threshold: 0.5\n"), 0o644))
	waitThreshold(t, updates, 0.5)
}

func TestWatchProfile_SurvivesRenameSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold: 0.26\n"), 0o644))

	updates := watchProfile(t, path)

	replaceFile(t, path, "threshold: 0.4\n")
	waitThreshold(t, updates, 0.4)

	replaceFile(t, path, "threshold: 0.7\n")
	waitThreshold(t, updates, 0.7)

	require.NoError(t, os.WriteFile(path, []byte("threshold: 0.9\n"), 0o644))
	waitThreshold(t, updates, 0.9)
}

func TestWatchProfile_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold: 0.26\n"), 0o644))

	updates := watchProfile(t, path)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("threshold: 0.8\n"), 0o644))

	select {
	case s := <-updates:
		t.Fatalf("unexpected reload with threshold %v", s.Threshold)
	case <-time.After(200 * time.Millisecond):
	}
}
