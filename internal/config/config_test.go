package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ".chameleon", cfg.DataDir)
	assert.Equal(t, 10, cfg.Engine.MinDataPoints)
	assert.Equal(t, "5m", cfg.Engine.AdaptationCooldown)
	assert.Equal(t, "file", cfg.Snapshot.Backend)
}

func TestLoad_OverridesMergeOntoDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/chameleon-test
engine:
  min_data_points: 25
  adaptation_cooldown: 10m
snapshot:
  backend: sqlite
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Engine.MinDataPoints)
	assert.Equal(t, "10m", cfg.Engine.AdaptationCooldown)
	// Untouched fields keep their defaults.
	assert.Equal(t, 12, cfg.Engine.MaxAdaptationsPerHour)
	assert.Equal(t, "sqlite", cfg.Snapshot.Backend)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad yaml",
			content: "engine: [not a map",
			wantErr: "failed to parse",
		},
		{
			name: "unknown backend",
			content: `
data_dir: /tmp/x
snapshot:
  backend: redis
`,
			wantErr: "oneof",
		},
		{
			name: "bad duration",
			content: `
data_dir: /tmp/x
engine:
  adaptation_cooldown: five minutes
`,
			wantErr: "adaptation_cooldown",
		},
		{
			name: "threshold out of range",
			content: `
data_dir: /tmp/x
engine:
  adaptation_threshold: 1.5
`,
			wantErr: "lte",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEngineSettings(t *testing.T) {
	cfg := Default()
	cfg.Engine.AdaptationCooldown = "90s"
	cfg.Engine.PredictionInterval = "2m"

	got := cfg.EngineSettings()
	assert.Equal(t, 90*time.Second, got.Tunables.AdaptationCooldown)
	assert.Equal(t, 2*time.Minute, got.PredictionInterval)
	assert.Equal(t, 10000, got.HistoryCap)
	assert.Equal(t, 100, got.SnapshotEvery)
}

func TestSnapshotPath(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/chameleon"
	assert.Equal(t, "/var/lib/chameleon/snapshot.json", cfg.SnapshotPath())

	cfg.Snapshot.Backend = "sqlite"
	assert.Equal(t, "/var/lib/chameleon/snapshot.db", cfg.SnapshotPath())

	cfg.Snapshot.Path = "/explicit/state.db"
	assert.Equal(t, "/explicit/state.db", cfg.SnapshotPath())
}
