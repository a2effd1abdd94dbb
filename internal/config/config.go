// Package config holds chameleon's YAML configuration: engine tunables,
// snapshot backend selection, and logging switches. Durations are written as
// Go duration strings ("5m", "60s").
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"chameleon/internal/engine"
)

// Config is the root configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir" validate:"required"`
	Engine   EngineConfig   `yaml:"engine"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// EngineConfig configures the strategy-control loop.
type EngineConfig struct {
	HistoryCap            int     `yaml:"history_cap" validate:"gte=100"`
	MinDataPoints         int     `yaml:"min_data_points" validate:"gte=1"`
	AdaptationCooldown    string  `yaml:"adaptation_cooldown" validate:"required"`
	MaxAdaptationsPerHour int     `yaml:"max_adaptations_per_hour" validate:"gte=1"`
	AdaptationThreshold   float64 `yaml:"adaptation_threshold" validate:"gt=0,lte=1"`
	SnapshotEvery         int     `yaml:"snapshot_every" validate:"gte=1"`
	PredictionInterval    string  `yaml:"prediction_interval" validate:"required"`
	PredictionWindow      int     `yaml:"prediction_window" validate:"gte=1"`
}

// SnapshotConfig selects the persistence backend.
type SnapshotConfig struct {
	Backend string `yaml:"backend" validate:"oneof=file sqlite none"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls the category file logs.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		DataDir: ".chameleon",
		Engine: EngineConfig{
			HistoryCap:            10000,
			MinDataPoints:         10,
			AdaptationCooldown:    "5m",
			MaxAdaptationsPerHour: 12,
			AdaptationThreshold:   0.7,
			SnapshotEvery:         100,
			PredictionInterval:    "60s",
			PredictionWindow:      100,
		},
		Snapshot: SnapshotConfig{
			Backend: "file",
			Path:    "", // defaults to <data_dir>/snapshot.json
		},
	}
}

// Load reads a YAML config file over the defaults and validates the result.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks struct tags and duration fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			first := verrs[0]
			return fmt.Errorf("invalid config: field %s failed %q", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.ParseDuration(c.Engine.AdaptationCooldown); err != nil {
		return fmt.Errorf("invalid adaptation_cooldown: %w", err)
	}
	if _, err := time.ParseDuration(c.Engine.PredictionInterval); err != nil {
		return fmt.Errorf("invalid prediction_interval: %w", err)
	}
	return nil
}

// EngineSettings converts the validated config into engine construction
// settings.
func (c *Config) EngineSettings() engine.Config {
	cooldown, _ := time.ParseDuration(c.Engine.AdaptationCooldown)
	interval, _ := time.ParseDuration(c.Engine.PredictionInterval)
	return engine.Config{
		Tunables: engine.Tunables{
			MinDataPoints:         c.Engine.MinDataPoints,
			AdaptationCooldown:    cooldown,
			MaxAdaptationsPerHour: c.Engine.MaxAdaptationsPerHour,
			AdaptationThreshold:   c.Engine.AdaptationThreshold,
		},
		HistoryCap:         c.Engine.HistoryCap,
		SnapshotEvery:      c.Engine.SnapshotEvery,
		PredictionInterval: interval,
		PredictionWindow:   c.Engine.PredictionWindow,
	}
}

// Tunables extracts just the runtime-adjustable gate settings, for hot
// reload.
func (c *Config) Tunables() engine.Tunables {
	return c.EngineSettings().Tunables
}

// SnapshotPath resolves the snapshot location, defaulting into the data dir.
func (c *Config) SnapshotPath() string {
	if c.Snapshot.Path != "" {
		return c.Snapshot.Path
	}
	name := "snapshot.json"
	if c.Snapshot.Backend == "sqlite" {
		name = "snapshot.db"
	}
	return filepath.Join(c.DataDir, name)
}
