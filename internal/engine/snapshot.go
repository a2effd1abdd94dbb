package engine

import (
	"context"
	"time"
)

// Snapshot is the engine's full persisted state. It is written as one unit
// and overwritten in full on every flush; the bounded history keeps that
// affordable.
type Snapshot struct {
	Sessions    []SessionResult               `json:"sessions"`
	Adaptations []AdaptationRecord            `json:"adaptations"`
	Metrics     map[string]PerformanceMetrics `json:"metrics"`
	Strategies  map[string]Strategy           `json:"strategies"`
	LastUpdated time.Time                     `json:"last_updated"`
}

// SnapshotStore persists and restores snapshots. Load returns (nil, nil) when
// no snapshot exists yet. Failures are never fatal to the engine; it keeps
// running in memory-only mode.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}
