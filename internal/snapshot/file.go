// Package snapshot persists the engine's full state. Two backends ship: a
// single JSON file overwritten in full on each flush, and a SQLite database
// rewritten transactionally. History is bounded, so full overwrites stay
// cheap.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"chameleon/internal/engine"
)

// New builds a store for the configured backend. Backend "none" returns
// (nil, nil): the engine then runs memory-only.
func New(backend, path string) (engine.SnapshotStore, error) {
	switch backend {
	case "file":
		return NewFileStore(path), nil
	case "sqlite":
		return NewSQLiteStore(path)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", backend)
	}
}

// FileStore writes the snapshot as one JSON document, via a temp file and
// rename so a crashed flush never leaves a torn snapshot behind.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (fs *FileStore) Save(_ context.Context, snap *engine.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func (fs *FileStore) Load(_ context.Context) (*engine.Snapshot, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}
