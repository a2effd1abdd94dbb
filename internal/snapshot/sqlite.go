package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chameleon/internal/engine"
)

// SQLiteStore keeps the snapshot in a SQLite database. Sessions and metrics
// get structured columns for ad-hoc querying; adaptation records and
// strategies are stored as JSON documents alongside their keys.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		site_type TEXT NOT NULL,
		success INTEGER NOT NULL,
		detected INTEGER NOT NULL,
		detection_method TEXT,
		error INTEGER NOT NULL,
		response_time_ms REAL NOT NULL,
		timestamp DATETIME NOT NULL,
		seq INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_site ON sessions(site_type, seq);

	CREATE TABLE IF NOT EXISTS adaptations (
		id TEXT PRIMARY KEY,
		site_type TEXT NOT NULL,
		record TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		seq INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metrics (
		site_type TEXT PRIMARY KEY,
		total_sessions INTEGER NOT NULL,
		successful_sessions INTEGER NOT NULL,
		detected_sessions INTEGER NOT NULL,
		error_count INTEGER NOT NULL,
		average_response_time_ms REAL NOT NULL,
		last_updated DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS strategies (
		site_type TEXT PRIMARY KEY,
		strategy TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save rewrites the whole snapshot in one transaction, mirroring the file
// backend's full-overwrite semantics.
func (s *SQLiteStore) Save(ctx context.Context, snap *engine.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"sessions", "adaptations", "metrics", "strategies"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for i, r := range snap.Sessions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions
			(id, site_type, success, detected, detection_method, error, response_time_ms, timestamp, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.SiteType, r.Success, r.Detected, r.DetectionMethod,
			r.Error, r.ResponseTimeMs, r.Timestamp, i)
		if err != nil {
			return fmt.Errorf("failed to write session: %w", err)
		}
	}

	for i, rec := range snap.Adaptations {
		doc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode adaptation: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO adaptations (id, site_type, record, timestamp, seq)
			VALUES (?, ?, ?, ?, ?)`,
			rec.ID, rec.SiteType, string(doc), rec.Timestamp, i)
		if err != nil {
			return fmt.Errorf("failed to write adaptation: %w", err)
		}
	}

	for siteType, m := range snap.Metrics {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO metrics
			(site_type, total_sessions, successful_sessions, detected_sessions,
			 error_count, average_response_time_ms, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			siteType, m.TotalSessions, m.SuccessfulSessions, m.DetectedSessions,
			m.ErrorCount, m.AverageResponseTimeMs, m.LastUpdated)
		if err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	for siteType, strat := range snap.Strategies {
		doc, err := json.Marshal(strat)
		if err != nil {
			return fmt.Errorf("failed to encode strategy: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO strategies (site_type, strategy) VALUES (?, ?)`,
			siteType, string(doc))
		if err != nil {
			return fmt.Errorf("failed to write strategy: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES ('last_updated', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		snap.LastUpdated.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write meta: %w", err)
	}

	return tx.Commit()
}

// Load reads the full snapshot back. An empty database reads as no snapshot.
func (s *SQLiteStore) Load(ctx context.Context) (*engine.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &engine.Snapshot{
		Metrics:    map[string]engine.PerformanceMetrics{},
		Strategies: map[string]engine.Strategy{},
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, site_type, success, detected, detection_method, error, response_time_ms, timestamp
		FROM sessions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r engine.SessionResult
		var method sql.NullString
		if err := rows.Scan(&r.ID, &r.SiteType, &r.Success, &r.Detected, &method,
			&r.Error, &r.ResponseTimeMs, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		r.DetectionMethod = method.String
		snap.Sessions = append(snap.Sessions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	arows, err := s.db.QueryContext(ctx, `SELECT record FROM adaptations ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to read adaptations: %w", err)
	}
	defer arows.Close()
	for arows.Next() {
		var doc string
		if err := arows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan adaptation: %w", err)
		}
		var rec engine.AdaptationRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode adaptation: %w", err)
		}
		snap.Adaptations = append(snap.Adaptations, rec)
	}
	if err := arows.Err(); err != nil {
		return nil, err
	}

	mrows, err := s.db.QueryContext(ctx, `
		SELECT site_type, total_sessions, successful_sessions, detected_sessions,
		       error_count, average_response_time_ms, last_updated
		FROM metrics`)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var m engine.PerformanceMetrics
		if err := mrows.Scan(&m.SiteType, &m.TotalSessions, &m.SuccessfulSessions,
			&m.DetectedSessions, &m.ErrorCount, &m.AverageResponseTimeMs, &m.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan metrics: %w", err)
		}
		if n := float64(m.TotalSessions); n > 0 {
			m.SuccessRate = float64(m.SuccessfulSessions) / n
			m.DetectionRate = float64(m.DetectedSessions) / n
			m.ErrorRate = float64(m.ErrorCount) / n
		}
		snap.Metrics[m.SiteType] = m
	}
	if err := mrows.Err(); err != nil {
		return nil, err
	}

	srows, err := s.db.QueryContext(ctx, `SELECT site_type, strategy FROM strategies`)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategies: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		var siteType, doc string
		if err := srows.Scan(&siteType, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		var strat engine.Strategy
		if err := json.Unmarshal([]byte(doc), &strat); err != nil {
			return nil, fmt.Errorf("failed to decode strategy: %w", err)
		}
		snap.Strategies[siteType] = strat
	}
	if err := srows.Err(); err != nil {
		return nil, err
	}

	var last string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'last_updated'`).Scan(&last)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil // never saved
	case err != nil:
		return nil, fmt.Errorf("failed to read meta: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, last); err == nil {
		snap.LastUpdated = t
	}

	return snap, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
