package engine

import (
	"errors"
	"fmt"
)

// ErrEngineClosed is returned by API calls after Close.
var ErrEngineClosed = errors.New("engine closed")

// ErrAdaptationInFlight marks a skipped adaptation attempt while another one
// is being applied. Attempts are skipped, never queued.
var ErrAdaptationInFlight = errors.New("adaptation already in flight")

// IngestionError rejects a malformed SessionResult before any aggregate is
// touched. No partial update ever happens for a rejected result.
type IngestionError struct {
	Field  string
	Reason string
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion rejected: %s %s", e.Field, e.Reason)
}

// AdaptationError wraps a failure inside the adaptation critical section.
// The engine stays usable after one of these.
type AdaptationError struct {
	SiteType string
	Err      error
}

func (e *AdaptationError) Error() string {
	return fmt.Sprintf("adaptation failed for %s: %v", e.SiteType, e.Err)
}

func (e *AdaptationError) Unwrap() error { return e.Err }
