package engine

import (
	"context"

	"chameleon/internal/logging"
)

// ABTestMeta carries the context of the adaptation that produced a candidate.
type ABTestMeta struct {
	RecordID   string   `json:"record_id"`
	Reasons    []string `json:"reasons"`
	Confidence float64  `json:"confidence"`
}

// ABTester stages a candidate strategy for rollout. Start is invoked exactly
// once per adaptation the optimizer flags; promotion and rollback policy live
// outside the engine.
type ABTester interface {
	Start(ctx context.Context, siteType string, candidate Strategy, meta ABTestMeta) error
}

// loggingABTester is the default: it records the trial request and does
// nothing else, leaving rollout to external tooling.
type loggingABTester struct{}

func (loggingABTester) Start(_ context.Context, siteType string, candidate Strategy, meta ABTestMeta) error {
	logging.Adapt("A/B trial requested: site=%s version=%s confidence=%.2f record=%s",
		siteType, candidate.Version, meta.Confidence, meta.RecordID)
	return nil
}
