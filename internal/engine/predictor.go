package engine

import (
	"context"
	"sort"
)

// Predictor forecasts near-term risk from the most recent session window.
// The window is a point-in-time copy across all site types, oldest first.
// The concrete model is an extension point; implementations must be safe for
// use from the engine's monitoring goroutine.
type Predictor interface {
	Predict(ctx context.Context, window []SessionResult) (Prediction, error)
}

// HeuristicPredictor is the default forecaster: failure rate over the window,
// distinct detection methods seen, and a coarse risk classification.
type HeuristicPredictor struct{}

func (HeuristicPredictor) Predict(_ context.Context, window []SessionResult) (Prediction, error) {
	p := Prediction{
		RiskLevel:    RiskLow,
		SessionCount: len(window),
	}
	if len(window) == 0 {
		p.PredictedSuccessRate = 1
		return p, nil
	}

	failures := 0
	methods := map[string]struct{}{}
	for _, s := range window {
		if !s.Success {
			failures++
		}
		if s.Detected && s.DetectionMethod != "" {
			methods[s.DetectionMethod] = struct{}{}
		}
	}

	p.FailureRate = float64(failures) / float64(len(window))
	p.PredictedSuccessRate = clamp(1-p.FailureRate, 0, 1)
	p.Confidence = clamp(float64(len(window))/float64(defaultPredictionWindow), 0, 1)
	for m := range methods {
		p.DetectionMethods = append(p.DetectionMethods, m)
	}
	sort.Strings(p.DetectionMethods)

	switch {
	case p.FailureRate > 0.5:
		p.RiskLevel = RiskHigh
	case p.FailureRate > 0.25 || len(methods) > 0:
		p.RiskLevel = RiskMedium
	}
	return p, nil
}
