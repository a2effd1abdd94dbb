package engine

import (
	"context"
	"math"
	"reflect"
	"testing"
)

func TestHeuristicPredictor_EmptyWindow(t *testing.T) {
	p, err := HeuristicPredictor{}.Predict(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.RiskLevel != RiskLow || p.PredictedSuccessRate != 1 || p.SessionCount != 0 {
		t.Errorf("empty window prediction = %+v", p)
	}
}

func TestHeuristicPredictor_RiskLevels(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		total    int
		detected bool
		want     RiskLevel
	}{
		{"all good", 0, 20, false, RiskLow},
		{"some failures", 8, 20, false, RiskMedium},
		{"detections alone raise risk", 0, 20, true, RiskMedium},
		{"mostly failing", 15, 20, false, RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window := sessions(tt.total, func(i int, r *SessionResult) {
				if i < tt.failures {
					r.Success = false
				}
				if tt.detected && i == 0 {
					r.Detected = true
					r.DetectionMethod = "canvas_fingerprint"
				}
			})
			p, err := HeuristicPredictor{}.Predict(context.Background(), window)
			if err != nil {
				t.Fatal(err)
			}
			if p.RiskLevel != tt.want {
				t.Errorf("RiskLevel = %s, want %s (failure rate %.2f)", p.RiskLevel, tt.want, p.FailureRate)
			}
			wantRate := float64(tt.failures) / float64(tt.total)
			if math.Abs(p.FailureRate-wantRate) > 1e-9 {
				t.Errorf("FailureRate = %f, want %f", p.FailureRate, wantRate)
			}
			if math.Abs(p.PredictedSuccessRate-(1-wantRate)) > 1e-9 {
				t.Errorf("PredictedSuccessRate = %f", p.PredictedSuccessRate)
			}
		})
	}
}

func TestHeuristicPredictor_DetectionMethodsSortedAndDeduped(t *testing.T) {
	window := []SessionResult{
		{SiteType: "a", Detected: true, DetectionMethod: "mouse_entropy"},
		{SiteType: "a", Detected: true, DetectionMethod: "canvas_fingerprint"},
		{SiteType: "a", Detected: true, DetectionMethod: "mouse_entropy"},
		{SiteType: "a", Detected: true}, // no method recorded
	}
	p, err := HeuristicPredictor{}.Predict(context.Background(), window)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"canvas_fingerprint", "mouse_entropy"}
	if !reflect.DeepEqual(p.DetectionMethods, want) {
		t.Errorf("DetectionMethods = %v, want %v", p.DetectionMethods, want)
	}
}

func TestHeuristicPredictor_Confidence(t *testing.T) {
	window := sessions(defaultPredictionWindow/2, nil)
	p, _ := HeuristicPredictor{}.Predict(context.Background(), window)
	if math.Abs(p.Confidence-0.5) > 1e-9 {
		t.Errorf("Confidence = %f, want 0.5 at half window", p.Confidence)
	}

	window = sessions(defaultPredictionWindow*2, nil)
	p, _ = HeuristicPredictor{}.Predict(context.Background(), window)
	if p.Confidence != 1 {
		t.Errorf("Confidence = %f, want capped at 1", p.Confidence)
	}
}
