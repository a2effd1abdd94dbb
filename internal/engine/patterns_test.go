package engine

import (
	"math"
	"testing"
)

func sessions(n int, mutate func(i int, r *SessionResult)) []SessionResult {
	out := make([]SessionResult, n)
	for i := range out {
		out[i] = SessionResult{SiteType: "a", Success: true, ResponseTimeMs: 1000}
		if mutate != nil {
			mutate(i, &out[i])
		}
	}
	return out
}

func TestDetectionRisk_CurrentDetection(t *testing.T) {
	history := sessions(10, nil)
	current := SessionResult{SiteType: "a", Detected: true, ResponseTimeMs: 1000}
	history = append(history, current)

	risk := detectionRisk(current, history)
	// 0.5 for the current detection + 0.3 * 1/20 for the recent window.
	want := 0.5 + 0.3/20
	if math.Abs(risk-want) > 1e-9 {
		t.Errorf("risk = %f, want %f", risk, want)
	}
}

func TestDetectionRisk_SlowResponse(t *testing.T) {
	history := sessions(20, nil) // baseline 1000ms
	current := SessionResult{SiteType: "a", Success: true, ResponseTimeMs: 2500}
	history = append(history, current)

	risk := detectionRisk(current, history)
	if math.Abs(risk-riskSlowResponse) > 1e-9 {
		t.Errorf("risk = %f, want %f", risk, riskSlowResponse)
	}
}

func TestDetectionRisk_ClampedToOne(t *testing.T) {
	history := sessions(20, func(i int, r *SessionResult) {
		r.Detected = true
		r.Success = false
	})
	current := SessionResult{SiteType: "a", Detected: true, ResponseTimeMs: 50000}
	history = append(history, current)

	risk := detectionRisk(current, history)
	if risk < 0 || risk > 1 {
		t.Errorf("risk = %f out of [0,1]", risk)
	}
}

func TestDetectPatterns_NewDetectionMethod(t *testing.T) {
	known := map[string]struct{}{"canvas_fingerprint": {}}

	tests := []struct {
		name    string
		current SessionResult
		want    bool
	}{
		{"unseen method", SessionResult{Detected: true, DetectionMethod: "mouse_entropy"}, true},
		{"known method", SessionResult{Detected: true, DetectionMethod: "canvas_fingerprint"}, false},
		{"detected without method", SessionResult{Detected: true}, false},
		{"not detected", SessionResult{Detected: false, DetectionMethod: "mouse_entropy"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.current.SiteType = "a"
			report := detectPatterns(tt.current, []SessionResult{tt.current}, known)
			if report.NewDetectionMethod != tt.want {
				t.Errorf("NewDetectionMethod = %v, want %v", report.NewDetectionMethod, tt.want)
			}
		})
	}
}

func TestPerformanceDegraded(t *testing.T) {
	// Oldest 25 all succeed, newest 25 mostly fail: drop of 0.8 > 0.2.
	degraded := sessions(50, func(i int, r *SessionResult) {
		if i >= 25 && i%5 != 0 {
			r.Success = false
		}
	})
	if !performanceDegraded(degraded) {
		t.Error("expected degradation flag")
	}

	steady := sessions(50, nil)
	if performanceDegraded(steady) {
		t.Error("steady history flagged as degraded")
	}

	short := sessions(30, func(i int, r *SessionResult) { r.Success = false })
	if performanceDegraded(short) {
		t.Error("under 50 sessions must not flag degradation")
	}
}

func TestTrendOf(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Trend
	}{
		{"too few samples", []float64{1, 1, 1}, TrendInsufficientData},
		{"flat", []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}, TrendStable},
		{"rising", []float64{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}, TrendImproving},
		{"falling", []float64{1, 1, 1, 1, 1, 0, 0, 0, 0, 0}, TrendDeclining},
		{"within stable band", []float64{0.50, 0.50, 0.50, 0.50, 0.50, 0.54, 0.54, 0.54, 0.54, 0.54}, TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trendOf(tt.values); got != tt.want {
				t.Errorf("trendOf = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDetectPatterns_Trends(t *testing.T) {
	// Success collapses in the newer half: success trend declines.
	history := sessions(40, func(i int, r *SessionResult) {
		if i >= 20 {
			r.Success = false
		}
	})
	current := history[len(history)-1]
	report := detectPatterns(current, history, nil)
	if report.SuccessTrend != TrendDeclining {
		t.Errorf("SuccessTrend = %s, want declining", report.SuccessTrend)
	}

	// Latency rises in the newer half: the raw metric trend reads improving.
	history = sessions(40, func(i int, r *SessionResult) {
		if i >= 20 {
			r.ResponseTimeMs = 5000
		}
	})
	report = detectPatterns(history[len(history)-1], history, nil)
	if report.LatencyTrend != TrendImproving {
		t.Errorf("LatencyTrend = %s, want improving (raw metric rising)", report.LatencyTrend)
	}
}
