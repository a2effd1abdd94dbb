package engine

import (
	"math"
	"reflect"
	"testing"
)

func TestRecommend_SingleConditions(t *testing.T) {
	healthy := PerformanceMetrics{SuccessRate: 0.9, DetectionRate: 0.1, AverageResponseTimeMs: 2000}

	tests := []struct {
		name    string
		metrics PerformanceMetrics
		report  PatternReport
		want    StrategyUpdate
		reasons []string
	}{
		{
			name:    "no conditions",
			metrics: healthy,
			want:    StrategyUpdate{},
			reasons: nil,
		},
		{
			name:    "high detection rate",
			metrics: PerformanceMetrics{SuccessRate: 0.9, DetectionRate: 0.4, AverageResponseTimeMs: 2000},
			want: StrategyUpdate{
				FingerprintSteps: 1, MouseSteps: 1,
				BehaviorDelta: 0.20, TimingDelta: 0.20,
			},
			reasons: []string{"high_detection_rate"},
		},
		{
			name:    "low success rate",
			metrics: PerformanceMetrics{SuccessRate: 0.5, DetectionRate: 0.1, AverageResponseTimeMs: 2000},
			want: StrategyUpdate{
				FingerprintSteps: 1, CaptchaSteps: 1, BehaviorDelta: 0.10,
			},
			reasons: []string{"low_success_rate"},
		},
		{
			name:    "slow response time",
			metrics: PerformanceMetrics{SuccessRate: 0.9, DetectionRate: 0.1, AverageResponseTimeMs: 45000},
			want: StrategyUpdate{
				MouseSteps: -1, TimingDelta: -0.20, BehaviorDelta: -0.05,
			},
			reasons: []string{"slow_response_time"},
		},
		{
			name:    "high risk triggers detection rule",
			metrics: healthy,
			report:  PatternReport{DetectionRisk: 0.85},
			want: StrategyUpdate{
				FingerprintSteps: 1, MouseSteps: 1,
				BehaviorDelta: 0.20, TimingDelta: 0.20,
			},
			reasons: []string{"high_detection_rate"},
		},
		{
			name:    "new method triggers detection rule",
			metrics: healthy,
			report:  PatternReport{NewDetectionMethod: true},
			want: StrategyUpdate{
				FingerprintSteps: 1, MouseSteps: 1,
				BehaviorDelta: 0.20, TimingDelta: 0.20,
			},
			reasons: []string{"high_detection_rate"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := recommend(tt.metrics, tt.report, 0.7)
			if rec.Update != tt.want {
				t.Errorf("update = %+v, want %+v", rec.Update, tt.want)
			}
			if !reflect.DeepEqual(rec.Reasons, tt.reasons) {
				t.Errorf("reasons = %v, want %v", rec.Reasons, tt.reasons)
			}
			if rec.ABTestRequired {
				t.Error("single condition must not require an A/B test")
			}
		})
	}
}

func TestRecommend_CompoundConditions(t *testing.T) {
	m := PerformanceMetrics{SuccessRate: 0.4, DetectionRate: 0.5, AverageResponseTimeMs: 2000}
	rec := recommend(m, PatternReport{}, 0.7)

	// Both rules add a fingerprint step; the ordinal clamp keeps it at one.
	if rec.Update.FingerprintSteps != 1 {
		t.Errorf("FingerprintSteps = %d, want 1", rec.Update.FingerprintSteps)
	}
	// Numeric deltas do sum: 0.20 + 0.10.
	if math.Abs(rec.Update.BehaviorDelta-0.30) > 1e-9 {
		t.Errorf("BehaviorDelta = %f, want 0.30", rec.Update.BehaviorDelta)
	}
	if !rec.ABTestRequired {
		t.Error("two conditions must require an A/B test")
	}
	if math.Abs(rec.Confidence-0.80) > 1e-9 {
		t.Errorf("Confidence = %f, want 0.80", rec.Confidence)
	}
}

func TestRecommend_ConflictingOrdinalStepsCancel(t *testing.T) {
	// high_detection_rate (+1 mouse) and slow_response_time (-1 mouse).
	m := PerformanceMetrics{SuccessRate: 0.9, DetectionRate: 0.5, AverageResponseTimeMs: 45000}
	rec := recommend(m, PatternReport{}, 0.7)
	if rec.Update.MouseSteps != 0 {
		t.Errorf("MouseSteps = %d, want 0 after cancellation", rec.Update.MouseSteps)
	}
	if rec.Update.FingerprintSteps != 1 {
		t.Errorf("FingerprintSteps = %d, want 1", rec.Update.FingerprintSteps)
	}
}

func TestApplyUpdate_SaturatesAtBounds(t *testing.T) {
	s := Strategy{
		Fingerprinting:        FingerprintMaximum,
		MouseComplexity:       MouseLow,
		CaptchaMode:           CaptchaMLEnhanced,
		BehaviorRandomization: 0.85,
		TimingVariation:       0.15,
	}
	got := applyUpdate(s, StrategyUpdate{
		FingerprintSteps: 1, MouseSteps: -1, CaptchaSteps: 1,
		BehaviorDelta: 0.20, TimingDelta: -0.20,
	})

	if got.Fingerprinting != FingerprintMaximum {
		t.Errorf("Fingerprinting = %s, want maximum (saturated)", got.Fingerprinting)
	}
	if got.MouseComplexity != MouseLow {
		t.Errorf("MouseComplexity = %s, want low (saturated)", got.MouseComplexity)
	}
	if got.CaptchaMode != CaptchaMLEnhanced {
		t.Errorf("CaptchaMode = %s, want ml_enhanced (saturated)", got.CaptchaMode)
	}
	if got.BehaviorRandomization != behaviorMax {
		t.Errorf("BehaviorRandomization = %f, want %f", got.BehaviorRandomization, behaviorMax)
	}
	if got.TimingVariation != timingMin {
		t.Errorf("TimingVariation = %f, want %f", got.TimingVariation, timingMin)
	}
}

func TestValidateStrategy(t *testing.T) {
	s := Strategy{
		SiteType:              "a",
		Fingerprinting:        FingerprintLevel("bogus"),
		MouseComplexity:       MouseComplexity(""),
		CaptchaMode:           CaptchaMode("weird"),
		BehaviorRandomization: 1.7,
		TimingVariation:       -0.3,
	}
	validateStrategy(&s)

	if s.Fingerprinting != FingerprintMedium || s.MouseComplexity != MouseMedium || s.CaptchaMode != CaptchaStandard {
		t.Errorf("enum fallbacks wrong: %s/%s/%s", s.Fingerprinting, s.MouseComplexity, s.CaptchaMode)
	}
	if s.BehaviorRandomization != behaviorMax {
		t.Errorf("BehaviorRandomization = %f, want %f", s.BehaviorRandomization, behaviorMax)
	}
	if s.TimingVariation != timingMin {
		t.Errorf("TimingVariation = %f, want %f", s.TimingVariation, timingMin)
	}
	if s.Version.Major != 1 {
		t.Errorf("Version.Major = %d, want 1", s.Version.Major)
	}
}

func TestStep_MovesOneLevel(t *testing.T) {
	if got := FingerprintMedium.Step(1); got != FingerprintHigh {
		t.Errorf("Step(1) = %s, want high", got)
	}
	if got := FingerprintMedium.Step(-1); got != FingerprintLow {
		t.Errorf("Step(-1) = %s, want low", got)
	}
	if got := CaptchaStandard.Step(5); got != CaptchaMLEnhanced {
		t.Errorf("Step(5) = %s, want ml_enhanced (saturated)", got)
	}
	if got := MouseComplexity("junk").Step(1); got != MouseHigh {
		t.Errorf("unknown value should re-enter at medium then step: got %s", got)
	}
}

func TestStrategyVersion(t *testing.T) {
	v := StrategyVersion{Major: 1, Minor: 3}
	if v.String() != "1.3" {
		t.Errorf("String = %s", v.String())
	}
	if v.bumpMinor() != (StrategyVersion{Major: 1, Minor: 4}) {
		t.Errorf("bumpMinor = %+v", v.bumpMinor())
	}
	if v.Compare(StrategyVersion{Major: 2}) != -1 {
		t.Error("major ordering wrong")
	}
	if v.Compare(StrategyVersion{Major: 1, Minor: 3}) != 0 {
		t.Error("equality wrong")
	}

	data, err := v.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var back StrategyVersion
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatal(err)
	}
	if back != v {
		t.Errorf("roundtrip = %+v, want %+v", back, v)
	}
	if err := back.UnmarshalJSON([]byte(`"nope"`)); err == nil {
		t.Error("expected error for malformed version")
	}
}
