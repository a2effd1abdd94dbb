package engine

// Numeric delta magnitudes for the optimizer rule table.
const (
	deltaIncrease = 0.20
	deltaModerate = 0.10
	deltaSlight   = 0.05
)

// condition names a detected state the rule table maps to parameter deltas.
type condition string

const (
	condHighDetectionRate condition = "high_detection_rate"
	condLowSuccessRate    condition = "low_success_rate"
	condSlowResponseTime  condition = "slow_response_time"
)

// optimizerRules is the static condition -> delta table. Deltas from multiple
// matched conditions are summed before clamping.
var optimizerRules = map[condition]StrategyUpdate{
	condHighDetectionRate: {
		FingerprintSteps: 1,
		MouseSteps:       1,
		BehaviorDelta:    deltaIncrease,
		TimingDelta:      deltaIncrease,
	},
	condLowSuccessRate: {
		FingerprintSteps: 1,
		CaptchaSteps:     1,
		BehaviorDelta:    deltaModerate,
	},
	condSlowResponseTime: {
		MouseSteps:    -1,
		TimingDelta:   -deltaIncrease,
		BehaviorDelta: -deltaSlight,
	},
}

// recommend maps the observed metrics and patterns onto bounded strategy
// deltas. Compound changes (two or more matched conditions) are flagged for
// an A/B trial before full trust.
func recommend(m PerformanceMetrics, p PatternReport, successThreshold float64) Recommendation {
	var matched []condition

	if m.DetectionRate > alertMaxDetectionRate || p.DetectionRisk > 0.8 || p.NewDetectionMethod {
		matched = append(matched, condHighDetectionRate)
	}
	if m.SuccessRate < successThreshold {
		matched = append(matched, condLowSuccessRate)
	}
	if m.AverageResponseTimeMs > alertMaxAvgResponseMs {
		matched = append(matched, condSlowResponseTime)
	}

	rec := Recommendation{Confidence: 0.5}
	for _, c := range matched {
		u := optimizerRules[c]
		rec.Update.FingerprintSteps += u.FingerprintSteps
		rec.Update.MouseSteps += u.MouseSteps
		rec.Update.CaptchaSteps += u.CaptchaSteps
		rec.Update.BehaviorDelta += u.BehaviorDelta
		rec.Update.TimingDelta += u.TimingDelta
		rec.Reasons = append(rec.Reasons, string(c))
		rec.Confidence += 0.15
	}
	// Ordinal parameters move at most one step per adaptation, however many
	// rules stack; conflicting rules cancel out.
	rec.Update.FingerprintSteps = signOf(rec.Update.FingerprintSteps)
	rec.Update.MouseSteps = signOf(rec.Update.MouseSteps)
	rec.Update.CaptchaSteps = signOf(rec.Update.CaptchaSteps)

	rec.Confidence = clamp(rec.Confidence, 0, 0.95)
	rec.ABTestRequired = len(matched) >= 2

	return rec
}

func signOf(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

// applyUpdate produces the candidate strategy from the current one. Bounds
// are enforced here and again by validateStrategy before the store swap.
func applyUpdate(s Strategy, u StrategyUpdate) Strategy {
	s.Fingerprinting = s.Fingerprinting.Step(u.FingerprintSteps)
	s.MouseComplexity = s.MouseComplexity.Step(u.MouseSteps)
	s.CaptchaMode = s.CaptchaMode.Step(u.CaptchaSteps)
	s.BehaviorRandomization = clamp(s.BehaviorRandomization+u.BehaviorDelta, behaviorMin, behaviorMax)
	s.TimingVariation = clamp(s.TimingVariation+u.TimingDelta, timingMin, timingMax)
	return s
}

// Strategy parameter bounds.
const (
	behaviorMin = 0.1
	behaviorMax = 0.9
	timingMin   = 0.1
	timingMax   = 1.0
)

// validateStrategy re-clamps every numeric and enum field. This runs
// unconditionally before a strategy reaches the store, so a replaced or buggy
// rule table can never push an out-of-range value to readers.
func validateStrategy(s *Strategy) {
	s.BehaviorRandomization = clamp(s.BehaviorRandomization, behaviorMin, behaviorMax)
	s.TimingVariation = clamp(s.TimingVariation, timingMin, timingMax)
	if indexOfFingerprint(s.Fingerprinting) < 0 {
		s.Fingerprinting = FingerprintMedium
	}
	if indexOfMouse(s.MouseComplexity) < 0 {
		s.MouseComplexity = MouseMedium
	}
	if indexOfCaptcha(s.CaptchaMode) < 0 {
		s.CaptchaMode = CaptchaStandard
	}
	if s.Version.Major < 1 {
		s.Version.Major = 1
	}
}
