// Package engine implements the adaptive strategy-control loop for chameleon.
//
// The loop is: Ingest → Measure → Detect Patterns → Gate → Optimize → Apply.
// Automation workers submit one SessionResult per completed session; the
// engine keeps per-site-type performance counters, scores detection risk,
// and — under a cooldown and an hourly cap — mutates the versioned Strategy
// that governs how future sessions for that site type behave.
package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// SESSION RESULTS - WHAT HAPPENED IN ONE AUTOMATION SESSION
// =============================================================================

// SessionResult is the outcome of one completed automation session.
// Immutable once ingested.
type SessionResult struct {
	ID              string    `json:"id"`
	SiteType        string    `json:"site_type"`
	Success         bool      `json:"success"`
	Detected        bool      `json:"detected"`
	DetectionMethod string    `json:"detection_method,omitempty"`
	Error           bool      `json:"error"`
	ResponseTimeMs  float64   `json:"response_time_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// PerformanceMetrics holds the running counters for one site type.
// Derived rates are recomputed on every update.
type PerformanceMetrics struct {
	SiteType              string    `json:"site_type"`
	TotalSessions         int       `json:"total_sessions"`
	SuccessfulSessions    int       `json:"successful_sessions"`
	DetectedSessions      int       `json:"detected_sessions"`
	ErrorCount            int       `json:"error_count"`
	AverageResponseTimeMs float64   `json:"average_response_time_ms"`
	SuccessRate           float64   `json:"success_rate"`
	DetectionRate         float64   `json:"detection_rate"`
	ErrorRate             float64   `json:"error_rate"`
	LastUpdated           time.Time `json:"last_updated"`
}

// =============================================================================
// STRATEGY - TUNABLE BEHAVIOR PARAMETERS PER SITE TYPE
// =============================================================================

// FingerprintLevel controls how aggressively browser fingerprints are masked.
type FingerprintLevel string

const (
	FingerprintLow     FingerprintLevel = "low"
	FingerprintMedium  FingerprintLevel = "medium"
	FingerprintHigh    FingerprintLevel = "high"
	FingerprintMaximum FingerprintLevel = "maximum"
)

// MouseComplexity controls how elaborate synthetic mouse movement is.
type MouseComplexity string

const (
	MouseLow     MouseComplexity = "low"
	MouseMedium  MouseComplexity = "medium"
	MouseHigh    MouseComplexity = "high"
	MouseMaximum MouseComplexity = "maximum"
)

// CaptchaMode selects the CAPTCHA solving backend.
type CaptchaMode string

const (
	CaptchaStandard   CaptchaMode = "standard"
	CaptchaAdvanced   CaptchaMode = "advanced"
	CaptchaMLEnhanced CaptchaMode = "ml_enhanced"
)

var (
	fingerprintOrder = []FingerprintLevel{FingerprintLow, FingerprintMedium, FingerprintHigh, FingerprintMaximum}
	mouseOrder       = []MouseComplexity{MouseLow, MouseMedium, MouseHigh, MouseMaximum}
	captchaOrder     = []CaptchaMode{CaptchaStandard, CaptchaAdvanced, CaptchaMLEnhanced}
)

// stepIndex moves i by n steps inside [0, len-1], saturating at both ends.
func stepIndex(i, n, length int) int {
	i += n
	if i < 0 {
		return 0
	}
	if i >= length {
		return length - 1
	}
	return i
}

func indexOfFingerprint(l FingerprintLevel) int {
	for i, v := range fingerprintOrder {
		if v == l {
			return i
		}
	}
	return -1
}

func indexOfMouse(c MouseComplexity) int {
	for i, v := range mouseOrder {
		if v == c {
			return i
		}
	}
	return -1
}

func indexOfCaptcha(m CaptchaMode) int {
	for i, v := range captchaOrder {
		if v == m {
			return i
		}
	}
	return -1
}

// Step moves the level n steps along its ordered scale, saturating at the ends.
func (l FingerprintLevel) Step(n int) FingerprintLevel {
	i := indexOfFingerprint(l)
	if i < 0 {
		i = 1 // unknown values re-enter the scale at medium
	}
	return fingerprintOrder[stepIndex(i, n, len(fingerprintOrder))]
}

// Step moves the complexity n steps along its ordered scale, saturating at the ends.
func (c MouseComplexity) Step(n int) MouseComplexity {
	i := indexOfMouse(c)
	if i < 0 {
		i = 1
	}
	return mouseOrder[stepIndex(i, n, len(mouseOrder))]
}

// Step moves the mode n steps along its ordered scale, saturating at the ends.
func (m CaptchaMode) Step(n int) CaptchaMode {
	i := indexOfCaptcha(m)
	if i < 0 {
		i = 0
	}
	return captchaOrder[stepIndex(i, n, len(captchaOrder))]
}

// StrategyVersion is a "major.minor" strategy version. Minor increments on
// every applied adaptation.
type StrategyVersion struct {
	Major int
	Minor int
}

func (v StrategyVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1, 0 or 1 ordering v against o.
func (v StrategyVersion) Compare(o StrategyVersion) int {
	if v.Major != o.Major {
		if v.Major < o.Major {
			return -1
		}
		return 1
	}
	switch {
	case v.Minor < o.Minor:
		return -1
	case v.Minor > o.Minor:
		return 1
	}
	return 0
}

func (v StrategyVersion) bumpMinor() StrategyVersion {
	return StrategyVersion{Major: v.Major, Minor: v.Minor + 1}
}

// MarshalJSON renders the version as its "major.minor" string form.
func (v StrategyVersion) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(v.String())), nil
}

// UnmarshalJSON accepts the "major.minor" string form.
func (v *StrategyVersion) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("strategy version: %w", err)
	}
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("strategy version %q: want major.minor", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return fmt.Errorf("strategy version %q: %w", s, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("strategy version %q: %w", s, err)
	}
	v.Major, v.Minor = major, minor
	return nil
}

// Strategy is the versioned bundle of behavior parameters for one site type.
// The store replaces the whole value on adaptation; readers never observe a
// partially updated strategy.
type Strategy struct {
	SiteType              string           `json:"site_type"`
	Fingerprinting        FingerprintLevel `json:"fingerprinting_level"`
	BehaviorRandomization float64          `json:"behavior_randomization"`
	TimingVariation       float64          `json:"timing_variation"`
	MouseComplexity       MouseComplexity  `json:"mouse_pattern_complexity"`
	CaptchaMode           CaptchaMode      `json:"captcha_solver_mode"`
	Version               StrategyVersion  `json:"version"`
	AdaptationCount       int              `json:"adaptation_count"`
	CreatedAt             time.Time        `json:"created_at"`
	LastUpdated           time.Time        `json:"last_updated"`
	AdaptationReason      string           `json:"adaptation_reason,omitempty"`
}

// =============================================================================
// PATTERNS, RECOMMENDATIONS, ADAPTATION HISTORY
// =============================================================================

// Trend classifies the direction of a metric over the recent window.
type Trend string

const (
	TrendStable           Trend = "stable"
	TrendImproving        Trend = "improving"
	TrendDeclining        Trend = "declining"
	TrendInsufficientData Trend = "insufficient_data"
)

// PatternReport is the pattern detector's per-session output for a site type.
type PatternReport struct {
	SiteType               string  `json:"site_type"`
	DetectionRisk          float64 `json:"detection_risk"`
	NewDetectionMethod     bool    `json:"new_detection_method"`
	PerformanceDegradation bool    `json:"performance_degradation"`
	SuccessTrend           Trend   `json:"success_trend"`
	LatencyTrend           Trend   `json:"latency_trend"`
}

// StrategyUpdate is a typed set of bounded deltas the optimizer proposes.
// Ordinal fields move in whole steps; numeric fields are additive and are
// clamped again before they ever reach the store.
type StrategyUpdate struct {
	FingerprintSteps int     `json:"fingerprint_steps"`
	MouseSteps       int     `json:"mouse_steps"`
	CaptchaSteps     int     `json:"captcha_steps"`
	BehaviorDelta    float64 `json:"behavior_delta"`
	TimingDelta      float64 `json:"timing_delta"`
}

// IsZero reports whether the update changes nothing.
func (u StrategyUpdate) IsZero() bool {
	return u.FingerprintSteps == 0 && u.MouseSteps == 0 && u.CaptchaSteps == 0 &&
		u.BehaviorDelta == 0 && u.TimingDelta == 0
}

// Recommendation is the optimizer output for one adaptation decision.
type Recommendation struct {
	Update         StrategyUpdate `json:"update"`
	Reasons        []string       `json:"reasons"`
	Confidence     float64        `json:"confidence"`
	ABTestRequired bool           `json:"ab_test_required"`
}

// AdaptationRecord is one applied adaptation, kept as append-only history.
type AdaptationRecord struct {
	ID          string        `json:"id"`
	SiteType    string        `json:"site_type"`
	Patterns    PatternReport `json:"patterns"`
	OldStrategy Strategy      `json:"old_strategy"`
	NewStrategy Strategy      `json:"new_strategy"`
	Reasons     []string      `json:"reasons"`
	Timestamp   time.Time     `json:"timestamp"`
}

// =============================================================================
// ALERTS AND PREDICTIONS
// =============================================================================

// AlertType names a breached metrics threshold.
type AlertType string

const (
	AlertLowSuccessRate    AlertType = "low_success_rate"
	AlertHighDetectionRate AlertType = "high_detection_rate"
	AlertSlowResponseTime  AlertType = "slow_response_time"
	AlertHighErrorRate     AlertType = "high_error_rate"
)

// Alert is an ephemeral threshold-breach event. Not persisted.
type Alert struct {
	Type      AlertType `json:"type"`
	SiteType  string    `json:"site_type"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
}

// RiskLevel is the predictor's coarse near-term risk classification.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Prediction is the forecasting output over the most recent session window.
type Prediction struct {
	RiskLevel            RiskLevel `json:"risk_level"`
	PredictedSuccessRate float64   `json:"predicted_success_rate"`
	Confidence           float64   `json:"confidence"`
	FailureRate          float64   `json:"failure_rate"`
	DetectionMethods     []string  `json:"detection_methods,omitempty"`
	SessionCount         int       `json:"session_count"`
}
