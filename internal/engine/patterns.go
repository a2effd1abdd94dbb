package engine

// Pattern detection windows. All windows are relative to one site type's
// slice of the bounded session history.
const (
	riskDetectionWindow  = 20  // recent sessions scanned for detections
	riskLatencyWindow    = 50  // trailing window for the latency baseline
	degradationWindow    = 50  // split into oldest/newest halves of 25
	trendWindow          = 50  // samples considered for trend analysis
	trendMinSamples      = 10  // below this, trend is insufficient_data
	trendStableBand      = 0.05
	methodMemoryWindow   = 100 // detected sessions remembered per site type
	riskCurrentDetected  = 0.5
	riskRecentDetections = 0.3
	riskSlowResponse     = 0.2
)

// detectPatterns scores the just-ingested session against its site type's
// history. history is oldest-first and includes current as its last element;
// knownMethods holds the detection methods of the last methodMemoryWindow
// detected sessions, excluding current.
func detectPatterns(current SessionResult, history []SessionResult, knownMethods map[string]struct{}) PatternReport {
	report := PatternReport{SiteType: current.SiteType}

	report.DetectionRisk = detectionRisk(current, history)
	report.NewDetectionMethod = current.Detected &&
		current.DetectionMethod != "" &&
		!containsMethod(knownMethods, current.DetectionMethod)
	report.PerformanceDegradation = performanceDegraded(history)
	report.SuccessTrend = trendOf(successSeries(history))
	report.LatencyTrend = trendOf(latencySeries(history))

	return report
}

// detectionRisk composes a [0,1] score: the current session being detected
// contributes 0.5, recent detection density up to 0.3, and an abnormally
// slow response 0.2.
func detectionRisk(current SessionResult, history []SessionResult) float64 {
	risk := 0.0
	if current.Detected {
		risk += riskCurrentDetected
	}

	recent := tail(history, riskDetectionWindow)
	detections := 0
	for _, s := range recent {
		if s.Detected {
			detections++
		}
	}
	risk += riskRecentDetections * float64(detections) / float64(riskDetectionWindow)

	// Latency baseline excludes the current session so a single slow outlier
	// cannot hide itself inside its own average.
	past := history
	if len(past) > 0 {
		past = past[:len(past)-1]
	}
	baseline := tail(past, riskLatencyWindow)
	if avg := avgLatency(baseline); avg > 0 && current.ResponseTimeMs > 2*avg {
		risk += riskSlowResponse
	}

	return clamp(risk, 0, 1)
}

// performanceDegraded compares the success rate of the oldest 25 of the last
// 50 sessions against the newest 25. A drop of more than 0.2 flags degradation.
func performanceDegraded(history []SessionResult) bool {
	window := tail(history, degradationWindow)
	if len(window) < degradationWindow {
		return false
	}
	half := len(window) / 2
	older := successRate(window[:half])
	newer := successRate(window[half:])
	return older-newer > 0.2
}

// trendOf classifies a metric series by splitting the trailing window into
// halves and comparing averages. A rising average reads as improving; callers
// interpret direction per metric.
func trendOf(values []float64) Trend {
	values = tailFloat(values, trendWindow)
	if len(values) < trendMinSamples {
		return TrendInsufficientData
	}
	half := len(values) / 2
	older := avgFloat(values[:half])
	newer := avgFloat(values[half:])
	delta := newer - older
	switch {
	case delta > -trendStableBand && delta < trendStableBand:
		return TrendStable
	case delta > 0:
		return TrendImproving
	default:
		return TrendDeclining
	}
}

func successSeries(history []SessionResult) []float64 {
	out := make([]float64, len(history))
	for i, s := range history {
		if s.Success {
			out[i] = 1
		}
	}
	return out
}

func latencySeries(history []SessionResult) []float64 {
	out := make([]float64, len(history))
	for i, s := range history {
		out[i] = s.ResponseTimeMs
	}
	return out
}

func containsMethod(methods map[string]struct{}, method string) bool {
	_, ok := methods[method]
	return ok
}

func tail(s []SessionResult, n int) []SessionResult {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func tailFloat(s []float64, n int) []float64 {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func successRate(s []SessionResult) float64 {
	if len(s) == 0 {
		return 0
	}
	ok := 0
	for _, r := range s {
		if r.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(s))
}

func avgLatency(s []SessionResult) float64 {
	if len(s) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range s {
		sum += r.ResponseTimeMs
	}
	return sum / float64(len(s))
}

func avgFloat(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
