package engine

import "time"

// SystemHealth is the coarse health classification in performance reports.
type SystemHealth string

const (
	HealthHealthy  SystemHealth = "healthy"
	HealthDegraded SystemHealth = "degraded"
	HealthCritical SystemHealth = "critical"
)

// Report is the engine's aggregated performance view.
type Report struct {
	GeneratedAt       time.Time                     `json:"generated_at"`
	TotalSessions     int                           `json:"total_sessions"`
	TotalAdaptations  int                           `json:"total_adaptations"`
	StrategiesManaged int                           `json:"strategies_managed"`
	PerSiteType       map[string]PerformanceMetrics `json:"per_site_type"`
	RecentAdaptations []AdaptationRecord            `json:"recent_adaptations"`
	SystemHealth      SystemHealth                  `json:"system_health"`
}

const recentAdaptationCount = 10

// Report assembles the current performance report.
func (e *Engine) Report() Report {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return buildReport(
		e.metrics.snapshot(),
		e.strategies.count(),
		e.totalAdaptations,
		e.adaptations,
		e.now(),
	)
}

// ReportFromSnapshot derives a report from persisted state, for offline
// tooling that has no running engine.
func ReportFromSnapshot(snap *Snapshot, now time.Time) Report {
	if snap == nil {
		return buildReport(nil, 0, 0, nil, now)
	}
	return buildReport(snap.Metrics, len(snap.Strategies), len(snap.Adaptations), snap.Adaptations, now)
}

func buildReport(metrics map[string]PerformanceMetrics, strategies, totalAdaptations int, adaptations []AdaptationRecord, now time.Time) Report {
	r := Report{
		GeneratedAt:       now,
		TotalAdaptations:  totalAdaptations,
		StrategiesManaged: strategies,
		PerSiteType:       metrics,
		SystemHealth:      HealthHealthy,
	}
	if r.PerSiteType == nil {
		r.PerSiteType = map[string]PerformanceMetrics{}
	}

	n := len(adaptations)
	if n > recentAdaptationCount {
		adaptations = adaptations[n-recentAdaptationCount:]
	}
	r.RecentAdaptations = make([]AdaptationRecord, len(adaptations))
	copy(r.RecentAdaptations, adaptations)

	var successes, detections int
	for _, m := range r.PerSiteType {
		r.TotalSessions += m.TotalSessions
		successes += m.SuccessfulSessions
		detections += m.DetectedSessions
	}
	if r.TotalSessions > 0 {
		successRate := float64(successes) / float64(r.TotalSessions)
		detectionRate := float64(detections) / float64(r.TotalSessions)
		switch {
		case successRate >= 0.7 && detectionRate <= 0.3:
			r.SystemHealth = HealthHealthy
		case successRate >= 0.5:
			r.SystemHealth = HealthDegraded
		default:
			r.SystemHealth = HealthCritical
		}
	}
	return r
}
