package engine

// Alert thresholds. Breaching any of these on an accepted ingestion emits one
// Alert event per threshold.
const (
	alertMinSuccessRate   = 0.6
	alertMaxDetectionRate = 0.3
	alertMaxAvgResponseMs = 30000
	alertMaxErrorRate     = 0.1
)

// metricsStore keeps the per-site-type running counters. Owned by the engine;
// the engine's lock guards it.
type metricsStore struct {
	perSite map[string]*PerformanceMetrics
}

func newMetricsStore() *metricsStore {
	return &metricsStore{perSite: make(map[string]*PerformanceMetrics)}
}

// record folds one session into the counters for its site type and returns a
// copy of the updated metrics. The mean latency uses the incremental form
// avg' = (avg*(n-1) + x) / n.
func (ms *metricsStore) record(r SessionResult) PerformanceMetrics {
	m, ok := ms.perSite[r.SiteType]
	if !ok {
		m = &PerformanceMetrics{SiteType: r.SiteType}
		ms.perSite[r.SiteType] = m
	}

	m.TotalSessions++
	if r.Success {
		m.SuccessfulSessions++
	}
	if r.Detected {
		m.DetectedSessions++
	}
	if r.Error {
		m.ErrorCount++
	}

	n := float64(m.TotalSessions)
	m.AverageResponseTimeMs = (m.AverageResponseTimeMs*(n-1) + r.ResponseTimeMs) / n
	m.SuccessRate = float64(m.SuccessfulSessions) / n
	m.DetectionRate = float64(m.DetectedSessions) / n
	m.ErrorRate = float64(m.ErrorCount) / n
	m.LastUpdated = r.Timestamp

	return *m
}

// get returns a copy of the metrics for a site type, if any.
func (ms *metricsStore) get(siteType string) (PerformanceMetrics, bool) {
	m, ok := ms.perSite[siteType]
	if !ok {
		return PerformanceMetrics{}, false
	}
	return *m, true
}

// snapshot copies the whole store for persistence and reporting.
func (ms *metricsStore) snapshot() map[string]PerformanceMetrics {
	out := make(map[string]PerformanceMetrics, len(ms.perSite))
	for k, v := range ms.perSite {
		out[k] = *v
	}
	return out
}

// restore replaces the store's contents from a loaded snapshot.
func (ms *metricsStore) restore(saved map[string]PerformanceMetrics) {
	for k, v := range saved {
		m := v
		m.SiteType = k
		ms.perSite[k] = &m
	}
}

// evaluateAlerts checks the fixed thresholds against one site's metrics and
// returns one Alert per breach.
func evaluateAlerts(m PerformanceMetrics) []Alert {
	var alerts []Alert
	if m.SuccessRate < alertMinSuccessRate {
		alerts = append(alerts, Alert{
			Type: AlertLowSuccessRate, SiteType: m.SiteType,
			Value: m.SuccessRate, Threshold: alertMinSuccessRate,
		})
	}
	if m.DetectionRate > alertMaxDetectionRate {
		alerts = append(alerts, Alert{
			Type: AlertHighDetectionRate, SiteType: m.SiteType,
			Value: m.DetectionRate, Threshold: alertMaxDetectionRate,
		})
	}
	if m.AverageResponseTimeMs > alertMaxAvgResponseMs {
		alerts = append(alerts, Alert{
			Type: AlertSlowResponseTime, SiteType: m.SiteType,
			Value: m.AverageResponseTimeMs, Threshold: alertMaxAvgResponseMs,
		})
	}
	if m.ErrorRate > alertMaxErrorRate {
		alerts = append(alerts, Alert{
			Type: AlertHighErrorRate, SiteType: m.SiteType,
			Value: m.ErrorRate, Threshold: alertMaxErrorRate,
		})
	}
	return alerts
}

// sanity-check helper used by tests; the invariants hold by construction.
func (m PerformanceMetrics) countersConsistent() bool {
	return m.SuccessfulSessions <= m.TotalSessions &&
		m.DetectedSessions <= m.TotalSessions &&
		m.ErrorCount <= m.TotalSessions
}
