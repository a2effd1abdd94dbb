package engine

import (
	"fmt"
	"time"
)

// Tunables are the adaptation-gate settings that can change at runtime
// (config hot-reload). Zero or negative fields fall back to defaults.
type Tunables struct {
	MinDataPoints         int
	AdaptationCooldown    time.Duration
	MaxAdaptationsPerHour int
	AdaptationThreshold   float64
}

// DefaultTunables returns the reference gate settings.
func DefaultTunables() Tunables {
	return Tunables{
		MinDataPoints:         10,
		AdaptationCooldown:    5 * time.Minute,
		MaxAdaptationsPerHour: 12,
		AdaptationThreshold:   0.7,
	}
}

func (t Tunables) withDefaults() Tunables {
	d := DefaultTunables()
	if t.MinDataPoints <= 0 {
		t.MinDataPoints = d.MinDataPoints
	}
	if t.AdaptationCooldown <= 0 {
		t.AdaptationCooldown = d.AdaptationCooldown
	}
	if t.MaxAdaptationsPerHour <= 0 {
		t.MaxAdaptationsPerHour = d.MaxAdaptationsPerHour
	}
	if t.AdaptationThreshold <= 0 || t.AdaptationThreshold > 1 {
		t.AdaptationThreshold = d.AdaptationThreshold
	}
	return t
}

// adaptationGate decides whether a site type may adapt right now. Rate
// limiting uses a fixed wall-clock hour bucket (floor(now/1h)): a burst of up
// to 2x the cap is possible across a bucket boundary, and that trade-off is
// accepted rather than paying for a sliding window.
//
// All state lives on the gate instance; independent engines share nothing.
type adaptationGate struct {
	tunables       Tunables
	lastAdaptation map[string]time.Time
	hourly         map[string]int // "siteType:bucket" -> applied count
}

func newAdaptationGate(t Tunables) *adaptationGate {
	return &adaptationGate{
		tunables:       t.withDefaults(),
		lastAdaptation: make(map[string]time.Time),
		hourly:         make(map[string]int),
	}
}

func hourBucket(now time.Time) int64 {
	return now.UnixMilli() / (60 * 60 * 1000)
}

func (g *adaptationGate) bucketKey(siteType string, now time.Time) string {
	return fmt.Sprintf("%s:%d", siteType, hourBucket(now))
}

// eligible checks sample size, cooldown and the hourly cap. The returned
// reason describes the first failing check, for the skip log.
func (g *adaptationGate) eligible(siteType string, m PerformanceMetrics, now time.Time) (bool, string) {
	t := g.tunables
	if m.TotalSessions < t.MinDataPoints {
		return false, fmt.Sprintf("need %d sessions, have %d", t.MinDataPoints, m.TotalSessions)
	}
	if last, ok := g.lastAdaptation[siteType]; ok {
		if since := now.Sub(last); since < t.AdaptationCooldown {
			return false, fmt.Sprintf("cooldown: %s since last adaptation", since)
		}
	}
	if g.hourly[g.bucketKey(siteType, now)] >= t.MaxAdaptationsPerHour {
		return false, fmt.Sprintf("hourly cap of %d reached", t.MaxAdaptationsPerHour)
	}
	return true, ""
}

// triggered reports whether any adaptation trigger condition holds, with the
// conditions that fired.
func (g *adaptationGate) triggered(m PerformanceMetrics, p PatternReport) (bool, []string) {
	var reasons []string
	if m.SuccessRate < g.tunables.AdaptationThreshold {
		reasons = append(reasons, fmt.Sprintf("success rate %.2f below threshold %.2f", m.SuccessRate, g.tunables.AdaptationThreshold))
	}
	if m.DetectionRate > alertMaxDetectionRate {
		reasons = append(reasons, fmt.Sprintf("detection rate %.2f above %.2f", m.DetectionRate, alertMaxDetectionRate))
	}
	if p.DetectionRisk > 0.8 {
		reasons = append(reasons, fmt.Sprintf("detection risk %.2f above 0.80", p.DetectionRisk))
	}
	if p.NewDetectionMethod {
		reasons = append(reasons, "new detection method observed")
	}
	if m.ErrorRate > alertMaxErrorRate {
		reasons = append(reasons, fmt.Sprintf("error rate %.2f above %.2f", m.ErrorRate, alertMaxErrorRate))
	}
	return len(reasons) > 0, reasons
}

// recordApplied marks a successful adaptation for rate limiting and drops
// counters from stale hour buckets so the map stays bounded.
func (g *adaptationGate) recordApplied(siteType string, now time.Time) {
	g.lastAdaptation[siteType] = now
	key := g.bucketKey(siteType, now)
	g.hourly[key]++
	for k := range g.hourly {
		if k != key && siteKeyOf(k) == siteType {
			delete(g.hourly, k)
		}
	}
}

func siteKeyOf(bucketKey string) string {
	for i := len(bucketKey) - 1; i >= 0; i-- {
		if bucketKey[i] == ':' {
			return bucketKey[:i]
		}
	}
	return bucketKey
}

func (g *adaptationGate) setTunables(t Tunables) {
	g.tunables = t.withDefaults()
}
