package engine

import (
	"strings"
	"time"
)

// Known site-type categories that get a baseline strategy at engine init.
// Unknown site types fall back to the generic baseline on first contact.
var knownSiteTypes = []string{
	"survey_simple",
	"survey_complex",
	"registration_form",
	"email_confirm",
}

// defaultStrategy returns the baseline for a site type. Categories known to
// be better defended start with stronger masking.
func defaultStrategy(siteType string, now time.Time) Strategy {
	s := Strategy{
		SiteType:              siteType,
		Fingerprinting:        FingerprintMedium,
		BehaviorRandomization: 0.5,
		TimingVariation:       0.5,
		MouseComplexity:       MouseMedium,
		CaptchaMode:           CaptchaStandard,
		Version:               StrategyVersion{Major: 1, Minor: 0},
		CreatedAt:             now,
		LastUpdated:           now,
	}
	switch siteType {
	case "survey_complex":
		s.Fingerprinting = FingerprintHigh
		s.MouseComplexity = MouseHigh
		s.BehaviorRandomization = 0.6
	case "registration_form":
		s.Fingerprinting = FingerprintHigh
		s.CaptchaMode = CaptchaAdvanced
	}
	return s
}

// BaselineStrategy exposes the default baseline for offline tooling that has
// no running engine (the CLI strategy command).
func BaselineStrategy(siteType string, now time.Time) Strategy {
	return defaultStrategy(siteType, now)
}

// strategyStore holds the one active strategy per site type. Strategies are
// stored behind pointers that are swapped wholesale on adaptation, so a
// reader holding the engine lock always sees a complete strategy.
type strategyStore struct {
	strategies map[string]*Strategy
}

func newStrategyStore(now time.Time) *strategyStore {
	ss := &strategyStore{strategies: make(map[string]*Strategy)}
	for _, st := range knownSiteTypes {
		s := defaultStrategy(st, now)
		ss.strategies[st] = &s
	}
	return ss
}

// get returns a copy of the active strategy, or the baseline if the site
// type has never been seen. The baseline is not stored; ensure does that.
func (ss *strategyStore) get(siteType string, now time.Time) Strategy {
	if s, ok := ss.strategies[siteType]; ok {
		return *s
	}
	return defaultStrategy(siteType, now)
}

// ensure materializes the baseline for a site type on first contact.
func (ss *strategyStore) ensure(siteType string, now time.Time) {
	if _, ok := ss.strategies[siteType]; !ok {
		s := defaultStrategy(siteType, now)
		ss.strategies[siteType] = &s
	}
}

// apply merges a validated update onto the current strategy and swaps the new
// version in. Returns the old and new strategies for the adaptation record.
func (ss *strategyStore) apply(siteType string, u StrategyUpdate, reasons []string, now time.Time) (old, updated Strategy) {
	old = ss.get(siteType, now)

	updated = applyUpdate(old, u)
	validateStrategy(&updated)
	updated.Version = old.Version.bumpMinor()
	updated.AdaptationCount = old.AdaptationCount + 1
	updated.LastUpdated = now
	updated.AdaptationReason = strings.Join(reasons, "; ")

	swapped := updated
	ss.strategies[siteType] = &swapped
	return old, updated
}

func (ss *strategyStore) count() int { return len(ss.strategies) }

// snapshot copies all strategies for persistence and reporting.
func (ss *strategyStore) snapshot() map[string]Strategy {
	out := make(map[string]Strategy, len(ss.strategies))
	for k, v := range ss.strategies {
		out[k] = *v
	}
	return out
}

// restore replaces stored strategies from a loaded snapshot, validating each
// one so a hand-edited snapshot cannot smuggle out-of-range values in.
func (ss *strategyStore) restore(saved map[string]Strategy) {
	for k, v := range saved {
		s := v
		s.SiteType = k
		validateStrategy(&s)
		ss.strategies[k] = &s
	}
}
