package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"chameleon/internal/logging"
)

const (
	defaultSnapshotEvery    = 100
	defaultPredictionWindow = 100
	defaultEventBuffer      = 256
	defaultAdaptationCap    = 10000
	flushTimeout            = 10 * time.Second
)

// Config holds the engine's construction-time settings. Gate settings live in
// Tunables and can also change at runtime via UpdateTunables.
type Config struct {
	Tunables Tunables

	HistoryCap         int           // session ring capacity (default 10000)
	SnapshotEvery      int           // flush every N ingested sessions (default 100)
	PredictionInterval time.Duration // monitoring tick (default 60s)
	PredictionWindow   int           // sessions fed to the predictor (default 100)
	EventBuffer        int           // event channel capacity (default 256)
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		Tunables:           DefaultTunables(),
		HistoryCap:         defaultHistoryCap,
		SnapshotEvery:      defaultSnapshotEvery,
		PredictionInterval: time.Minute,
		PredictionWindow:   defaultPredictionWindow,
		EventBuffer:        defaultEventBuffer,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	c.Tunables = c.Tunables.withDefaults()
	if c.HistoryCap <= 0 {
		c.HistoryCap = d.HistoryCap
	}
	if c.SnapshotEvery <= 0 {
		c.SnapshotEvery = d.SnapshotEvery
	}
	if c.PredictionInterval <= 0 {
		c.PredictionInterval = d.PredictionInterval
	}
	if c.PredictionWindow <= 0 {
		c.PredictionWindow = d.PredictionWindow
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	return c
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithPredictor replaces the default heuristic forecaster.
func WithPredictor(p Predictor) Option {
	return func(e *Engine) { e.predictor = p }
}

// WithABTester replaces the default log-only A/B tester.
func WithABTester(t ABTester) Option {
	return func(e *Engine) { e.abtester = t }
}

// WithSnapshotStore enables persistence. The snapshot is loaded at startup
// and flushed periodically; failures are logged and non-fatal.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(e *Engine) { e.snapshots = s }
}

// WithClock replaces the engine's time source. Tests use this to exercise
// cooldowns and hour buckets deterministically.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the adaptive strategy-control loop. One mutex guards all five
// owned maps (metrics, strategies, history, adaptation records, rate-limit
// counters); adaptation application is additionally single-flight via an
// atomic flag, and the monitoring tick runs on its own goroutine against
// point-in-time copies.
type Engine struct {
	cfg Config

	mu               sync.RWMutex
	history          *sessionLog
	metrics          *metricsStore
	strategies       *strategyStore
	gate             *adaptationGate
	adaptations      []AdaptationRecord
	totalAdaptations int
	ingested         int

	adapting atomic.Bool // single-flight adaptation flag (CAS)
	flushing atomic.Bool

	events        chan Event
	droppedEvents atomic.Int64

	predictor Predictor
	abtester  ABTester
	snapshots SnapshotStore
	now       func() time.Time

	lifeMu   sync.RWMutex // guards closed against in-flight API calls
	closed   bool
	inflight sync.WaitGroup
	stop     chan struct{}
	bg       conc.WaitGroup
}

// New constructs and starts an engine. The monitoring goroutine runs until
// Close. If a snapshot store is configured, prior state is loaded before the
// first ingestion.
func New(cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:       cfg,
		predictor: HeuristicPredictor{},
		abtester:  loggingABTester{},
		now:       time.Now,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	now := e.now()
	e.history = newSessionLog(cfg.HistoryCap)
	e.metrics = newMetricsStore()
	e.strategies = newStrategyStore(now)
	e.gate = newAdaptationGate(cfg.Tunables)
	e.events = make(chan Event, cfg.EventBuffer)

	if e.snapshots != nil {
		e.loadSnapshot()
	}

	e.bg.Go(e.monitorLoop)
	logging.Engine("engine started: history_cap=%d prediction_interval=%s",
		cfg.HistoryCap, cfg.PredictionInterval)
	return e
}

// enter registers an API call against shutdown. Returns false once closed.
func (e *Engine) enter() bool {
	e.lifeMu.RLock()
	defer e.lifeMu.RUnlock()
	if e.closed {
		return false
	}
	e.inflight.Add(1)
	return true
}

// Ingest folds one completed session into the engine. Safe for many
// concurrent producers. A malformed result is rejected with IngestionError
// before any aggregate is touched.
func (e *Engine) Ingest(ctx context.Context, r SessionResult) error {
	if err := validateResult(&r); err != nil {
		logging.IngestDebug("rejected result: %v", err)
		return err
	}
	if !e.enter() {
		return ErrEngineClosed
	}
	defer e.inflight.Done()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = e.now()
	}

	e.mu.Lock()
	e.history.append(r)
	e.strategies.ensure(r.SiteType, r.Timestamp)
	m := e.metrics.record(r)
	alerts := evaluateAlerts(m)

	siteHistory := e.history.forSite(r.SiteType, methodMemoryWindow)
	knownMethods := e.history.detectedMethods(r.SiteType, methodMemoryWindow, r.ID)
	patterns := detectPatterns(r, siteHistory, knownMethods)

	eligible, holdReason := e.gate.eligible(r.SiteType, m, e.now())
	triggered, triggers := e.gate.triggered(m, patterns)
	threshold := e.gate.tunables.AdaptationThreshold

	e.ingested++
	needFlush := e.snapshots != nil && e.ingested%e.cfg.SnapshotEvery == 0
	e.mu.Unlock()

	logging.IngestDebug("session %s site=%s success=%v detected=%v rt=%.0fms",
		r.ID, r.SiteType, r.Success, r.Detected, r.ResponseTimeMs)
	if patterns.DetectionRisk > 0.5 || patterns.NewDetectionMethod {
		logging.Pattern("site=%s risk=%.2f new_method=%v degradation=%v",
			r.SiteType, patterns.DetectionRisk, patterns.NewDetectionMethod, patterns.PerformanceDegradation)
	}

	for i := range alerts {
		a := alerts[i]
		logging.Alert("%s site=%s value=%.2f threshold=%.2f", a.Type, a.SiteType, a.Value, a.Threshold)
		e.emit(Event{Kind: EventAlert, SiteType: a.SiteType, Alert: &a})
	}
	e.emit(Event{Kind: EventSessionProcessed, SiteType: r.SiteType})

	if triggered {
		if eligible {
			e.adapt(ctx, r.SiteType, patterns, m, threshold, triggers)
		} else {
			logging.AdaptDebug("adaptation held for %s: %s", r.SiteType, holdReason)
		}
	}

	if needFlush {
		e.asyncFlush()
	}
	return nil
}

func validateResult(r *SessionResult) error {
	if r.SiteType == "" {
		return &IngestionError{Field: "site_type", Reason: "is required"}
	}
	if r.ResponseTimeMs < 0 {
		return &IngestionError{Field: "response_time_ms", Reason: "must be non-negative"}
	}
	return nil
}

// adapt applies one adaptation end to end. Only one adaptation may be in
// flight engine-wide; a concurrent attempt is skipped and logged, never
// queued. Failures inside the critical section clear the flag and emit an
// adaptationError event; the engine stays usable.
func (e *Engine) adapt(ctx context.Context, siteType string, patterns PatternReport, m PerformanceMetrics, threshold float64, triggers []string) {
	if !e.adapting.CompareAndSwap(false, true) {
		logging.Adapt("skipped for %s: %v", siteType, ErrAdaptationInFlight)
		return
	}
	defer e.adapting.Store(false)

	var record AdaptationRecord
	var rec Recommendation
	caught := panics.Try(func() {
		rec = recommend(m, patterns, threshold)
		if rec.Update.IsZero() {
			return
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		now := e.now()
		// Re-check under the lock: tunables or counters may have moved since
		// the decision was taken.
		if ok, reason := e.gate.eligible(siteType, m, now); !ok {
			logging.AdaptDebug("adaptation lost eligibility for %s: %s", siteType, reason)
			return
		}

		old, updated := e.strategies.apply(siteType, rec.Update, triggers, now)
		record = AdaptationRecord{
			ID:          uuid.New().String(),
			SiteType:    siteType,
			Patterns:    patterns,
			OldStrategy: old,
			NewStrategy: updated,
			Reasons:     rec.Reasons,
			Timestamp:   now,
		}
		e.appendAdaptation(record)
		e.gate.recordApplied(siteType, now)
	})
	if caught != nil {
		err := &AdaptationError{SiteType: siteType, Err: fmt.Errorf("panic: %v", caught.Value)}
		logging.Adapt("error: %v", err)
		e.emit(Event{Kind: EventAdaptationError, SiteType: siteType, Err: err.Error()})
		return
	}
	if record.ID == "" {
		return // nothing applied
	}

	logging.Adapt("applied for %s: %s -> %s reasons=%v",
		siteType, record.OldStrategy.Version, record.NewStrategy.Version, record.Reasons)
	e.emit(Event{Kind: EventAdaptationTriggered, SiteType: siteType, Record: &record})

	if rec.ABTestRequired && e.abtester != nil {
		meta := ABTestMeta{RecordID: record.ID, Reasons: rec.Reasons, Confidence: rec.Confidence}
		if caught := panics.Try(func() {
			if err := e.abtester.Start(ctx, siteType, record.NewStrategy, meta); err != nil {
				logging.Adapt("A/B start failed for %s: %v", siteType, err)
			}
		}); caught != nil {
			logging.Adapt("A/B tester panicked for %s: %v", siteType, caught.Value)
		}
	}
}

// appendAdaptation keeps the record history append-only but bounded, evicting
// the oldest half at capacity like the session log.
func (e *Engine) appendAdaptation(record AdaptationRecord) {
	if len(e.adaptations) >= defaultAdaptationCap {
		keep := defaultAdaptationCap / 2
		n := copy(e.adaptations, e.adaptations[len(e.adaptations)-keep:])
		e.adaptations = e.adaptations[:n]
	}
	e.adaptations = append(e.adaptations, record)
	e.totalAdaptations++
}

// GetStrategy returns a copy of the active strategy for a site type, or the
// default baseline when the site type is unknown.
func (e *Engine) GetStrategy(siteType string) Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.strategies.get(siteType, e.now())
}

// Metrics returns a copy of the counters for a site type.
func (e *Engine) Metrics(siteType string) (PerformanceMetrics, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metrics.get(siteType)
}

// Events exposes the engine's event stream. The channel is never closed;
// consumers should select against their own shutdown signal.
func (e *Engine) Events() <-chan Event { return e.events }

// DroppedEvents reports how many events were discarded because the channel
// was full.
func (e *Engine) DroppedEvents() int64 { return e.droppedEvents.Load() }

// UpdateTunables swaps the gate settings at runtime (config hot-reload).
func (e *Engine) UpdateTunables(t Tunables) {
	e.mu.Lock()
	e.gate.setTunables(t)
	e.mu.Unlock()
	logging.Engine("tunables updated: min_data=%d cooldown=%s cap=%d threshold=%.2f",
		t.MinDataPoints, t.AdaptationCooldown, t.MaxAdaptationsPerHour, t.AdaptationThreshold)
}

func (e *Engine) emit(ev Event) {
	ev.Time = e.now()
	select {
	case e.events <- ev:
	default:
		e.droppedEvents.Add(1)
		logging.EngineDebug("event dropped: %s", ev.Kind)
	}
}

// =============================================================================
// MONITORING LOOP
// =============================================================================

func (e *Engine) monitorLoop() {
	ticker := time.NewTicker(e.cfg.PredictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.monitorTick()
		}
	}
}

// monitorTick runs the predictor over a point-in-time copy of the most recent
// window. Errors and panics are isolated to the tick; the loop keeps going.
func (e *Engine) monitorTick() {
	e.mu.RLock()
	window := e.history.recent(e.cfg.PredictionWindow)
	e.mu.RUnlock()
	if len(window) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PredictionInterval)
	defer cancel()

	var pred Prediction
	var err error
	caught := panics.Try(func() {
		pred, err = e.predictor.Predict(ctx, window)
	})
	if caught != nil {
		logging.Predict("predictor panicked: %v", caught.Value)
		return
	}
	if err != nil {
		logging.Predict("predictor failed: %v", err)
		return
	}

	logging.Predict("risk=%s failure_rate=%.2f predicted_success=%.2f confidence=%.2f n=%d",
		pred.RiskLevel, pred.FailureRate, pred.PredictedSuccessRate, pred.Confidence, pred.SessionCount)

	if pred.FailureRate > 0.5 {
		e.emit(Event{Kind: EventHighFailureRate, FailureRate: pred.FailureRate, SessionCount: pred.SessionCount})
	}
	if len(pred.DetectionMethods) > 0 {
		e.emit(Event{Kind: EventNewDetectionMethods, Methods: pred.DetectionMethods})
	}
	if pred.RiskLevel == RiskHigh {
		p := pred
		e.emit(Event{Kind: EventHighRiskPredicted, Prediction: &p})
	}
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func (e *Engine) buildSnapshot() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	adaptations := make([]AdaptationRecord, len(e.adaptations))
	copy(adaptations, e.adaptations)
	return &Snapshot{
		Sessions:    e.history.all(),
		Adaptations: adaptations,
		Metrics:     e.metrics.snapshot(),
		Strategies:  e.strategies.snapshot(),
		LastUpdated: e.now(),
	}
}

func (e *Engine) loadSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	snap, err := e.snapshots.Load(ctx)
	if err != nil {
		logging.Persist("snapshot load failed, continuing in memory-only mode: %v", err)
		return
	}
	if snap == nil {
		return
	}

	e.mu.Lock()
	for _, s := range snap.Sessions {
		e.history.append(s)
	}
	e.adaptations = append(e.adaptations, snap.Adaptations...)
	e.totalAdaptations = len(snap.Adaptations)
	e.metrics.restore(snap.Metrics)
	e.strategies.restore(snap.Strategies)
	e.mu.Unlock()

	logging.Persist("snapshot loaded: %d sessions, %d adaptations, %d strategies",
		len(snap.Sessions), len(snap.Adaptations), len(snap.Strategies))
}

// asyncFlush writes a snapshot off the ingestion path. A flush already in
// progress makes this a no-op; the next interval picks the state up.
func (e *Engine) asyncFlush() {
	if !e.flushing.CompareAndSwap(false, true) {
		return
	}
	e.bg.Go(func() {
		defer e.flushing.Store(false)
		e.flush()
	})
}

func (e *Engine) flush() {
	snap := e.buildSnapshot()
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := e.snapshots.Save(ctx, snap); err != nil {
		logging.Persist("snapshot flush failed: %v", err)
		return
	}
	logging.Persist("snapshot flushed: %d sessions", len(snap.Sessions))
}

// Close shuts the engine down deterministically: new API calls are refused,
// in-flight ones drain, the monitoring timer stops, and a final snapshot is
// flushed. Idempotent.
func (e *Engine) Close() error {
	e.lifeMu.Lock()
	if e.closed {
		e.lifeMu.Unlock()
		return nil
	}
	e.closed = true
	e.lifeMu.Unlock()

	e.inflight.Wait()
	close(e.stop)
	e.bg.Wait()

	if e.snapshots != nil {
		e.flush()
	}
	logging.Engine("engine stopped: dropped_events=%d", e.droppedEvents.Load())
	return nil
}
