package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sentinelhq/sentinel/internal/cache"
	"github.com/sentinelhq/sentinel/internal/catalog"
	"github.com/sentinelhq/sentinel/internal/config"
	"github.com/sentinelhq/sentinel/internal/detect"
	"github.com/sentinelhq/sentinel/internal/emit"
	"github.com/sentinelhq/sentinel/internal/metrics"
	"github.com/sentinelhq/sentinel/internal/record"
	"github.com/sentinelhq/sentinel/internal/state"
	"github.com/sentinelhq/sentinel/internal/store"
)

// RecordResult is the outcome of processing a single record.
type RecordResult struct {
	RecordID   string       `json:"record_id"`
	DurationMs int64        `json:"duration_ms"`
	Events     []emit.Event `json:"events"`
}

// Engine runs every record through the detection registry and publishes the
// resulting anomaly events. Detection runs on a bounded worker pool; the
// default of one worker preserves per-customer ordering, which the stateful
// rules depend on.
type Engine struct {
	thresholds atomic.Pointer[detect.Thresholds]
	registry   *detect.Registry
	patterns   *detect.PatternAnalyzer

	catalog   *catalog.Catalog
	cache     *cache.Window
	customers *state.Customers
	inventory *state.Inventory
	sessions  *state.Sessions

	emitter *emit.Emitter
	audit   *store.Store

	pool *workerPool[*recordWork]
	conf config.EngineConf
}

type recordWork struct {
	rec     *record.Record
	resultC chan *RecordResult
}

// ThresholdsFromConfig converts the YAML detection section into the runtime
// threshold set the detectors read.
func ThresholdsFromConfig(d config.DetectionConf) *detect.Thresholds {
	return &detect.Thresholds{
		WeightToleranceG:     d.WeightToleranceG,
		QueueLengthThreshold: d.QueueLengthThreshold,
		DwellTimeThresholdS:  d.DwellTimeThresholdS,
		AccuracyThreshold:    d.AccuracyThreshold,

		CorrelationEnabled:  d.Correlation.Enabled,
		CorrelationWindow:   time.Duration(d.Correlation.WindowS) * time.Second,
		POSMatchWindow:      time.Duration(d.Correlation.POSMatchWindowS) * time.Second,
		MinBasketSize:       d.Correlation.MinBasketSize,
		WeightVarianceFloor: d.Correlation.WeightVarianceFloor,
		SensorRatio:         d.Correlation.SensorRatio,
		MinPOSVolume:        d.Correlation.MinPOSVolume,

		RapidScanGap:         time.Duration(d.Session.RapidGapS) * time.Second,
		ShortSessionMax:      time.Duration(d.Session.ShortSessionS) * time.Second,
		ShortSessionMinScans: d.Session.ShortSessionMinScans,
	}
}

// New creates an Engine using cfg, starts the detection pool and the
// session-expiry sweeper. audit may be nil to disable the raw-record store.
func New(ctx context.Context, cat *catalog.Catalog, em *emit.Emitter, audit *store.Store, cfg *config.Config) *Engine {
	e := &Engine{
		registry:  detect.DefaultRegistry(),
		patterns:  detect.NewPatternAnalyzer(),
		catalog:   cat,
		cache:     cache.New(time.Duration(cfg.Detection.CacheHorizonS) * time.Second),
		customers: state.NewCustomers(),
		inventory: state.NewInventory(),
		sessions:  state.NewSessions(time.Duration(cfg.Detection.Session.TimeoutS) * time.Second),
		emitter:   em,
		audit:     audit,
		conf:      cfg.Engine,
	}
	e.thresholds.Store(ThresholdsFromConfig(cfg.Detection))

	e.pool = newWorkerPool(ctx, cfg.Engine.DetectWorkers, cfg.Engine.QueueDepth,
		func(ctx context.Context, w *recordWork) {
			res := e.processRecord(w.rec)
			if w.resultC != nil {
				w.resultC <- res
			}
		})

	go e.sweepLoop(ctx, time.Duration(cfg.Detection.Session.SweepIntervalS)*time.Second)
	return e
}

// SwapThresholds atomically replaces the detection tunables (used on
// config hot-reload). In-flight records finish with the thresholds they
// loaded; subsequent records see the new set.
func (e *Engine) SwapThresholds(t *detect.Thresholds) {
	e.thresholds.Store(t)
}

// ProcessSync processes a record synchronously and returns the result.
// Returns an error if the queue is full or the record times out.
func (e *Engine) ProcessSync(ctx context.Context, rec *record.Record) (*RecordResult, error) {
	resultC := make(chan *RecordResult, 1)
	w := &recordWork{rec: rec, resultC: resultC}

	timeout := time.Duration(e.conf.RecordTimeoutMs) * time.Millisecond
	if !e.pool.Submit(w) {
		metrics.RecordsDropped.Inc()
		return nil, fmt.Errorf("record queue full (capacity %d)", e.conf.QueueDepth)
	}

	select {
	case res := <-resultC:
		return res, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("record processing timeout after %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProcessAsync enqueues a record for background processing. Returns false
// if the queue is full.
func (e *Engine) ProcessAsync(rec *record.Record) bool {
	if !e.pool.Submit(&recordWork{rec: rec}) {
		metrics.RecordsDropped.Inc()
		return false
	}
	return true
}

// ProcessWait blocks until the record is queued or ctx is cancelled. The
// stream reader uses this path so a busy pool throttles ingestion instead
// of dropping records.
func (e *Engine) ProcessWait(ctx context.Context, rec *record.Record) bool {
	return e.pool.SubmitWait(ctx, &recordWork{rec: rec})
}

// QueueUtilization returns queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

func (e *Engine) processRecord(rec *record.Record) *RecordResult {
	start := time.Now()

	// Cache before detection: the correlation checks query the window that
	// already contains the record under evaluation.
	e.cache.Insert(rec)
	if e.audit != nil {
		if err := e.audit.AppendRecord(rec); err != nil {
			slog.Warn("engine: audit append failed", "record", rec.ID, "err", err)
		}
	}

	t := e.thresholds.Load()
	deps := &detect.Deps{
		Catalog:   e.catalog,
		Cache:     e.cache,
		Customers: e.customers,
		Inventory: e.inventory,
		Sessions:  e.sessions,
		T:         t,
	}
	findings := e.registry.Detect(rec, deps)

	if rec.CustomerID != "" {
		sess := e.sessions.Touch(rec)
		findings = append(findings, e.patterns.OnRecord(sess, t)...)
	}

	events := e.publish(findings)

	metrics.RecordsConsumed.WithLabelValues(rec.Kind.String()).Inc()
	metrics.ProcessingDuration.Observe(time.Since(start).Seconds() * 1000)
	metrics.QueueUtilization.Set(e.QueueUtilization())
	metrics.SessionsLive.Set(float64(e.sessions.Live()))

	return &RecordResult{
		RecordID:   rec.ID,
		DurationMs: time.Since(start).Milliseconds(),
		Events:     events,
	}
}

func (e *Engine) publish(findings []detect.Finding) []emit.Event {
	if len(findings) == 0 {
		return nil
	}
	events := e.emitter.EmitAll(findings)
	if e.audit != nil {
		for _, ev := range events {
			if err := e.audit.AppendEvent(ev); err != nil {
				slog.Warn("engine: audit append failed", "event", ev.EventID, "err", err)
			}
		}
	}
	return events
}

func (e *Engine) sweepLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.SweepSessions(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// SweepSessions expires sessions idle past the timeout and runs the
// close-out pattern checks on each. Exposed for tests and for flushing at
// shutdown.
func (e *Engine) SweepSessions(now time.Time) []emit.Event {
	var out []emit.Event
	for _, sess := range e.sessions.Sweep(now) {
		out = append(out, e.publish(e.patterns.OnExpire(sess))...)
	}
	metrics.SessionsLive.Set(float64(e.sessions.Live()))
	return out
}

// EmittedCount reports how many anomaly events have been assigned ids.
func (e *Engine) EmittedCount() uint64 {
	return e.emitter.Count()
}

// Shutdown drains the detection pool gracefully.
func (e *Engine) Shutdown() {
	e.pool.Drain()
}
