// Package emit turns detector findings into numbered, timestamped anomaly
// events and fans them out to the configured sinks.
package emit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelhq/sentinel/internal/detect"
	"github.com/sentinelhq/sentinel/internal/metrics"
)

// Event is the engine's sole externally visible output unit. Wire shape per
// JSONL line: {"timestamp", "event_id", "event_data": {"event_name", ...}}.
// Severity travels alongside for broadcasters and metrics but stays out of
// the canonical line format.
type Event struct {
	Timestamp string          `json:"timestamp"`
	EventID   string          `json:"event_id"`
	EventData map[string]any  `json:"event_data"`
	Severity  detect.Severity `json:"-"`
}

// Sink receives emitted events. Append failures are the sink's to report and
// the emitter's to swallow.
type Sink interface {
	Append(Event) error
}

// Broadcaster pushes events to live consumers (dashboard websockets, pub/sub).
// Failures must not affect the append sink.
type Broadcaster interface {
	Broadcast(Event)
}

// Emitter assigns monotonically increasing ids and hands events to sinks.
// Emit never fails and never blocks detection on a broken sink.
type Emitter struct {
	mu           sync.Mutex
	counter      uint64
	sink         Sink
	broadcasters []Broadcaster
	now          func() time.Time
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithBroadcaster adds a live-feed consumer.
func WithBroadcaster(b Broadcaster) Option {
	return func(e *Emitter) { e.broadcasters = append(e.broadcasters, b) }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) { e.now = now }
}

// New creates an Emitter writing to sink.
func New(sink Sink, opts ...Option) *Emitter {
	e := &Emitter{sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit materializes one finding into an Event, appends it to the sink, and
// broadcasts it. Sink errors are logged, counted, and swallowed; detection
// state is never rolled back.
func (e *Emitter) Emit(f detect.Finding) Event {
	e.mu.Lock()
	e.counter++
	id := fmt.Sprintf("E%03d", e.counter)
	e.mu.Unlock()

	data := make(map[string]any, len(f.Attrs)+1)
	data["event_name"] = f.Name
	for k, v := range f.Attrs {
		data[k] = v
	}

	ev := Event{
		Timestamp: e.now().UTC().Format(time.RFC3339),
		EventID:   id,
		EventData: data,
		Severity:  f.Severity,
	}

	if err := e.sink.Append(ev); err != nil {
		metrics.SinkErrors.Inc()
		slog.Warn("event sink append failed", "event_id", id, "err", err)
	}
	for _, b := range e.broadcasters {
		b.Broadcast(ev)
	}

	metrics.AnomaliesEmitted.WithLabelValues(f.Name, string(f.Severity)).Inc()
	return ev
}

// EmitAll emits findings in order and returns the produced events.
func (e *Emitter) EmitAll(fs []detect.Finding) []Event {
	if len(fs) == 0 {
		return nil
	}
	out := make([]Event, 0, len(fs))
	for _, f := range fs {
		out = append(out, e.Emit(f))
	}
	return out
}

// Count returns the number of events emitted so far.
func (e *Emitter) Count() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counter
}
