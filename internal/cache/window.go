// Package cache keeps a short time-windowed history of recent records per
// (station, stream kind) for cross-stream correlation queries.
package cache

import (
	"sync"
	"time"

	"github.com/sentinelhq/sentinel/internal/record"
)

// Entry wraps a cached record with the time it entered the cache.
type Entry struct {
	Record   *record.Record
	CachedAt time.Time
}

type bucketKey struct {
	station string
	kind    record.Kind
}

// Window is a pruned-on-insert event cache. Entries older than the horizon,
// relative to the most recently inserted record's timestamp, are discarded.
// Safe for concurrent use; buckets lock independently of each other via a
// single short read lock on the bucket map plus a per-bucket mutex.
type Window struct {
	horizon time.Duration

	mu      sync.RWMutex
	buckets map[bucketKey]*bucket
}

type bucket struct {
	mu      sync.Mutex
	entries []Entry
}

// New creates a Window with the given horizon (how far back entries survive).
func New(horizon time.Duration) *Window {
	return &Window{
		horizon: horizon,
		buckets: make(map[bucketKey]*bucket),
	}
}

// Insert appends rec to its (station, kind) bucket and prunes entries whose
// record timestamp is older than horizon before rec's timestamp. Out-of-order
// timestamps are tolerated: pruning only ever uses the inserted record's own
// timestamp as the reference point.
func (w *Window) Insert(rec *record.Record) {
	b := w.bucket(rec.StationID, rec.Kind)

	cutoff := rec.Timestamp.Add(-w.horizon)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, Entry{Record: rec, CachedAt: time.Now()})

	// Stale entries cluster at the front under near-monotonic arrival, so a
	// single scan from the head is O(k) amortized.
	keep := 0
	for keep < len(b.entries) && b.entries[keep].Record.Timestamp.Before(cutoff) {
		keep++
	}
	if keep > 0 {
		b.entries = append(b.entries[:0], b.entries[keep:]...)
	}
}

// Query returns all cached entries for (station, kind) whose record timestamp
// lies in [center-window, center+window], in insertion order.
func (w *Window) Query(station string, kind record.Kind, center time.Time, window time.Duration) []Entry {
	w.mu.RLock()
	b, ok := w.buckets[bucketKey{station, kind}]
	w.mu.RUnlock()
	if !ok {
		return nil
	}

	lo := center.Add(-window)
	hi := center.Add(window)

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Entry
	for _, e := range b.entries {
		ts := e.Record.Timestamp
		if !ts.Before(lo) && !ts.After(hi) {
			out = append(out, e)
		}
	}
	return out
}

// QueryAll returns cached entries across every stream kind for a station
// within [center-window, center+window].
func (w *Window) QueryAll(station string, center time.Time, window time.Duration) []Entry {
	var out []Entry
	for _, k := range record.Kinds() {
		out = append(out, w.Query(station, k, center, window)...)
	}
	return out
}

func (w *Window) bucket(station string, kind record.Kind) *bucket {
	key := bucketKey{station, kind}

	w.mu.RLock()
	b, ok := w.buckets[key]
	w.mu.RUnlock()
	if ok {
		return b
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok = w.buckets[key]; ok {
		return b
	}
	b = &bucket{}
	w.buckets[key] = b
	return b
}
