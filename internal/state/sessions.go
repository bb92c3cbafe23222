package state

import (
	"sort"
	"sync"
	"time"

	"github.com/sentinelhq/sentinel/internal/record"
)

// SessionEvent is one record observed during a session, in arrival order.
type SessionEvent struct {
	Kind      record.Kind
	Timestamp time.Time
	Record    *record.Record
}

// Session is the bounded interaction window for one (station, customer)
// pair, used by the behavioral-pattern rules.
type Session struct {
	StationID    string
	CustomerID   string
	StartTime    time.Time
	LastActivity time.Time
	Events       []SessionEvent
}

// POSEvents returns the session's POS records in order.
func (s *Session) POSEvents() []SessionEvent {
	var out []SessionEvent
	for _, e := range s.Events {
		if e.Kind == record.KindPOS {
			out = append(out, e)
		}
	}
	return out
}

// Duration is the span from the first to the last observed record.
func (s *Session) Duration() time.Duration {
	return s.LastActivity.Sub(s.StartTime)
}

type sessionKey struct {
	station  string
	customer string
}

// Sessions tracks live sessions and expires idle ones.
type Sessions struct {
	timeout time.Duration

	mu   sync.Mutex
	live map[sessionKey]*Session
}

// NewSessions creates a store expiring sessions idle longer than timeout.
func NewSessions(timeout time.Duration) *Sessions {
	return &Sessions{
		timeout: timeout,
		live:    make(map[sessionKey]*Session),
	}
}

// Touch appends rec to the (station, customer) session, creating it on first
// contact, and returns the session for in-pass pattern checks.
func (s *Sessions) Touch(rec *record.Record) *Session {
	key := sessionKey{rec.StationID, rec.CustomerID}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live[key]
	if !ok {
		sess = &Session{
			StationID:  rec.StationID,
			CustomerID: rec.CustomerID,
			StartTime:  rec.Timestamp,
		}
		s.live[key] = sess
	}
	sess.LastActivity = rec.Timestamp
	sess.Events = append(sess.Events, SessionEvent{Kind: rec.Kind, Timestamp: rec.Timestamp, Record: rec})
	return sess
}

// Get returns the live session for (station, customer), if any.
func (s *Sessions) Get(station, customer string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live[sessionKey{station, customer}]
	return sess, ok
}

// Sweep removes sessions whose last activity is older than the timeout
// relative to now and returns them, sorted by station then customer, for
// end-of-session analysis.
func (s *Sessions) Sweep(now time.Time) []*Session {
	cutoff := now.Add(-s.timeout)

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*Session
	for key, sess := range s.live {
		if sess.LastActivity.Before(cutoff) {
			expired = append(expired, sess)
			delete(s.live, key)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].StationID != expired[j].StationID {
			return expired[i].StationID < expired[j].StationID
		}
		return expired[i].CustomerID < expired[j].CustomerID
	})
	return expired
}

// Live returns the number of active sessions.
func (s *Sessions) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}
