// Package store persists raw stream records and emitted anomaly events to
// SQLite for audit, replay, and the dashboard queries. It is a pass-through
// consumer of the ingestion path; detection never reads it.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sentinelhq/sentinel/internal/emit"
	"github.com/sentinelhq/sentinel/internal/record"
)

const schema = `
CREATE TABLE IF NOT EXISTS stream_data (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	dataset    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	station_id TEXT,
	customer_id TEXT,
	status     TEXT,
	data       TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id   TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	event_name TEXT NOT NULL,
	severity   TEXT NOT NULL,
	data       TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_stream_station ON stream_data(station_id);
CREATE INDEX IF NOT EXISTS idx_events_name ON events(event_name);
`

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// Open creates or opens the audit database at path and ensures the schema.
// Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db %s: %w", path, err)
	}
	// A single writer keeps SQLite happy under the detection worker plus
	// the HTTP handlers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit db schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// AppendRecord stores one raw stream record.
func (s *Store) AppendRecord(rec *record.Record) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("audit record marshal: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO stream_data (dataset, kind, timestamp, station_id, customer_id, status, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Dataset, rec.Kind.String(), rec.Timestamp.Format(time.RFC3339),
		rec.StationID, rec.CustomerID, rec.Status, string(payload),
	)
	if err != nil {
		return fmt.Errorf("audit record insert: %w", err)
	}
	return nil
}

// AppendEvent stores one emitted anomaly event.
func (s *Store) AppendEvent(ev emit.Event) error {
	name, _ := ev.EventData["event_name"].(string)
	payload, err := json.Marshal(ev.EventData)
	if err != nil {
		return fmt.Errorf("audit event marshal: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO events (event_id, timestamp, event_name, severity, data)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.EventID, ev.Timestamp, name, string(ev.Severity), string(payload),
	)
	if err != nil {
		return fmt.Errorf("audit event insert: %w", err)
	}
	return nil
}

// StoredEvent is one row of the events table for API consumers.
type StoredEvent struct {
	EventID   string         `json:"event_id"`
	Timestamp string         `json:"timestamp"`
	EventName string         `json:"event_name"`
	Severity  string         `json:"severity"`
	EventData map[string]any `json:"event_data"`
}

// RecentEvents returns the newest limit events, newest first.
func (s *Store) RecentEvents(limit int) ([]StoredEvent, error) {
	rows, err := s.db.Query(
		`SELECT event_id, timestamp, event_name, severity, data
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit recent events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		var data string
		if err := rows.Scan(&ev.EventID, &ev.Timestamp, &ev.EventName, &ev.Severity, &data); err != nil {
			return nil, fmt.Errorf("audit scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &ev.EventData); err != nil {
			ev.EventData = map[string]any{}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Stats summarizes stored volume for the dashboard.
type Stats struct {
	RecordsStored  int            `json:"records_stored"`
	EventsStored   int            `json:"events_stored"`
	EventsByName   map[string]int `json:"events_by_name"`
	ActiveStations int            `json:"active_stations"`
}

// Stats computes aggregate counts.
func (s *Store) Stats() (Stats, error) {
	st := Stats{EventsByName: make(map[string]int)}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM stream_data`).Scan(&st.RecordsStored); err != nil {
		return st, fmt.Errorf("audit stats: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&st.EventsStored); err != nil {
		return st, fmt.Errorf("audit stats: %w", err)
	}
	if err := s.db.QueryRow(
		`SELECT COUNT(DISTINCT station_id) FROM stream_data WHERE station_id != ''`,
	).Scan(&st.ActiveStations); err != nil {
		return st, fmt.Errorf("audit stats: %w", err)
	}

	rows, err := s.db.Query(`SELECT event_name, COUNT(*) FROM events GROUP BY event_name`)
	if err != nil {
		return st, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return st, fmt.Errorf("audit stats scan: %w", err)
		}
		st.EventsByName[name] = n
	}
	return st, rows.Err()
}
