package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatusActive is the status most detectors require before firing.
const StatusActive = "Active"

// StatusSystemCrash marks a POS feed that went down mid-transaction.
const StatusSystemCrash = "System Crash"

// Record is the canonical input model for all incoming sensor records.
// Immutable once decoded; produced by the ingestion adapter and consumed
// exactly once by the detection engine.
type Record struct {
	ID         string         `json:"id,omitempty"`
	Kind       Kind           `json:"-"`
	Dataset    string         `json:"dataset"`
	StationID  string         `json:"station_id"`
	CustomerID string         `json:"customer_id,omitempty"`
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// wireRecord is the on-the-wire envelope produced by the stream server:
// {"dataset": ..., "event": {"status", "station_id", "customer_id"?, "data": {...}}, "timestamp": ...}
type wireRecord struct {
	Dataset string    `json:"dataset"`
	Event   wireEvent `json:"event"`
	// Timestamps arrive as ISO-8601 strings, sometimes without a zone.
	Timestamp string `json:"timestamp"`
}

type wireEvent struct {
	Status     string         `json:"status"`
	StationID  string         `json:"station_id"`
	CustomerID string         `json:"customer_id"`
	Data       map[string]any `json:"data"`
}

// Decode parses one line of the wire format into a Record.
// Records without a station id or timestamp are rejected; the caller skips
// them and keeps reading.
func Decode(line []byte) (*Record, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if w.Event.StationID == "" {
		return nil, fmt.Errorf("decode record: missing station_id")
	}
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	cust := w.Event.CustomerID
	if cust == "" {
		// POS transactions nest the customer inside the data object.
		if c, ok := w.Event.Data["customer_id"].(string); ok {
			cust = c
		}
	}

	return &Record{
		Kind:       ParseKind(w.Dataset),
		Dataset:    w.Dataset,
		StationID:  w.Event.StationID,
		CustomerID: cust,
		Status:     w.Event.Status,
		Timestamp:  ts,
		Payload:    w.Event.Data,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

// Str returns the payload string at key.
func (r *Record) Str(key string) (string, bool) {
	v, ok := r.Payload[key].(string)
	return v, ok
}

// Float returns the payload number at key. JSON numbers decode as float64;
// ints are accepted for records built in code.
func (r *Record) Float(key string) (float64, bool) {
	switch v := r.Payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Int returns the payload number at key truncated to an int.
func (r *Record) Int(key string) (int, bool) {
	f, ok := r.Float(key)
	return int(f), ok
}
