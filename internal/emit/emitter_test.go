package emit

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelhq/sentinel/internal/detect"
)

type memSink struct {
	events []Event
	err    error
}

func (m *memSink) Append(ev Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

type memBroadcast struct{ events []Event }

func (m *memBroadcast) Broadcast(ev Event) { m.events = append(m.events, ev) }

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC) }
}

func finding(name string) detect.Finding {
	return detect.Finding{
		Name:     name,
		Severity: detect.SeverityWarning,
		Attrs:    map[string]any{"station_id": "SCC1"},
	}
}

func TestEmitAssignsMonotonicIDs(t *testing.T) {
	sink := &memSink{}
	e := New(sink, WithClock(fixedClock()))

	ev1 := e.Emit(finding("Scanner Avoidance"))
	ev2 := e.Emit(finding("Weight Discrepancies"))
	ev3 := e.Emit(finding("Long Queue Length"))

	assert.Equal(t, "E001", ev1.EventID)
	assert.Equal(t, "E002", ev2.EventID)
	assert.Equal(t, "E003", ev3.EventID)
	assert.Equal(t, uint64(3), e.Count())
	assert.Equal(t, "2025-08-13T16:00:00Z", ev1.Timestamp)
	assert.Equal(t, "Scanner Avoidance", ev1.EventData["event_name"])
	assert.Equal(t, "SCC1", ev1.EventData["station_id"])
	assert.Len(t, sink.events, 3)
}

func TestEmitSurvivesSinkFailure(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	bc := &memBroadcast{}
	e := New(sink, WithClock(fixedClock()), WithBroadcaster(bc))

	ev := e.Emit(finding("Scanner Avoidance"))
	assert.Equal(t, "E001", ev.EventID, "emit succeeds despite sink failure")
	assert.Len(t, bc.events, 1, "broadcast still happens")

	// The counter keeps climbing; no reuse after failure.
	ev = e.Emit(finding("Scanner Avoidance"))
	assert.Equal(t, "E002", ev.EventID)
}

func TestEmitAllOrder(t *testing.T) {
	sink := &memSink{}
	e := New(sink, WithClock(fixedClock()))

	events := e.EmitAll([]detect.Finding{
		finding("Long Queue Length"),
		finding("Staffing Needs"),
	})
	require.Len(t, events, 2)
	assert.Equal(t, "Long Queue Length", events[0].EventData["event_name"])
	assert.Equal(t, "Staffing Needs", events[1].EventData["event_name"])
	assert.Nil(t, e.EmitAll(nil))
}

func TestFileSinkWireShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "events.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)
	defer sink.Close()

	e := New(sink, WithClock(fixedClock()))
	e.Emit(detect.Finding{
		Name:     "Weight Discrepancies",
		Severity: detect.SeverityWarning,
		Attrs: map[string]any{
			"station_id":      "SCC1",
			"expected_weight": 425.0,
			"actual_weight":   680.0,
		},
	})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var line map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
	assert.Equal(t, "E001", line["event_id"])
	assert.Equal(t, "2025-08-13T16:00:00Z", line["timestamp"])

	data, ok := line["event_data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Weight Discrepancies", data["event_name"])
	assert.Equal(t, 680.0, data["actual_weight"])
	assert.NotContains(t, line, "severity", "severity stays out of the line format")

	assert.False(t, scanner.Scan(), "exactly one line per event")
}

func TestFileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	s1, err := NewFileSink(path)
	require.NoError(t, err)
	New(s1, WithClock(fixedClock())).Emit(finding("Scanner Avoidance"))
	require.NoError(t, s1.Close())

	s2, err := NewFileSink(path)
	require.NoError(t, err)
	New(s2, WithClock(fixedClock())).Emit(finding("Scanner Avoidance"))
	require.NoError(t, s2.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytesLines(raw), "reopening appends instead of truncating")
}

func bytesLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
