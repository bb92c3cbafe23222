package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelhq/sentinel/internal/detect"
	"github.com/sentinelhq/sentinel/internal/emit"
	"github.com/sentinelhq/sentinel/internal/record"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndQuery(t *testing.T) {
	s := openTest(t)

	rec := &record.Record{
		Kind: record.KindPOS, Dataset: "POS_Transactions",
		StationID: "SCC1", CustomerID: "C001", Status: record.StatusActive,
		Timestamp: time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC),
		Payload:   map[string]any{"sku": "PRD_F_01", "weight_g": 150.0},
	}
	require.NoError(t, s.AppendRecord(rec))

	ev := emit.Event{
		Timestamp: "2025-08-13T16:00:01Z",
		EventID:   "E001",
		EventData: map[string]any{"event_name": "Scanner Avoidance", "station_id": "SCC1"},
		Severity:  detect.SeverityWarning,
	}
	require.NoError(t, s.AppendEvent(ev))

	got, err := s.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "E001", got[0].EventID)
	assert.Equal(t, "Scanner Avoidance", got[0].EventName)
	assert.Equal(t, "warning", got[0].Severity)
	assert.Equal(t, "SCC1", got[0].EventData["station_id"])
}

func TestRecentEventsNewestFirst(t *testing.T) {
	s := openTest(t)
	for i, name := range []string{"Long Queue Length", "Staffing Needs", "Long Wait Time"} {
		require.NoError(t, s.AppendEvent(emit.Event{
			Timestamp: "2025-08-13T16:00:00Z",
			EventID:   []string{"E001", "E002", "E003"}[i],
			EventData: map[string]any{"event_name": name},
			Severity:  detect.SeverityInfo,
		}))
	}

	got, err := s.RecentEvents(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "E003", got[0].EventID)
	assert.Equal(t, "E002", got[1].EventID)
}

func TestStats(t *testing.T) {
	s := openTest(t)

	for _, station := range []string{"SCC1", "SCC1", "SCC2"} {
		require.NoError(t, s.AppendRecord(&record.Record{
			Kind: record.KindRFID, Dataset: "RFID_data", StationID: station,
			Status: record.StatusActive, Timestamp: time.Now().UTC(),
		}))
	}
	require.NoError(t, s.AppendEvent(emit.Event{
		EventID: "E001", Timestamp: "2025-08-13T16:00:00Z",
		EventData: map[string]any{"event_name": "Scanner Avoidance"},
		Severity:  detect.SeverityWarning,
	}))
	require.NoError(t, s.AppendEvent(emit.Event{
		EventID: "E002", Timestamp: "2025-08-13T16:00:01Z",
		EventData: map[string]any{"event_name": "Scanner Avoidance"},
		Severity:  detect.SeverityWarning,
	}))

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, st.RecordsStored)
	assert.Equal(t, 2, st.EventsStored)
	assert.Equal(t, 2, st.ActiveStations)
	assert.Equal(t, 2, st.EventsByName["Scanner Avoidance"])
}
