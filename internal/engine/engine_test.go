package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelhq/sentinel/internal/catalog"
	"github.com/sentinelhq/sentinel/internal/config"
	"github.com/sentinelhq/sentinel/internal/emit"
	"github.com/sentinelhq/sentinel/internal/record"
)

var t0 = time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC)

type memSink struct{ events []emit.Event }

func (m *memSink) Append(ev emit.Event) error {
	m.events = append(m.events, ev)
	return nil
}

func newTestEngine(t *testing.T, mutate func(*config.Config)) (*Engine, *memSink) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sink := &memSink{}
	e := New(ctx, catalog.Empty(), emit.New(sink), nil, cfg)
	return e, sink
}

func posRec(station, customer, sku string, weight, price float64, ts time.Time) *record.Record {
	return &record.Record{
		ID: "r-" + sku, Kind: record.KindPOS, StationID: station, CustomerID: customer,
		Status: record.StatusActive, Timestamp: ts,
		Payload: map[string]any{"sku": sku, "weight_g": weight, "price": price},
	}
}

func TestProcessSyncWeightDiscrepancy(t *testing.T) {
	e, sink := newTestEngine(t, nil)
	defer e.Shutdown()

	res, err := e.ProcessSync(context.Background(), posRec("SCC1", "C004", "PRD_F_03", 680, 425, t0))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Weight Discrepancies", res.Events[0].EventData["event_name"])
	assert.Equal(t, "E001", res.Events[0].EventID)
	assert.Len(t, sink.events, 1, "events reach the sink as they are produced")
	assert.EqualValues(t, 1, e.EmittedCount())
}

func TestProcessSyncNoFindings(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	defer e.Shutdown()

	res, err := e.ProcessSync(context.Background(), posRec("SCC1", "C001", "PRD_F_01", 150, 148, t0))
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Equal(t, "r-PRD_F_01", res.RecordID)
}

func TestSwapThresholds(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	defer e.Shutdown()

	cfg := config.Default()
	cfg.Detection.WeightToleranceG = 1000
	e.SwapThresholds(ThresholdsFromConfig(cfg.Detection))

	res, err := e.ProcessSync(context.Background(), posRec("SCC1", "C004", "PRD_F_03", 680, 425, t0))
	require.NoError(t, err)
	assert.Empty(t, res.Events, "a 255g deviation is inside the widened tolerance")
}

func TestProcessSyncQueueFull(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.QueueDepth = 1
	cfg.Engine.RecordTimeoutMs = 20

	// Cancelled context: workers exit immediately, so the queue never drains.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New(ctx, catalog.Empty(), emit.New(&memSink{}), nil, cfg)

	_, err := e.ProcessSync(context.Background(), posRec("SCC1", "C001", "PRD_F_01", 150, 148, t0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	_, err = e.ProcessSync(context.Background(), posRec("SCC1", "C001", "PRD_F_01", 150, 148, t0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
}

func TestProcessWaitCancellation(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.QueueDepth = 1

	poolCtx, cancelPool := context.WithCancel(context.Background())
	cancelPool()
	e := New(poolCtx, catalog.Empty(), emit.New(&memSink{}), nil, cfg)

	// First record fills the one-slot queue.
	assert.True(t, e.ProcessWait(context.Background(), posRec("SCC1", "C001", "A", 1, 1, t0)))
	assert.Equal(t, 1.0, e.QueueUtilization())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, e.ProcessWait(ctx, posRec("SCC1", "C001", "B", 1, 1, t0)),
		"a full queue plus a dead context must not block forever")
}

func TestSweepSessionsEmitsMismatch(t *testing.T) {
	e, sink := newTestEngine(t, nil)
	defer e.Shutdown()

	rfid := &record.Record{
		ID: "r-rfid", Kind: record.KindRFID, StationID: "SCC1", CustomerID: "C005",
		Status: record.StatusActive, Timestamp: t0,
		Payload: map[string]any{"sku": "PRD_F_09"},
	}
	_, err := e.ProcessSync(context.Background(), rfid)
	require.NoError(t, err)
	before := len(sink.events)

	events := e.SweepSessions(t0.Add(time.Hour))
	require.Len(t, events, 1)
	assert.Equal(t, "Session Product Mismatch", events[0].EventData["event_name"])
	assert.Equal(t, "C005", events[0].EventData["customer_id"])
	assert.Len(t, sink.events, before+1)

	// The session is gone; sweeping again finds nothing.
	assert.Empty(t, e.SweepSessions(t0.Add(2*time.Hour)))
}

func TestThresholdsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Detection.Correlation.Enabled = true

	th := ThresholdsFromConfig(cfg.Detection)
	assert.Equal(t, 50.0, th.WeightToleranceG)
	assert.Equal(t, 6, th.QueueLengthThreshold)
	assert.True(t, th.CorrelationEnabled)
	assert.Equal(t, 30*time.Second, th.CorrelationWindow)
	assert.Equal(t, 10*time.Second, th.POSMatchWindow)
	assert.Equal(t, 5*time.Second, th.RapidScanGap)
	assert.Equal(t, 30*time.Second, th.ShortSessionMax)
}
