package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelhq/sentinel/internal/catalog"
	"github.com/sentinelhq/sentinel/internal/config"
	"github.com/sentinelhq/sentinel/internal/emit"
	"github.com/sentinelhq/sentinel/internal/engine"
	"github.com/sentinelhq/sentinel/internal/store"
)

type nullSink struct{}

func (nullSink) Append(emit.Event) error { return nil }

func newTestServer(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	audit, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	// Cancelling stops the workers before the cleanup above closes the store.
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	eng := engine.New(ctx, catalog.Empty(), emit.New(nullSink{}), audit, config.Default())
	return New(eng, nil, audit, NewHub()), audit
}

const posLine = `{"dataset":"POS_Transactions","event":{"status":"Active","station_id":"SCC1","data":{"customer_id":"C004","sku":"PRD_F_03","weight_g":680,"price":425}},"timestamp":"2025-08-13T16:00:00Z"}`

func TestIngestRecord(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/records", strings.NewReader(posLine))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var res engine.RecordResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEmpty(t, res.RecordID)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Weight Discrepancies", res.Events[0].EventData["event_name"])
}

func TestIngestRecordRejectsBadBody(t *testing.T) {
	h, _ := newTestServer(t)

	for _, body := range []string{
		"not json",
		`{"dataset":"POS_Transactions","event":{"status":"Active"},"timestamp":"2025-08-13T16:00:00Z"}`, // no station
		`{"dataset":"POS_Transactions","event":{"status":"Active","station_id":"SCC1"}}`,                // no timestamp
	} {
		req := httptest.NewRequest(http.MethodPost, "/v1/records", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestIngestBatch(t *testing.T) {
	h, _ := newTestServer(t)

	body := posLine + "\n\nnot json\n" + posLine + "\n"
	req := httptest.NewRequest(http.MethodPost, "/v1/records/batch", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var res struct {
		JobID    string `json:"job_id"`
		Total    int    `json:"total"`
		Queued   int    `json:"queued"`
		Rejected int    `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEmpty(t, res.JobID)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Queued)
	assert.Equal(t, 1, res.Rejected)
}

func TestIngestBatchEmpty(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/records/batch", strings.NewReader("\n\n"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEvents(t *testing.T) {
	h, _ := newTestServer(t)

	// Produce one event synchronously so it is in the store.
	req := httptest.NewRequest(http.MethodPost, "/v1/records", strings.NewReader(posLine))
	h.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/v1/events?limit=10", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Events []store.StoredEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Weight Discrepancies", res.Events[0].EventName)

	req = httptest.NewRequest(http.MethodGet, "/v1/events?limit=bogus", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStats(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/records", strings.NewReader(posLine))
	h.ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var res map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.EqualValues(t, 1, res["events_emitted"])
	assert.EqualValues(t, 0, res["live_clients"])
	st, ok := res["store"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, st["records_stored"])
	assert.EqualValues(t, 1, st["events_stored"])
}

func TestReloadWithoutLoader(t *testing.T) {
	h, _ := newTestServer(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/config/reload", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProbes(t *testing.T) {
	h, _ := newTestServer(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var res map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "ready", res["status"])
}
