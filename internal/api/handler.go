package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelhq/sentinel/internal/config"
	"github.com/sentinelhq/sentinel/internal/engine"
	"github.com/sentinelhq/sentinel/internal/record"
	"github.com/sentinelhq/sentinel/internal/store"
)

const (
	maxBatchSize      = 100
	maxBodyBytes      = 1 << 20
	defaultEventLimit = 50
)

// Handler holds all HTTP handler dependencies. loader, audit and hub may be
// nil; the corresponding endpoints degrade gracefully.
type Handler struct {
	eng    *engine.Engine
	loader *config.Loader
	audit  *store.Store
	hub    *Hub
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(eng *engine.Engine, loader *config.Loader, audit *store.Store, hub *Hub) http.Handler {
	h := &Handler{eng: eng, loader: loader, audit: audit, hub: hub, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/records", h.ingestRecord)
	h.mux.HandleFunc("POST /v1/records/batch", h.ingestBatch)
	h.mux.HandleFunc("GET /v1/events", h.listEvents)
	h.mux.HandleFunc("GET /v1/stats", h.stats)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())
	if hub != nil {
		h.mux.Handle("GET /v1/live", hub)
	}

	return loggingMiddleware(h.mux)
}

// POST /v1/records — synchronous single-record ingestion. The body is one
// wire-format record, the same shape the TCP stream delivers per line.
func (h *Handler) ingestRecord(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := record.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec.ID = uuid.New().String()

	res, err := h.eng.ProcessSync(r.Context(), rec)
	if err != nil {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/records/batch — async batch ingestion (up to 100 records), one
// wire-format record per JSONL line.
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lines := splitLines(body)
	if len(lines) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one record")
		return
	}
	if len(lines) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(lines), maxBatchSize))
		return
	}

	jobID := uuid.New().String()
	queued, rejected := 0, 0
	for _, line := range lines {
		rec, err := record.Decode(line)
		if err != nil {
			rejected++
			continue
		}
		rec.ID = uuid.New().String()
		if h.eng.ProcessAsync(rec) {
			queued++
		} else {
			rejected++
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   jobID,
		"total":    len(lines),
		"queued":   queued,
		"rejected": rejected,
	})
}

// GET /v1/events — newest detected anomalies from the audit store.
func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit store disabled")
		return
	}
	limit := defaultEventLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	events, err := h.audit.RecentEvents(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []store.StoredEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// GET /v1/stats — aggregate counters for the dashboard.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"events_emitted":    h.eng.EmittedCount(),
		"queue_utilization": h.eng.QueueUtilization(),
	}
	if h.hub != nil {
		out["live_clients"] = h.hub.Clients()
	}
	if h.audit != nil {
		st, err := h.audit.Stats()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out["store"] = st
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /v1/config/reload — re-read the config file and swap the detection
// thresholds.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusNotFound, "running without a config file")
		return
	}
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := config.Validate(cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.eng.SwapThresholds(engine.ThresholdsFromConfig(cfg.Detection))
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded": true,
		"version":  cfg.Version,
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if the record queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.eng.QueueUtilization()
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"queue_utilization": util,
	})
}

// splitLines splits body on newlines, dropping blank lines.
func splitLines(body []byte) [][]byte {
	var out [][]byte
	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			out = append(out, line)
		}
	}
	return out
}
