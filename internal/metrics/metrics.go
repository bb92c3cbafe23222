package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_records_consumed_total",
		Help: "Total number of stream records consumed, labelled by dataset kind.",
	}, []string{"kind"})

	RecordsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_records_dropped_total",
		Help: "Total number of records rejected due to a full queue.",
	})

	RecordsMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_records_malformed_total",
		Help: "Total number of records skipped because they failed to decode.",
	})

	AnomaliesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_anomalies_emitted_total",
		Help: "Total number of anomaly events emitted, labelled by event name and severity.",
	}, []string{"event_name", "severity"})

	SinkErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_sink_errors_total",
		Help: "Total number of swallowed output sink failures.",
	})

	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_stream_reconnects_total",
		Help: "Total number of reconnect attempts against the stream server.",
	})

	ProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_record_processing_duration_ms",
		Help:    "Per-record detection pass latency in milliseconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_queue_utilization_ratio",
		Help: "Current detection queue utilization (0–1).",
	})

	SessionsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_sessions_live",
		Help: "Number of currently tracked (station, customer) sessions.",
	})
)
