package config

// Config is the top-level YAML structure.
type Config struct {
	Version   string        `yaml:"version"`
	Engine    EngineConf    `yaml:"engine"`
	Stream    StreamConf    `yaml:"stream"`
	Catalog   CatalogConf   `yaml:"catalog"`
	Output    OutputConf    `yaml:"output"`
	Broadcast BroadcastConf `yaml:"broadcast"`
	Detection DetectionConf `yaml:"detection"`
}

// EngineConf holds tunable concurrency settings.
type EngineConf struct {
	// DetectWorkers defaults to 1: a single worker preserves per-customer
	// ordering. Raise it only for deployments sharded by station.
	DetectWorkers   int `yaml:"detect_workers"`
	QueueDepth      int `yaml:"queue_depth"`
	RecordTimeoutMs int `yaml:"record_timeout_ms"`
}

// StreamConf configures the TCP line-stream ingestion adapter.
type StreamConf struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ReconnectDelayS int    `yaml:"reconnect_delay_s"`
	MaxRetries      int    `yaml:"max_retries"`
}

// CatalogConf points at the reference data CSV files.
type CatalogConf struct {
	Products  string `yaml:"products"`
	Customers string `yaml:"customers"`
}

// OutputConf configures the anomaly sinks and the raw-record audit store.
type OutputConf struct {
	EventsFile string `yaml:"events_file"`
	AuditDB    string `yaml:"audit_db"`
}

// BroadcastConf configures optional pub/sub fan-out of anomaly events.
type BroadcastConf struct {
	Kafka KafkaConf `yaml:"kafka"`
}

// KafkaConf configures the optional Kafka broadcaster.
type KafkaConf struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// DetectionConf holds every detection threshold. Hot-reloadable: the engine
// swaps these atomically when the config file changes.
type DetectionConf struct {
	WeightToleranceG     float64         `yaml:"weight_tolerance_g"`
	QueueLengthThreshold int             `yaml:"queue_length_threshold"`
	DwellTimeThresholdS  float64         `yaml:"dwell_time_threshold_s"`
	AccuracyThreshold    float64         `yaml:"accuracy_threshold"`
	CacheHorizonS        int             `yaml:"cache_horizon_s"`
	Correlation          CorrelationConf `yaml:"correlation"`
	Session              SessionConf     `yaml:"session"`
}

// CorrelationConf gates and tunes the cross-stream correlation detectors.
type CorrelationConf struct {
	Enabled             bool    `yaml:"enabled"`
	WindowS             int     `yaml:"window_s"`
	POSMatchWindowS     int     `yaml:"pos_match_window_s"`
	MinBasketSize       int     `yaml:"min_basket_size"`
	WeightVarianceFloor float64 `yaml:"weight_variance_floor_g2"`
	SensorRatio         float64 `yaml:"sensor_ratio"`
	MinPOSVolume        int     `yaml:"min_pos_volume"`
}

// SessionConf tunes the session pattern analyzer.
type SessionConf struct {
	TimeoutS             int `yaml:"timeout_s"`
	RapidGapS            int `yaml:"rapid_gap_s"`
	ShortSessionS        int `yaml:"short_session_s"`
	ShortSessionMinScans int `yaml:"short_session_min_scans"`
	SweepIntervalS       int `yaml:"sweep_interval_s"`
}
