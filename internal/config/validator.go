package config

import (
	"fmt"
	"strings"
)

// Validate checks the config for values that would silently break detection:
// negative thresholds, a zero-capacity queue, a malformed broadcast target.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Engine.DetectWorkers < 1 {
		errs = append(errs, "engine: detect_workers must be >= 1")
	}
	if cfg.Engine.QueueDepth < 1 {
		errs = append(errs, "engine: queue_depth must be >= 1")
	}
	if cfg.Stream.Port < 1 || cfg.Stream.Port > 65535 {
		errs = append(errs, fmt.Sprintf("stream: port %d out of range", cfg.Stream.Port))
	}
	if cfg.Stream.MaxRetries < 0 {
		errs = append(errs, "stream: max_retries must not be negative")
	}

	d := cfg.Detection
	if d.WeightToleranceG < 0 {
		errs = append(errs, "detection: weight_tolerance_g must not be negative")
	}
	if d.QueueLengthThreshold < 1 {
		errs = append(errs, "detection: queue_length_threshold must be >= 1")
	}
	if d.AccuracyThreshold < 0 || d.AccuracyThreshold > 1 {
		errs = append(errs, "detection: accuracy_threshold must be within [0, 1]")
	}
	if d.CacheHorizonS < 1 {
		errs = append(errs, "detection: cache_horizon_s must be >= 1")
	}
	if d.Correlation.WindowS < 1 {
		errs = append(errs, "detection.correlation: window_s must be >= 1")
	}
	if d.Correlation.SensorRatio < 0 || d.Correlation.SensorRatio > 1 {
		errs = append(errs, "detection.correlation: sensor_ratio must be within [0, 1]")
	}
	if d.Session.TimeoutS < 1 {
		errs = append(errs, "detection.session: timeout_s must be >= 1")
	}

	if cfg.Broadcast.Kafka.Enabled {
		if len(cfg.Broadcast.Kafka.Brokers) == 0 {
			errs = append(errs, "broadcast.kafka: brokers must not be empty when enabled")
		}
		if cfg.Broadcast.Kafka.Topic == "" {
			errs = append(errs, "broadcast.kafka: topic is required when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
