package emit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sentinelhq/sentinel/internal/metrics"
)

// KafkaBroadcaster publishes anomaly events to a Kafka topic keyed by event
// id. It is an optional fan-out path: publish failures are logged and
// swallowed, never surfaced to the detection pass.
type KafkaBroadcaster struct {
	writer *kafka.Writer
}

// NewKafkaBroadcaster creates a broadcaster for the given brokers and topic.
func NewKafkaBroadcaster(brokers []string, topic string) *KafkaBroadcaster {
	return &KafkaBroadcaster{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

// Broadcast publishes ev; best effort only.
func (b *KafkaBroadcaster) Broadcast(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("kafka broadcast marshal failed", "event_id", ev.EventID, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.EventID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "severity", Value: []byte(ev.Severity)},
		},
	})
	if err != nil {
		metrics.SinkErrors.Inc()
		slog.Warn("kafka broadcast failed", "event_id", ev.EventID, "err", err)
	}
}

// Close flushes and closes the underlying writer.
func (b *KafkaBroadcaster) Close() error {
	return b.writer.Close()
}
