package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"sentinel-engine/internal/schema"
)

// KafkaConfig holds Kafka sink settings.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	EventTopic   string        `yaml:"event_topic"`
	TrailTopic   string        `yaml:"trail_topic"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultKafkaConfig returns default Kafka sink settings.
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		EventTopic:   "security-events",
		TrailTopic:   "audit-trail",
		BatchSize:    100,
		BatchTimeout: time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Validate checks the Kafka sink settings.
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("at least one broker is required")
	}
	if c.EventTopic == "" || c.TrailTopic == "" {
		return fmt.Errorf("event_topic and trail_topic are required")
	}
	return nil
}

// KafkaSink publishes audit records to Kafka topics.
type KafkaSink struct {
	writer *kafka.Writer
	config KafkaConfig
	logger *slog.Logger

	produced atomic.Int64
	errors   atomic.Int64
}

// NewKafkaSink creates a Kafka-backed audit sink.
func NewKafkaSink(config KafkaConfig, logger *slog.Logger) (*KafkaSink, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "audit-kafka-writer")
		}),
	}

	logger.Info("kafka audit sink initialized",
		"brokers", config.Brokers,
		"event_topic", config.EventTopic,
		"trail_topic", config.TrailTopic)

	return &KafkaSink{writer: writer, config: config, logger: logger}, nil
}

// LogSecurityEvent publishes a security event to the event topic, keyed by
// correlation id so related entries land in one partition.
func (s *KafkaSink) LogSecurityEvent(ctx context.Context, event *schema.SecurityEvent) error {
	return s.produce(ctx, s.config.EventTopic, event.CorrelationID, event)
}

// CreateAuditTrail publishes a trail entry to the trail topic.
func (s *KafkaSink) CreateAuditTrail(ctx context.Context, entry *TrailEntry) error {
	return s.produce(ctx, s.config.TrailTopic, entry.ID.String(), entry)
}

func (s *KafkaSink) produce(ctx context.Context, topic, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	})
	if err != nil {
		s.errors.Add(1)
		return fmt.Errorf("failed to write to %s: %w", topic, err)
	}

	s.produced.Add(1)
	return nil
}

// Stats returns sink statistics.
func (s *KafkaSink) Stats() map[string]interface{} {
	return map[string]interface{}{
		"produced": s.produced.Load(),
		"errors":   s.errors.Load(),
	}
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
