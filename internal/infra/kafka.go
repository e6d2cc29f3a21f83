package infra

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer publishes outbox events to the broker. With KAFKA_ENABLED
// unset (local dev, CI) every publish is a silent no-op so the relay can run
// without a broker.
type KafkaProducer struct {
	writer  *kafka.Writer
	logger  *slog.Logger
	enabled bool
}

// NewKafkaProducer connects a producer to the comma-separated broker list.
func NewKafkaProducer(brokers string, enabled bool, logger *slog.Logger) *KafkaProducer {
	if !enabled || brokers == "" {
		logger.Info("event publishing disabled, running without kafka")
		return &KafkaProducer{enabled: false, logger: logger}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	logger.Info("kafka producer connected", "brokers", brokers)
	return &KafkaProducer{writer: writer, logger: logger, enabled: true}
}

// Publish writes one message to topic, keyed for per-student partition
// ordering. No-op when disabled.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if !p.enabled {
		return nil
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
}

// Close flushes and shuts down the writer.
func (p *KafkaProducer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// KafkaConsumer reads renewal requests as part of a consumer group, so a
// crashed worker resumes from its committed offset.
type KafkaConsumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	enabled bool
}

// NewKafkaConsumer joins groupID on topic against the broker list.
func NewKafkaConsumer(brokers, topic, groupID string, enabled bool, logger *slog.Logger) *KafkaConsumer {
	if !enabled || brokers == "" {
		return &KafkaConsumer{enabled: false, logger: logger}
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(brokers, ","),
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &KafkaConsumer{reader: reader, logger: logger, enabled: true}
}

// Enabled reports whether the consumer is connected to real brokers.
func (c *KafkaConsumer) Enabled() bool { return c.enabled }

// ReadMessage blocks until the next message arrives or ctx is canceled. The
// group offset commits on read, so handlers must not fail messages they do
// not want redelivered.
func (c *KafkaConsumer) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return c.reader.ReadMessage(ctx)
}

// Close leaves the consumer group and shuts down the reader.
func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
