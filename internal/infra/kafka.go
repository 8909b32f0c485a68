package infra

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/stakemesh/platform/internal/eventlog"
)

// KafkaProducer publishes event-stream records to the broker. It
// satisfies eventlog.Publisher so the forwarder can write through it.
type KafkaProducer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

var _ eventlog.Publisher = (*KafkaProducer)(nil)

// NewKafkaProducer dials the given comma-separated broker list. The
// forwarder keys messages by aggregate ID, so the hash balancer keeps
// each aggregate's events on one partition and in order.
func NewKafkaProducer(brokers string, logger *slog.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	logger.Info("kafka producer ready", "brokers", brokers)
	return &KafkaProducer{writer: w, logger: logger}
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if err := p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: value}); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// KafkaConsumer reads one topic within a consumer group; the settlement
// consumer drives it through its ReadMessage loop.
type KafkaConsumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewKafkaConsumer subscribes groupID to topic on the given brokers.
func NewKafkaConsumer(brokers, topic, groupID string, logger *slog.Logger) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(brokers, ","),
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	logger.Info("kafka consumer ready", "topic", topic, "group", groupID)
	return &KafkaConsumer{reader: r, logger: logger}
}

// ReadMessage blocks until the next message or ctx cancellation. The
// group offset commits on read; a redelivered trigger is absorbed by
// the sagas being idempotent, not by the consumer.
func (c *KafkaConsumer) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return c.reader.ReadMessage(ctx)
}

func (c *KafkaConsumer) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
