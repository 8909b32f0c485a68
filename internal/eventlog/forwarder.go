package eventlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/repository"
)

// Publisher is the broker-facing side of the forwarder. Satisfied by
// infra.KafkaProducer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// ForwarderMetrics counts publishes and failures.
type ForwarderMetrics struct {
	published *prometheus.CounterVec
	failures  prometheus.Counter
	lag       prometheus.Gauge
}

// NewForwarderMetrics registers the forwarder collectors on reg.
func NewForwarderMetrics(reg prometheus.Registerer) *ForwarderMetrics {
	factory := promauto.With(reg)
	return &ForwarderMetrics{
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakemesh",
			Subsystem: "forwarder",
			Name:      "published_total",
			Help:      "Events published to the broker by aggregate class.",
		}, []string{"class"}),
		failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stakemesh",
			Subsystem: "forwarder",
			Name:      "publish_failures_total",
			Help:      "Broker publish attempts that failed.",
		}),
		lag: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "stakemesh",
			Subsystem: "forwarder",
			Name:      "last_published_seq",
			Help:      "Global sequence of the last event published.",
		}),
	}
}

// Forwarder drains the event stream into the broker. Offsets commit
// after each record, so a crash replays at most the in-flight record:
// at-least-once, consumers dedupe on event ID.
type Forwarder struct {
	store       repository.EventStore
	offsets     repository.OffsetStore
	publisher   Publisher
	logger      *slog.Logger
	metrics     *ForwarderMetrics
	topicPrefix string
	consumer    string
	interval    time.Duration
	batchSize   int
}

// ForwarderConfig wires a Forwarder.
type ForwarderConfig struct {
	Store       repository.EventStore
	Offsets     repository.OffsetStore
	Publisher   Publisher
	Logger      *slog.Logger
	Metrics     *ForwarderMetrics
	TopicPrefix string

	// Consumer names the offset row; distinct forwarders use distinct names.
	Consumer string

	Interval  time.Duration
	BatchSize int
}

// NewForwarder builds a stopped forwarder; call Run to start polling.
func NewForwarder(cfg ForwarderConfig) *Forwarder {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "broker-forwarder"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Forwarder{
		store:       cfg.Store,
		offsets:     cfg.Offsets,
		publisher:   cfg.Publisher,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		topicPrefix: cfg.TopicPrefix,
		consumer:    cfg.Consumer,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
	}
}

// Run polls until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) {
	f.logger.Info("event forwarder started",
		slog.String("consumer", f.consumer),
		slog.Duration("interval", f.interval),
		slog.Int("batch_size", f.batchSize))

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("event forwarder stopped")
			return
		case <-ticker.C:
			if err := f.Poll(ctx); err != nil && ctx.Err() == nil {
				f.logger.Error("forwarder poll failed", slog.Any("error", err))
			}
		}
	}
}

// Poll publishes one batch past the committed watermark. Exported so
// tests can drive the forwarder without timers.
func (f *Forwarder) Poll(ctx context.Context) error {
	last, err := f.offsets.Load(ctx, f.consumer)
	if err != nil {
		return err
	}
	records, err := f.store.ListAfterSeq(ctx, last, f.batchSize)
	if err != nil {
		return err
	}

	for _, rec := range records {
		value, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		topic := Topic(f.topicPrefix, rec)
		if err := f.publisher.Publish(ctx, topic, []byte(rec.AggregateID), value); err != nil {
			if f.metrics != nil {
				f.metrics.failures.Inc()
			}
			// Stop at the first failure so per-aggregate order holds.
			return err
		}
		if err := f.offsets.Save(ctx, f.consumer, rec.Seq); err != nil {
			return err
		}
		if f.metrics != nil {
			f.metrics.published.WithLabelValues(string(rec.Class)).Inc()
			f.metrics.lag.Set(float64(rec.Seq))
		}
	}
	if len(records) > 0 {
		f.logger.Debug("forwarded events", slog.Int("count", len(records)))
	}
	return nil
}

// Envelope is the broker message body: the persisted event record.
// Declared here so consumers and the forwarder agree on the shape.
type Envelope = domain.EventRecord
