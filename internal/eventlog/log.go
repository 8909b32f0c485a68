// Package eventlog is the append-only domain event stream: entities
// append events synchronously with their state mutation, and a
// background forwarder publishes them to the broker at-least-once,
// keyed by aggregate so per-aggregate order survives downstream.
package eventlog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/repository"
)

// DefaultTopicPrefix is used when the config leaves the prefix empty.
const DefaultTopicPrefix = "stakemesh"

// Log wraps the event store with the domain-event append path.
type Log struct {
	store  repository.EventStore
	logger *slog.Logger
}

// New builds a Log over the given store.
func New(store repository.EventStore, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{store: store, logger: logger}
}

// Append records the events on the aggregate's stream in one
// transaction and returns the persisted records with versions assigned.
func (l *Log) Append(ctx context.Context, aggregateID string, events ...domain.DomainEvent) ([]domain.EventRecord, error) {
	if len(events) == 0 {
		return nil, nil
	}
	records := make([]domain.EventRecord, 0, len(events))
	for _, ev := range events {
		rec, err := domain.NewEventRecord(aggregateID, ev)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	out, err := l.store.Append(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("append to %s: %w", aggregateID, err)
	}
	return out, nil
}

// Read returns the aggregate's events with Version > fromVersion.
func (l *Log) Read(ctx context.Context, aggregateID string, fromVersion int64) ([]domain.EventRecord, error) {
	return l.store.Read(ctx, aggregateID, fromVersion)
}

// Exists reports whether the aggregate has any events.
func (l *Log) Exists(ctx context.Context, aggregateID string) (bool, error) {
	return l.store.Exists(ctx, aggregateID)
}

// Topic names the broker topic for a record:
// {prefix}.{aggregate-class}.{event-kind}.
func Topic(prefix string, rec domain.EventRecord) string {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "." + string(rec.Class) + "." + domain.EventKind(rec.Type)
}
