// Package repository persists entity state blobs and the append-only
// event streams. Both have a Postgres implementation for production and
// an in-memory implementation for tests and single-node development.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/stakemesh/platform/internal/domain"
)

// ErrVersionConflict signals an optimistic-concurrency failure on Save:
// the stored version no longer matches the version the caller loaded.
var ErrVersionConflict = errors.New("state version conflict")

// StateRecord is one persisted entity state blob. Version increases by
// one on every save.
type StateRecord struct {
	Kind      string    `json:"kind"`
	Key       string    `json:"key"`
	Version   int64     `json:"version"`
	Data      []byte    `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StateStore is the pluggable persistence backend for entity state.
type StateStore interface {
	// Load returns the stored record, or nil when the entity has never
	// been saved.
	Load(ctx context.Context, kind, key string) (*StateRecord, error)

	// Save writes data if the stored version still equals expectVersion
	// (0 for a first save) and returns the new version. Returns
	// ErrVersionConflict otherwise.
	Save(ctx context.Context, kind, key string, data []byte, expectVersion int64) (int64, error)

	// Delete removes the record. Deleting an absent record is a no-op.
	Delete(ctx context.Context, kind, key string) error
}

// EventStore is the append-only event stream backend.
type EventStore interface {
	// Append atomically appends records (all for the same aggregate) in
	// order, assigning contiguous versions and global sequence numbers.
	// It returns the records with Version and Seq filled in.
	Append(ctx context.Context, records []domain.EventRecord) ([]domain.EventRecord, error)

	// Read returns an aggregate's events with Version > fromVersion in
	// version order. fromVersion 0 reads the full stream.
	Read(ctx context.Context, aggregateID string, fromVersion int64) ([]domain.EventRecord, error)

	// Exists reports whether the aggregate has any events.
	Exists(ctx context.Context, aggregateID string) (bool, error)

	// ListAfterSeq returns up to limit records with Seq > afterSeq in
	// global append order. Used by the broker forwarder.
	ListAfterSeq(ctx context.Context, afterSeq int64, limit int) ([]domain.EventRecord, error)
}

// OffsetStore tracks the broker forwarder's publish watermark.
type OffsetStore interface {
	// Load returns the last published sequence for a consumer, 0 when
	// the consumer has never committed.
	Load(ctx context.Context, consumer string) (int64, error)

	// Save commits the last published sequence.
	Save(ctx context.Context, consumer string, seq int64) error
}
