package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stakemesh/platform/internal/domain"
)

type postgresEventStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEventStore returns an EventStore backed by the event_stream table.
func NewPostgresEventStore(pool *pgxpool.Pool) EventStore {
	return &postgresEventStore{pool: pool}
}

func (s *postgresEventStore) Append(ctx context.Context, records []domain.EventRecord) ([]domain.EventRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}
	aggregateID := records[0].AggregateID
	for _, r := range records[1:] {
		if r.AggregateID != aggregateID {
			return nil, fmt.Errorf("append batch spans aggregates %s and %s", aggregateID, r.AggregateID)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	// Appends for one aggregate are serialized by its owning entity, so
	// MAX(version) is stable within this transaction; the unique index
	// on (aggregate_id, version) backstops that assumption.
	var current int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM event_stream WHERE aggregate_id = $1`,
		aggregateID).Scan(&current)
	if err != nil {
		return nil, fmt.Errorf("read stream version %s: %w", aggregateID, err)
	}

	out := make([]domain.EventRecord, len(records))
	for i, rec := range records {
		rec.Version = current + int64(i) + 1
		err = tx.QueryRow(ctx, `
			INSERT INTO event_stream
			  (event_id, aggregate_id, version, aggregate_class, event_type, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING seq`,
			rec.EventID, rec.AggregateID, rec.Version, string(rec.Class),
			rec.Type, rec.Payload, rec.OccurredAt,
		).Scan(&rec.Seq)
		if err != nil {
			return nil, fmt.Errorf("append %s v%d to %s: %w", rec.Type, rec.Version, aggregateID, err)
		}
		out[i] = rec
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return out, nil
}

func (s *postgresEventStore) Read(ctx context.Context, aggregateID string, fromVersion int64) ([]domain.EventRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, event_id, aggregate_id, version, aggregate_class, event_type, payload, occurred_at
		FROM event_stream
		WHERE aggregate_id = $1 AND version > $2
		ORDER BY version ASC`, aggregateID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", aggregateID, err)
	}
	defer rows.Close()

	return collectEventRecords(rows)
}

func (s *postgresEventStore) Exists(ctx context.Context, aggregateID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM event_stream WHERE aggregate_id = $1)`,
		aggregateID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check stream %s: %w", aggregateID, err)
	}
	return exists, nil
}

func (s *postgresEventStore) ListAfterSeq(ctx context.Context, afterSeq int64, limit int) ([]domain.EventRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT seq, event_id, aggregate_id, version, aggregate_class, event_type, payload, occurred_at
		FROM event_stream
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list events after %d: %w", afterSeq, err)
	}
	defer rows.Close()

	return collectEventRecords(rows)
}

func collectEventRecords(rows pgx.Rows) ([]domain.EventRecord, error) {
	var out []domain.EventRecord
	for rows.Next() {
		var rec domain.EventRecord
		var class string
		err := rows.Scan(&rec.Seq, &rec.EventID, &rec.AggregateID, &rec.Version,
			&class, &rec.Type, &rec.Payload, &rec.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("scan event record: %w", err)
		}
		rec.Class = domain.AggregateClass(class)
		out = append(out, rec)
	}
	return out, rows.Err()
}

type postgresOffsetStore struct {
	pool *pgxpool.Pool
}

// NewPostgresOffsetStore returns an OffsetStore backed by forwarder_offsets.
func NewPostgresOffsetStore(pool *pgxpool.Pool) OffsetStore {
	return &postgresOffsetStore{pool: pool}
}

func (s *postgresOffsetStore) Load(ctx context.Context, consumer string) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `
		SELECT last_seq FROM forwarder_offsets WHERE consumer = $1`, consumer).Scan(&seq)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("load offset %s: %w", consumer, err)
	}
	return seq, nil
}

func (s *postgresOffsetStore) Save(ctx context.Context, consumer string, seq int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO forwarder_offsets (consumer, last_seq)
		VALUES ($1, $2)
		ON CONFLICT (consumer) DO UPDATE
		SET last_seq = EXCLUDED.last_seq, updated_at = now()`, consumer, seq)
	if err != nil {
		return fmt.Errorf("save offset %s: %w", consumer, err)
	}
	return nil
}
