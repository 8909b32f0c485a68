package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStateStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStateStore returns a StateStore backed by the entity_state table.
func NewPostgresStateStore(pool *pgxpool.Pool) StateStore {
	return &postgresStateStore{pool: pool}
}

func (s *postgresStateStore) Load(ctx context.Context, kind, key string) (*StateRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT kind, entity_key, version, data, updated_at
		FROM entity_state
		WHERE kind = $1 AND entity_key = $2`, kind, key)

	var rec StateRecord
	err := row.Scan(&rec.Kind, &rec.Key, &rec.Version, &rec.Data, &rec.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load state %s/%s: %w", kind, key, err)
	}
	return &rec, nil
}

func (s *postgresStateStore) Save(ctx context.Context, kind, key string, data []byte, expectVersion int64) (int64, error) {
	// Only a first save may insert; a stale writer whose row was deleted
	// must conflict, the same as one whose row moved on.
	var row pgx.Row
	if expectVersion == 0 {
		row = s.pool.QueryRow(ctx, `
			INSERT INTO entity_state (kind, entity_key, version, data)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (kind, entity_key) DO NOTHING
			RETURNING version`, kind, key, data)
	} else {
		row = s.pool.QueryRow(ctx, `
			UPDATE entity_state
			SET version = version + 1, data = $4, updated_at = now()
			WHERE kind = $1 AND entity_key = $2 AND version = $3
			RETURNING version`, kind, key, expectVersion, data)
	}

	var version int64
	if err := row.Scan(&version); err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrVersionConflict
		}
		return 0, fmt.Errorf("save state %s/%s: %w", kind, key, err)
	}
	return version, nil
}

func (s *postgresStateStore) Delete(ctx context.Context, kind, key string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM entity_state WHERE kind = $1 AND entity_key = $2`, kind, key)
	if err != nil {
		return fmt.Errorf("delete state %s/%s: %w", kind, key, err)
	}
	return nil
}
