package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS idempotency_keys (
	action_key TEXT PRIMARY KEY,
	processed  BOOLEAN NOT NULL DEFAULT FALSE,
	claimed_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore backs the idempotency mapping with a table whose primary key
// makes check-and-claim a single atomic statement, so concurrent invocations
// across processes cannot both pass. Selected when a DSN is configured.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore ensures the table exists on the given connection. The
// caller owns opening the pgx database/sql handle.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("idempotency: ensure table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	var processed bool
	err := s.db.QueryRowContext(ctx,
		`SELECT processed FROM idempotency_keys WHERE action_key = $1`, key,
	).Scan(&processed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("idempotency: query key: %w", err)
	}
	return processed, nil
}

func (s *PostgresStore) Claim(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (action_key, processed) VALUES ($1, FALSE)
		 ON CONFLICT (action_key) DO NOTHING`, key)
	if err != nil {
		return false, fmt.Errorf("idempotency: claim key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("idempotency: claim key: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) Release(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE action_key = $1 AND processed = FALSE`, key)
	if err != nil {
		return fmt.Errorf("idempotency: release key: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (action_key, processed) VALUES ($1, TRUE)
		 ON CONFLICT (action_key) DO UPDATE SET processed = TRUE`, key)
	if err != nil {
		return fmt.Errorf("idempotency: mark key: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	_ = s.db.Close()
}
