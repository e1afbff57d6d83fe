package sharedmem

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore is the optional durable Store backend for deployments that
// want the cache and telemetry log to survive a process restart. Most
// installations are fine with MemoryStore; this exists for the ones that
// aren't.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connURL and ensures the backing table
// exists.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("shared-memory postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("shared-memory postgres ping: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("shared-memory postgres migrate: %w", err)
	}
	log.Info().Msg("shared-memory postgres store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS shared_memory_entries (
			key        TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			owner      TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_shared_memory_expires ON shared_memory_entries (expires_at);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// Set implements Store.
func (s *PostgresStore) Set(ctx context.Context, key string, value any, owner string, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal shared-memory value: %w", err)
	}
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO shared_memory_entries (key, value, owner, created_at, expires_at)
		VALUES ($1, $2, $3, NOW(), $4)
		ON CONFLICT (key) DO UPDATE SET value = $2, owner = $3, created_at = NOW(), expires_at = $4
	`, key, raw, owner, expiresAt)
	return err
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT key, value, owner, created_at, expires_at
		FROM shared_memory_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`, key)

	var e Entry
	var raw []byte
	var expiresAt *time.Time
	if err := row.Scan(&e.Key, &raw, &e.Owner, &e.CreatedAt, &expiresAt); err != nil {
		if err.Error() == "no rows in result set" {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	if expiresAt != nil {
		e.ExpiresAt = *expiresAt
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return Entry{}, false, fmt.Errorf("unmarshal shared-memory value: %w", err)
	}
	e.Value = value
	return e, true, nil
}

// Delete implements Store. A key owned by someone else is left alone.
func (s *PostgresStore) Delete(ctx context.Context, key string, owner string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM shared_memory_entries WHERE key = $1 AND owner = $2`, key, owner)
	return err
}

// Query implements Store's prefix/wildcard match by translating a
// trailing "%" pattern directly into a SQL LIKE clause.
func (s *PostgresStore) Query(ctx context.Context, pattern string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key, value, owner, created_at, expires_at
		FROM shared_memory_entries
		WHERE key LIKE $1 AND (expires_at IS NULL OR expires_at > NOW())
	`, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var raw []byte
		var expiresAt *time.Time
		if err := rows.Scan(&e.Key, &raw, &e.Owner, &e.CreatedAt, &expiresAt); err != nil {
			return nil, err
		}
		if expiresAt != nil {
			e.ExpiresAt = *expiresAt
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("unmarshal shared-memory value: %w", err)
		}
		e.Value = value
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
