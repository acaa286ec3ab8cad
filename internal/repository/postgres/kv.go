package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/database"
)

// DBTX is the subset of *pgxpool.Pool used by KVStore.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const (
	getQuery = `SELECT value FROM storefront_state
WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())`

	setQuery = `INSERT INTO storefront_state (key, value, updated_at, expires_at)
VALUES ($1, $2, NOW(), $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW(), expires_at = EXCLUDED.expires_at`

	deleteQuery = `DELETE FROM storefront_state WHERE key = $1`

	purgeQuery = `DELETE FROM storefront_state WHERE expires_at IS NOT NULL AND expires_at <= NOW()`
)

// KVStore implements repository.KVStore on a PostgreSQL table.
type KVStore struct {
	db  DBTX
	ttl time.Duration
	now func() time.Time
}

// NewKVStore creates a Postgres-backed store. A zero ttl keeps rows forever.
func NewKVStore(db DBTX, ttl time.Duration) *KVStore {
	return &KVStore{db: db, ttl: ttl, now: time.Now}
}

// Get returns the unexpired value stored at key.
func (s *KVStore) Get(ctx context.Context, key string) (value []byte, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "Get", getQuery)
	defer func() { end(err) }()

	if err = s.db.QueryRow(ctx, getQuery, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("key", key)
		}
		return nil, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value at key.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "Set", setQuery)
	defer func() { end(err) }()

	var expiresAt *time.Time
	if s.ttl > 0 {
		t := s.now().Add(s.ttl).UTC()
		expiresAt = &t
	}
	if _, err = s.db.Exec(ctx, setQuery, key, value, expiresAt); err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *KVStore) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "Delete", deleteQuery)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, deleteQuery, key); err != nil {
		return fmt.Errorf("postgres delete %s: %w", key, err)
	}
	return nil
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (s *KVStore) PurgeExpired(ctx context.Context) (n int64, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "PurgeExpired", purgeQuery)
	defer func() { end(err) }()

	tag, err := s.db.Exec(ctx, purgeQuery)
	if err != nil {
		return 0, fmt.Errorf("postgres purge expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the database connection.
func (s *KVStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
