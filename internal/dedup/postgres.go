package dedup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	_ "github.com/lib/pq"
)

// DBTX is the subset of *sql.DB used by PostgresStore.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const createProcessedTable = `
CREATE TABLE IF NOT EXISTS processed_keys (
	key          TEXT PRIMARY KEY,
	seq          BIGSERIAL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertProcessedKey = `INSERT INTO processed_keys (key) VALUES ($1) ON CONFLICT (key) DO NOTHING`

// evictProcessedKeys keeps the newest $1 rows.
const evictProcessedKeys = `
DELETE FROM processed_keys
WHERE seq <= (SELECT seq FROM processed_keys ORDER BY seq DESC OFFSET $1 LIMIT 1)`

// PostgresStore keeps keys in a table; the primary key makes TryMark atomic.
type PostgresStore struct {
	db        DBTX
	closer    func() error
	retention int
}

// OpenPostgresStore connects with lib/pq and creates the table if needed.
func OpenPostgresStore(ctx context.Context, databaseURL string, retention int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, &StoreError{Backend: "postgres", Op: "open", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &StoreError{Backend: "postgres", Op: "ping", Err: err}
	}
	store, err := NewPostgresStore(ctx, db, retention)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.closer = db.Close
	return store, nil
}

// NewPostgresStore wraps an existing connection.
func NewPostgresStore(ctx context.Context, db DBTX, retention int) (*PostgresStore, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if _, err := db.ExecContext(ctx, createProcessedTable); err != nil {
		return nil, &StoreError{Backend: "postgres", Op: "migrate", Err: fmt.Errorf("failed to create table: %w", err)}
	}
	return &PostgresStore{db: db, retention: retention}, nil
}

func (s *PostgresStore) HasBeenProcessed(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM processed_keys WHERE key = $1`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &StoreError{Backend: "postgres", Op: "read", Err: err}
	}
	return true, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, key string) error {
	_, err := s.TryMark(ctx, key)
	return err
}

func (s *PostgresStore) TryMark(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, insertProcessedKey, key)
	if err != nil {
		return false, &StoreError{Backend: "postgres", Op: "mark", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &StoreError{Backend: "postgres", Op: "mark", Err: err}
	}
	if n == 0 {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, evictProcessedKeys, s.retention); err != nil {
		log.Printf("[Dedup Postgres] Eviction failed, table will be trimmed on the next insert: %v", err)
	}
	return true, nil
}

func (s *PostgresStore) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}
