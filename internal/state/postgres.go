package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultMonitorKey identifies the row used when no key is configured.
const DefaultMonitorKey = "default"

const (
	schemaSQL = `CREATE TABLE IF NOT EXISTS monitor_state (
		monitor_key TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	loadSQL = `SELECT payload FROM monitor_state WHERE monitor_key = $1`
	saveSQL = `INSERT INTO monitor_state (monitor_key, payload, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (monitor_key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`
)

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps State as one JSONB row per monitor key.
type PostgresStore struct {
	db   querier
	pool *pgxpool.Pool
	key  string
}

// Ensure PostgresStore implements Store
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and creates the state table if needed.
func NewPostgresStore(ctx context.Context, dsn, key string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	s := newPostgresStore(pool, key)
	s.pool = pool
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newPostgresStore(db querier, key string) *PostgresStore {
	if key == "" {
		key = DefaultMonitorKey
	}
	return &PostgresStore{db: db, key: key}
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

// Load reads the row for the store's key. No row yields a zero State.
func (s *PostgresStore) Load(ctx context.Context) (State, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, loadSQL, s.key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to load state %s: %w", s.key, err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("failed to parse state %s: %w", s.key, err)
	}
	return st, nil
}

// Save upserts the row for the store's key.
func (s *PostgresStore) Save(ctx context.Context, st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if _, err := s.db.Exec(ctx, saveSQL, s.key, raw); err != nil {
		return fmt.Errorf("failed to save state %s: %w", s.key, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
