package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flatwatch-go/pkg/logger"
)

const watchStateDDL = `
CREATE TABLE IF NOT EXISTS watch_state (
    key        TEXT PRIMARY KEY,
    data       JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStorage keeps state rows in a single key/value table so dedup
// history survives host rebuilds. The pool is sized for a sequential
// single-writer process, not a worker fleet.
type PostgresStorage struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres backend requires a dsn")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	ps := &PostgresStorage{
		pool: pool,
		log:  logger.GetLogger().WithComponent("postgres_storage"),
	}
	if err := ps.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	ps.log.Info("Postgres storage initialized")
	return ps, nil
}

func (ps *PostgresStorage) ensureSchema(ctx context.Context) error {
	if _, err := ps.pool.Exec(ctx, watchStateDDL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) Save(ctx context.Context, key string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	_, err = ps.pool.Exec(ctx, `
		INSERT INTO watch_state (key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		key, jsonData)
	if err != nil {
		return fmt.Errorf("failed to upsert state: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) Load(ctx context.Context, key string, dest interface{}) error {
	var jsonData []byte
	err := ps.pool.QueryRow(ctx,
		`SELECT data FROM watch_state WHERE key = $1`, key).Scan(&jsonData)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to query state: %w", err)
	}

	if err := json.Unmarshal(jsonData, dest); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) Delete(ctx context.Context, key string) error {
	if _, err := ps.pool.Exec(ctx,
		`DELETE FROM watch_state WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := ps.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM watch_state WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check state: %w", err)
	}
	return exists, nil
}

// Close releases the connection pool.
func (ps *PostgresStorage) Close() {
	ps.pool.Close()
}
