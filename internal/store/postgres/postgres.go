// Package postgres stores the cart in a PostgreSQL key/value table.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/azuma-miyu/filatelier/internal/store"
	"github.com/azuma-miyu/filatelier/pkg/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DBTX is the subset of pgxpool.Pool the backend needs. pgxmock pools
// satisfy it too.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const (
	getQuery = `SELECT value FROM storefront_kv WHERE key = $1`
	setQuery = `
		INSERT INTO storefront_kv (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
)

// Backend implements store.Backend on the storefront_kv table.
type Backend struct {
	db DBTX
}

// New creates a Postgres-backed store.
func New(db DBTX) *Backend {
	return &Backend{db: db}
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, key string) (value []byte, err error) {
	ctx, end := database.TraceQuery(ctx, "GetCart", getQuery)
	defer func() { end(err) }()

	if err := b.db.QueryRow(ctx, getQuery, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrKeyNotFound
		}
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return value, nil
}

// Set implements store.Backend as an upsert.
func (b *Backend) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := database.TraceQuery(ctx, "SaveCart", setQuery)
	defer func() { end(err) }()

	if _, err := b.db.Exec(ctx, setQuery, key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Ping implements store.Pinger.
func (b *Backend) Ping(ctx context.Context) error {
	return b.db.Ping(ctx)
}

// Migrate creates the storefront_kv table if needed.
func Migrate(ctx context.Context, db database.Migrator, logger *slog.Logger) error {
	return database.RunMigrations(ctx, db, migrations, "migrations", logger)
}
