package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig sizes the cart store's connection pool. The storefront keeps a
// single cart document, so a handful of connections is plenty.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPoolConfig returns the pool settings used for dsn.
func DefaultPoolConfig(dsn string) PoolConfig {
	return PoolConfig{
		DSN:             dsn,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// OpenPool connects to PostgreSQL and pings it. Connection failures are
// retried with backoff; authentication and other server errors are not.
func OpenPool(ctx context.Context, cfg PoolConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	base, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	base.MaxConns = cfg.MaxConns
	base.MinConns = cfg.MinConns
	base.MaxConnLifetime = cfg.MaxConnLifetime
	base.MaxConnIdleTime = cfg.MaxConnIdleTime

	var pool *pgxpool.Pool
	err = retry(ctx, logger, "connect to postgres", func() error {
		p, err := pgxpool.NewWithConfig(ctx, base.Copy())
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

const (
	retryAttempts = 3
	retryJitter   = 0.25
)

// retryBaseWait is the first backoff; each further attempt doubles it.
var retryBaseWait = time.Second

// backoff returns the wait before retry n (0-indexed), jittered by ±25%.
func backoff(n int) time.Duration {
	base := retryBaseWait << max(n, 0)
	jitter := time.Duration(float64(base) * retryJitter * (2*rand.Float64() - 1)) // #nosec G404 -- backoff jitter
	return base + jitter
}

// retry runs fn until it succeeds, fails with a non-transient error, or
// retryAttempts runs have failed.
func retry(ctx context.Context, logger *slog.Logger, what string, fn func() error) error {
	var err error
	for attempt := range retryAttempts {
		if attempt > 0 {
			wait := backoff(attempt - 1)
			if logger != nil {
				logger.WarnContext(ctx, what+" failed, retrying",
					slog.Int("attempt", attempt+1),
					slog.Int("max_attempts", retryAttempts),
					slog.Duration("backoff", wait),
					slog.String("error", err.Error()),
				)
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", what, ctx.Err())
			case <-time.After(wait):
			}
		}

		if err = fn(); err == nil || !transient(err) {
			return err
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", what, retryAttempts, err)
}

// transient reports whether err is a network failure. Errors reported by the
// server, such as bad SQL or a rejected password, are final.
func transient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
