// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package store provides the PostgreSQL and in-memory persistence for the
// plugin catalog and organization installations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DB is the subset of pgxpool.Pool the repositories use. pgxmock pools
// satisfy it in unit tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres bundles the repositories backed by one connection pool.
type Postgres struct {
	pool          *pgxpool.Pool
	plugins       *PluginRepository
	installations *InstallationRepository
}

// ConnectOptions tunes the startup ping loop.
type ConnectOptions struct {
	Attempts uint64
	Backoff  time.Duration
}

// Connect opens a pool and pings it with exponential backoff until the
// database answers or the attempts run out.
func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*Postgres, error) {
	if opts.Attempts == 0 {
		opts.Attempts = 5
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	backoff := retry.WithCappedDuration(5*time.Second, retry.NewExponential(opts.Backoff))
	backoff = retry.WithMaxRetries(opts.Attempts-1, backoff)
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if pingErr := pool.Ping(ctx); pingErr != nil {
			slog.Warn("database not ready", "attempt", attempt, "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}

	return NewPostgres(pool), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pool:          pool,
		plugins:       NewPluginRepository(pool),
		installations: NewInstallationRepository(pool),
	}
}

// Plugins returns the catalog repository.
func (p *Postgres) Plugins() *PluginRepository { return p.plugins }

// Installations returns the installation repository.
func (p *Postgres) Installations() *InstallationRepository { return p.installations }

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close closes the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
