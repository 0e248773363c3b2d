// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package store manages the PostgreSQL connection pool and schema
// migrations for the user database.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions tune pool creation. Zero values fall back to defaults.
type ConnectOptions struct {
	// MaxConns caps the pool size; 0 keeps the pgxpool default.
	MaxConns int32

	// PingRetries is how many times the initial ping is retried with
	// exponential backoff before Connect gives up.
	PingRetries uint64

	// PingBackoff is the initial backoff between ping attempts.
	PingBackoff time.Duration
}

// DefaultConnectOptions returns the options Connect uses when given zeros.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		PingRetries: 5,
		PingBackoff: 500 * time.Millisecond,
	}
}

// Connect creates a pgx pool and verifies it with a ping, retrying with
// exponential backoff so a database that is still starting up does not fail
// the process immediately.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	defaults := DefaultConnectOptions()
	if opts.PingRetries == 0 {
		opts.PingRetries = defaults.PingRetries
	}
	if opts.PingBackoff == 0 {
		opts.PingBackoff = defaults.PingBackoff
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_CONFIG_INVALID").
			With("operation", "parse database url").
			Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("operation", "create pool").
			Wrap(err)
	}

	backoff := retry.WithMaxRetries(opts.PingRetries, retry.NewExponential(opts.PingBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("operation", "ping database").
			With("retries", opts.PingRetries).
			Wrap(err)
	}

	return pool, nil
}
