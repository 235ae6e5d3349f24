// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package store provides database connectivity and schema migrations.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Defaults for PoolConfig.
const (
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = 500 * time.Millisecond
)

// PoolConfig controls how OpenPool connects.
type PoolConfig struct {
	DSN string
	// MaxConns overrides the pgxpool default when positive.
	MaxConns int32
	// ConnectAttempts is the number of retries after the first failed ping.
	ConnectAttempts uint64
	// ConnectBackoff is the base of the exponential delay between pings.
	ConnectBackoff time.Duration
}

// OpenPool creates a connection pool and waits until the database answers a
// ping. The database often starts alongside the service, so failed pings are
// retried with exponential backoff.
func OpenPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").
			With("operation", "parse database url").
			Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "create pool").
			Wrap(err)
	}

	backoff := cfg.ConnectBackoff
	if backoff <= 0 {
		backoff = DefaultConnectBackoff
	}
	b := retry.WithMaxRetries(cfg.ConnectAttempts, retry.NewExponential(backoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", cfg.ConnectAttempts+1).
			Wrap(err)
	}

	return pool, nil
}
