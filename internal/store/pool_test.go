// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/passgate/passgate/pkg/errutil"
)

func TestOpenPool_InvalidDSN(t *testing.T) {
	_, err := OpenPool(context.Background(), PoolConfig{DSN: "postgres://localhost:notaport/passgate"})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

func TestOpenPool_UnreachableGivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Port 1 on loopback refuses connections immediately.
	_, err := OpenPool(ctx, PoolConfig{
		DSN:             "postgres://passgate@127.0.0.1:1/passgate?connect_timeout=1",
		ConnectAttempts: 1,
		ConnectBackoff:  time.Millisecond,
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
	errutil.AssertErrorContext(t, err, "operation", "ping database")
}
