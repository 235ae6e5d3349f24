// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package api_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passgate/passgate/internal/api"
)

func TestServer_StartServeStop(t *testing.T) {
	f := newAPIFixture(t)
	server := api.NewServer("127.0.0.1:0", f.handler, nil)

	errCh, err := server.Start()
	require.NoError(t, err)
	require.NotEmpty(t, server.Addr())

	client := &http.Client{Timeout: 5 * time.Second}
	defer client.CloseIdleConnections()

	resp, err := client.Get("http://" + server.Addr() + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	select {
	case err, ok := <-errCh:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error channel to close")
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := api.NewServer("127.0.0.1:0", http.NotFoundHandler(), nil)
	_, err := server.Start()
	require.NoError(t, err)
	defer func() { _ = server.Stop(context.Background()) }()

	_, err = server.Start()
	require.ErrorContains(t, err, "already running")
}

func TestServer_ListenFailure(t *testing.T) {
	first := api.NewServer("127.0.0.1:0", http.NotFoundHandler(), nil)
	_, err := first.Start()
	require.NoError(t, err)
	defer func() { _ = first.Stop(context.Background()) }()

	second := api.NewServer(first.Addr(), http.NotFoundHandler(), nil)
	_, err = second.Start()
	require.Error(t, err)
	assert.Empty(t, second.Addr())

	// A failed start leaves the server stoppable and restartable.
	require.NoError(t, second.Stop(context.Background()))
}

func TestServer_StopBeforeStart(t *testing.T) {
	server := api.NewServer("127.0.0.1:0", http.NotFoundHandler(), nil)
	assert.NoError(t, server.Stop(context.Background()))
	assert.Empty(t, server.Addr())
}
