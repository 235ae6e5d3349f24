// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/pkg/errutil"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "a@x.com", want: "a@x.com"},
		{in: "  A@X.Com\t", want: "a@x.com"},
		{in: "", want: ""},
		{in: "   ", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, auth.NormalizeEmail(tt.in), "input %q", tt.in)
	}
}

func TestNewUser(t *testing.T) {
	t.Run("password account", func(t *testing.T) {
		u, err := auth.NewUser(" Ada@Example.com", auth.UserFields{PasswordHash: "hash"})
		require.NoError(t, err)
		assert.NotZero(t, u.ID)
		assert.Equal(t, "ada@example.com", u.Email)
		assert.True(t, u.HasPassword())
		assert.False(t, u.CreatedAt.IsZero())
		assert.Equal(t, u.CreatedAt, u.UpdatedAt)
	})

	t.Run("federated account", func(t *testing.T) {
		u, err := auth.NewUser("ada@example.com", auth.UserFields{ProviderID: "p-1"})
		require.NoError(t, err)
		assert.False(t, u.HasPassword())
		assert.Equal(t, "p-1", u.ProviderID)
	})

	t.Run("no credential path is rejected", func(t *testing.T) {
		_, err := auth.NewUser("ada@example.com", auth.UserFields{Name: "Ada"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_INVALID")
	})

	t.Run("empty email is rejected", func(t *testing.T) {
		_, err := auth.NewUser("  ", auth.UserFields{PasswordHash: "hash"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_INVALID")
	})
}

func TestUser_Public(t *testing.T) {
	u, err := auth.NewUser("ada@example.com", auth.UserFields{PasswordHash: "secret-hash", ProviderID: "p-1"})
	require.NoError(t, err)

	data, err := json.Marshal(u.Public())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]any{
		"id":        u.ID.String(),
		"email":     "ada@example.com",
		"name":      "",
		"avatarUrl": "",
	}, got)
	assert.NotContains(t, string(data), "secret-hash")
	assert.NotContains(t, string(data), "p-1")
}
