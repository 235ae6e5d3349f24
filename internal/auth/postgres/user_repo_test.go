// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/auth/postgres"
)

func createUser(t *testing.T, repo *postgres.UserRepository, email string, fields auth.UserFields) *auth.User {
	t.Helper()
	ctx := context.Background()

	user, err := auth.NewUser(email, fields)
	require.NoError(t, err)
	user.CreatedAt = user.CreatedAt.UTC().Truncate(time.Microsecond)
	user.UpdatedAt = user.CreatedAt

	require.NoError(t, repo.Create(ctx, user))
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID.String())
	})
	return user
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	t.Run("round trips a password user", func(t *testing.T) {
		user := createUser(t, repo, "round@example.com", auth.UserFields{PasswordHash: "hash123"})

		stored, err := repo.GetByEmail(ctx, "round@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, stored.ID)
		assert.Equal(t, "hash123", stored.PasswordHash)
		assert.Empty(t, stored.ProviderID)
		assert.Empty(t, stored.Name)
		assert.True(t, user.CreatedAt.Equal(stored.CreatedAt))
	})

	t.Run("email lookup ignores case", func(t *testing.T) {
		user := createUser(t, repo, "mixed@example.com", auth.UserFields{PasswordHash: "hash"})

		stored, err := repo.GetByEmail(ctx, "MIXED@Example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, stored.ID)
	})

	t.Run("unknown email returns ErrNotFound", func(t *testing.T) {
		_, err := repo.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("duplicate email returns ErrDuplicateUser", func(t *testing.T) {
		createUser(t, repo, "dup@example.com", auth.UserFields{PasswordHash: "hash"})

		other, err := auth.NewUser("DUP@example.com", auth.UserFields{PasswordHash: "hash"})
		require.NoError(t, err)
		// NewUser normalizes; force the raw case to prove the index is case-insensitive.
		other.Email = "DUP@example.com"
		err = repo.Create(ctx, other)
		assert.ErrorIs(t, err, auth.ErrDuplicateUser)
	})

	t.Run("duplicate provider id returns ErrDuplicateUser", func(t *testing.T) {
		createUser(t, repo, "p1@example.com", auth.UserFields{ProviderID: "google-dup"})

		other, err := auth.NewUser("p2@example.com", auth.UserFields{ProviderID: "google-dup"})
		require.NoError(t, err)
		err = repo.Create(ctx, other)
		assert.ErrorIs(t, err, auth.ErrDuplicateUser)
	})
}

func TestUserRepository_GetByEmailOrProviderID(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	byEmail := createUser(t, repo, "shared@example.com", auth.UserFields{PasswordHash: "hash"})
	byProvider := createUser(t, repo, "linked@example.com", auth.UserFields{ProviderID: "google-linked"})

	t.Run("matches by email", func(t *testing.T) {
		got, err := repo.GetByEmailOrProviderID(ctx, "shared@example.com", "google-unknown")
		require.NoError(t, err)
		assert.Equal(t, byEmail.ID, got.ID)
	})

	t.Run("matches by provider id", func(t *testing.T) {
		got, err := repo.GetByEmailOrProviderID(ctx, "renamed@example.com", "google-linked")
		require.NoError(t, err)
		assert.Equal(t, byProvider.ID, got.ID)
	})

	t.Run("provider match wins over email match", func(t *testing.T) {
		got, err := repo.GetByEmailOrProviderID(ctx, "shared@example.com", "google-linked")
		require.NoError(t, err)
		assert.Equal(t, byProvider.ID, got.ID)
	})

	t.Run("empty provider id never matches null", func(t *testing.T) {
		_, err := repo.GetByEmailOrProviderID(ctx, "nobody@example.com", "")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	t.Run("links a provider to a password user", func(t *testing.T) {
		user := createUser(t, repo, "link@example.com", auth.UserFields{PasswordHash: "hash"})

		patched := auth.WriteIntent{
			Action: auth.ActionPatch,
			Fields: auth.UserFields{ProviderID: "google-link", Name: "Link", AvatarURL: "https://example.com/a.png"},
		}.Apply(*user)
		patched.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, repo.Update(ctx, &patched))

		stored, err := repo.GetByEmail(ctx, "link@example.com")
		require.NoError(t, err)
		assert.Equal(t, "hash", stored.PasswordHash)
		assert.Equal(t, "google-link", stored.ProviderID)
		assert.Equal(t, "Link", stored.Name)
		assert.Equal(t, "https://example.com/a.png", stored.AvatarURL)
		assert.True(t, patched.UpdatedAt.Equal(stored.UpdatedAt))
	})

	t.Run("unknown id returns ErrNotFound", func(t *testing.T) {
		err := repo.Update(ctx, &auth.User{ID: ulid.Make(), Email: "ghost@example.com", PasswordHash: "hash"})
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
	t.Run("stale write keeps an existing link", func(t *testing.T) {
		user := createUser(t, repo, "stale@example.com", auth.UserFields{PasswordHash: "hash"})
		stale := *user

		linked := auth.WriteIntent{
			Action: auth.ActionPatch,
			Fields: auth.UserFields{ProviderID: "google-first", Name: "First"},
		}.Apply(*user)
		require.NoError(t, repo.Update(ctx, &linked))

		stale.ProviderID = "google-second"
		stale.UpdatedAt = time.Now()
		require.NoError(t, repo.Update(ctx, &stale))

		stored, err := repo.GetByEmail(ctx, "stale@example.com")
		require.NoError(t, err)
		assert.Equal(t, "google-first", stored.ProviderID)
		assert.Equal(t, "First", stored.Name)
	})
}

func TestUserRepository_UpdatePasswordHash(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	t.Run("keeps federated columns", func(t *testing.T) {
		user := createUser(t, repo, "rehash@example.com", auth.UserFields{
			PasswordHash: "$2a$10$legacy",
			ProviderID:   "google-rehash",
			Name:         "Rehash",
		})

		require.NoError(t, repo.UpdatePasswordHash(ctx, user.ID, "$argon2id$new"))

		stored, err := repo.GetByEmail(ctx, "rehash@example.com")
		require.NoError(t, err)
		assert.Equal(t, "$argon2id$new", stored.PasswordHash)
		assert.Equal(t, "google-rehash", stored.ProviderID)
		assert.Equal(t, "Rehash", stored.Name)
	})

	t.Run("unknown id returns ErrNotFound", func(t *testing.T) {
		err := repo.UpdatePasswordHash(ctx, ulid.Make(), "$argon2id$new")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_ConcurrentCreateSameEmail(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM users WHERE LOWER(email) = 'race@example.com'`)
	})

	const workers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, err := auth.NewUser("race@example.com", auth.UserFields{PasswordHash: "hash"})
			if err != nil {
				return
			}
			err = repo.Create(ctx, user)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, auth.ErrDuplicateUser):
				duplicates++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, duplicates)
}
