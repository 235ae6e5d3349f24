// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package authtest provides test doubles for the auth package.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/passgate/passgate/internal/auth"
)

// MemoryUserRepository is an in-memory auth.UserRepository. It enforces the
// same uniqueness constraints as the PostgreSQL schema.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[ulid.ULID]auth.User

	// BeforeCreate, when set, runs before each Create while no lock is held.
	// Tests use it to interleave concurrent writers.
	BeforeCreate func(ctx context.Context, user *auth.User)
}

// NewMemoryUserRepository creates an empty repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[ulid.ULID]auth.User)}
}

// GetByEmail implements auth.UserRepository.
func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.findByEmail(auth.NormalizeEmail(email)); ok {
		return &u, nil
	}
	return nil, auth.ErrNotFound
}

// GetByEmailOrProviderID implements auth.UserRepository.
func (r *MemoryUserRepository) GetByEmailOrProviderID(_ context.Context, email, providerID string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if providerID != "" {
		for _, u := range r.users {
			if u.ProviderID == providerID {
				return &u, nil
			}
		}
	}
	if u, ok := r.findByEmail(auth.NormalizeEmail(email)); ok {
		return &u, nil
	}
	return nil, auth.ErrNotFound
}

// Create implements auth.UserRepository.
func (r *MemoryUserRepository) Create(ctx context.Context, user *auth.User) error {
	if r.BeforeCreate != nil {
		r.BeforeCreate(ctx, user)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.findByEmail(auth.NormalizeEmail(user.Email)); ok {
		return auth.ErrDuplicateUser
	}
	if r.providerTaken(user.ProviderID, user.ID) {
		return auth.ErrDuplicateUser
	}
	r.users[user.ID] = *user
	return nil
}

// Update implements auth.UserRepository. Only unset fields are written.
func (r *MemoryUserRepository) Update(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[user.ID]
	if !ok {
		return auth.ErrNotFound
	}
	if stored.ProviderID == "" && r.providerTaken(user.ProviderID, user.ID) {
		return auth.ErrDuplicateUser
	}
	fillEmpty(&stored.PasswordHash, user.PasswordHash)
	fillEmpty(&stored.ProviderID, user.ProviderID)
	fillEmpty(&stored.Name, user.Name)
	fillEmpty(&stored.AvatarURL, user.AvatarURL)
	stored.UpdatedAt = user.UpdatedAt
	r.users[user.ID] = stored
	return nil
}

// UpdatePasswordHash implements auth.UserRepository.
func (r *MemoryUserRepository) UpdatePasswordHash(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	stored.PasswordHash = passwordHash
	stored.UpdatedAt = time.Now()
	r.users[id] = stored
	return nil
}

func fillEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// Len returns the number of stored users.
func (r *MemoryUserRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Users returns a snapshot of all stored users.
func (r *MemoryUserRepository) Users() []auth.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]auth.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out
}

func (r *MemoryUserRepository) findByEmail(email string) (auth.User, bool) {
	for _, u := range r.users {
		if auth.NormalizeEmail(u.Email) == email {
			return u, true
		}
	}
	return auth.User{}, false
}

func (r *MemoryUserRepository) providerTaken(providerID string, self ulid.ULID) bool {
	if providerID == "" {
		return false
	}
	for id, u := range r.users {
		if id != self && u.ProviderID == providerID {
			return true
		}
	}
	return false
}

var _ auth.UserRepository = (*MemoryUserRepository)(nil)
