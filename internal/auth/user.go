// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User is an identity record. Empty strings mean the optional field is absent.
type User struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	ProviderID   string
	Name         string
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates a User with a fresh id. The email is normalized.
func NewUser(email string, fields UserFields) (*User, error) {
	now := time.Now()
	u := &User{
		ID:           ulid.Make(),
		Email:        NormalizeEmail(email),
		PasswordHash: fields.PasswordHash,
		ProviderID:   fields.ProviderID,
		Name:         fields.Name,
		AvatarURL:    fields.AvatarURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Validate checks the invariants every stored user must satisfy.
func (u *User) Validate() error {
	if u.Email == "" {
		return oops.Code("USER_INVALID").Errorf("email is required")
	}
	if u.PasswordHash == "" && u.ProviderID == "" {
		return oops.Code("USER_INVALID").
			With("email", u.Email).
			Errorf("user needs a password hash or a provider id")
	}
	return nil
}

// HasPassword reports whether the user can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// PublicView is the client-facing projection of a User.
type PublicView struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// Public returns the client-facing projection. It never includes the
// password hash or provider id.
func (u *User) Public() PublicView {
	return PublicView{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
	}
}

// NormalizeEmail trims surrounding whitespace and lowercases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserRepository manages user persistence.
//
// Implementations must enforce that at most one user exists per email
// (case-insensitive) and per non-empty provider id.
type UserRepository interface {
	// GetByEmail retrieves a user by normalized email.
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByEmailOrProviderID retrieves the user whose provider id or email
	// matches. A provider id match takes precedence over an email match.
	// Returns ErrNotFound if neither matches.
	GetByEmailOrProviderID(ctx context.Context, email, providerID string) (*User, error)

	// Create stores a new user.
	// Returns ErrDuplicateUser if the email or provider id is already taken.
	Create(ctx context.Context, user *User) error

	// Update fills the unset optional fields of an existing user from user.
	// Fields already stored are kept, so a write based on a stale read never
	// clears or replaces a provider link.
	// Returns ErrDuplicateUser if the provider id is already linked elsewhere.
	Update(ctx context.Context, user *User) error

	// UpdatePasswordHash replaces only the stored password hash.
	// Returns ErrNotFound if no user has the id.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error
}
