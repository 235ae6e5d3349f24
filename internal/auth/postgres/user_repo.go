// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package postgres provides PostgreSQL-backed auth repositories.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/passgate/passgate/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool used by the repository.
// pgxmock.PgxPoolIface satisfies it in unit tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Optional columns are stored as NULL and read back as empty strings.
const selectUserColumns = `
	SELECT id, email,
	       COALESCE(password_hash, ''), COALESCE(provider_id, ''),
	       COALESCE(name, ''), COALESCE(avatar_url, ''),
	       created_at, updated_at
	FROM users`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, selectUserColumns+`
		WHERE LOWER(email) = LOWER($1)
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// GetByEmailOrProviderID retrieves the user matching either key, preferring
// a provider id match.
func (r *UserRepository) GetByEmailOrProviderID(ctx context.Context, email, providerID string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, selectUserColumns+`
		WHERE ($2 <> '' AND provider_id = $2) OR LOWER(email) = LOWER($1)
		ORDER BY CASE WHEN provider_id = $2 THEN 0 ELSE 1 END
		LIMIT 1
	`, email, providerID)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			With("provider_id", providerID).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_OR_PROVIDER_FAILED").
			With("operation", "get user by email or provider id").
			With("email", email).
			With("provider_id", providerID).
			Wrap(err)
	}
	return user, nil
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, email, password_hash, provider_id, name, avatar_url,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		user.ID.String(),
		user.Email,
		nullIfEmpty(user.PasswordHash),
		nullIfEmpty(user.ProviderID),
		nullIfEmpty(user.Name),
		nullIfEmpty(user.AvatarURL),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			return oops.Code("USER_DUPLICATE").
				With("constraint", constraint).
				With("email", user.Email).
				Wrap(auth.ErrDuplicateUser)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// Update fills the unset optional columns of an existing user. Stored values
// win, so concurrent writers cannot clear each other's fields. Email and
// created_at are immutable.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	updatedAt := user.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE users SET
			password_hash = COALESCE(password_hash, $2),
			provider_id = COALESCE(provider_id, $3),
			name = COALESCE(name, $4),
			avatar_url = COALESCE(avatar_url, $5),
			updated_at = $6
		WHERE id = $1
	`,
		user.ID.String(),
		nullIfEmpty(user.PasswordHash),
		nullIfEmpty(user.ProviderID),
		nullIfEmpty(user.Name),
		nullIfEmpty(user.AvatarURL),
		updatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			return oops.Code("USER_DUPLICATE").
				With("constraint", constraint).
				With("id", user.ID.String()).
				Wrap(auth.ErrDuplicateUser)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePasswordHash replaces the password hash of an existing user and
// leaves every other column alone.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, time.Now())
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update password hash").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr string
		u     auth.User
	)

	err := row.Scan(
		&idStr,
		&u.Email,
		&u.PasswordHash,
		&u.ProviderID,
		&u.Name,
		&u.AvatarURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	u.ID = id

	return &u, nil
}

// uniqueViolation reports whether err is a unique constraint violation and
// names the violated constraint.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
