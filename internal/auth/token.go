// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// DefaultTokenTTL is the session token lifetime when none is configured.
const DefaultTokenTTL = 7 * 24 * time.Hour

// ErrInvalidToken is returned by TokenParser for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Subject identifies the authenticated user a token is bound to.
type Subject struct {
	ID    string
	Email string
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	// Issue returns a signed, time-bounded token bound to the subject.
	Issue(subject Subject) (string, error)
}

// TokenParser verifies session tokens.
type TokenParser interface {
	// Parse verifies the token signature and expiry and returns its subject.
	Parse(token string) (*Subject, error)
}

// TokenConfig configures a JWTIssuer.
type TokenConfig struct {
	// Secret is the HMAC signing key. Required.
	Secret []byte
	// TTL is the token lifetime. Defaults to DefaultTokenTTL.
	TTL time.Duration
	// Issuer is written to the iss claim and required on Parse when set.
	Issuer string
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// sessionClaims is the JWT payload: {sub, email, iat, exp[, iss]}.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// JWTIssuer issues and parses HS256 session tokens.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewJWTIssuer creates a JWTIssuer. A missing secret is a configuration error.
func NewJWTIssuer(cfg TokenConfig) (*JWTIssuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("token signing secret is required")
	}
	if cfg.TTL < 0 {
		return nil, oops.Code("AUTH_CONFIG_INVALID").With("ttl", cfg.TTL).Errorf("token ttl must not be negative")
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &JWTIssuer{
		secret: cfg.Secret,
		ttl:    ttl,
		issuer: cfg.Issuer,
		now:    now,
	}, nil
}

// TTL returns the configured token lifetime.
func (i *JWTIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for the subject.
func (i *JWTIssuer) Issue(subject Subject) (string, error) {
	if subject.ID == "" {
		return "", oops.Code("AUTH_TOKEN_ISSUE_FAILED").Errorf("subject id is required")
	}
	now := i.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Email: subject.Email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_ISSUE_FAILED").With("subject", subject.ID).Wrap(err)
	}
	return signed, nil
}

// Parse verifies a token issued by Issue.
func (i *JWTIssuer) Parse(token string) (*Subject, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, oops.Code("AUTH_TOKEN_INVALID").Wrap(ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_INVALID").
			With("reason", tokenFailureReason(err)).
			Wrap(errors.Join(ErrInvalidToken, err))
	}
	if claims.Subject == "" {
		return nil, oops.Code("AUTH_TOKEN_INVALID").With("reason", "missing subject").Wrap(ErrInvalidToken)
	}

	return &Subject{ID: claims.Subject, Email: claims.Email}, nil
}

// tokenFailureReason names the jwt failure for log context.
func tokenFailureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "algorithm"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}

var (
	_ TokenIssuer = (*JWTIssuer)(nil)
	_ TokenParser = (*JWTIssuer)(nil)
)
