// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package google verifies Google Sign-In ID tokens.
package google

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/samber/oops"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"

	"github.com/passgate/passgate/internal/auth"
)

// validator is the subset of *idtoken.Validator used by Verifier.
type validator interface {
	Validate(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

// Verifier implements auth.FederatedVerifier for Google ID tokens.
type Verifier struct {
	validator validator
	clientID  string
}

// NewVerifier creates a Verifier that accepts tokens issued for clientID.
func NewVerifier(ctx context.Context, clientID string, opts ...option.ClientOption) (*Verifier, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, oops.Code("GOOGLE_CONFIG_INVALID").Errorf("google client id is required")
	}
	v, err := idtoken.NewValidator(ctx, opts...)
	if err != nil {
		return nil, oops.Code("GOOGLE_INIT_FAILED").
			With("operation", "create id token validator").
			Wrap(err)
	}
	return &Verifier{validator: v, clientID: clientID}, nil
}

// Verify validates the token signature, expiry, and audience and returns its
// identity claims.
func (v *Verifier) Verify(ctx context.Context, token string) (*auth.Claim, error) {
	payload, err := v.validator.Validate(ctx, token, v.clientID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, oops.With("operation", "validate google id token").Wrap(ctxErr)
		}
		if certFetchFailed(err) {
			return nil, oops.Code("GOOGLE_UNAVAILABLE").
				With("operation", "fetch google signing keys").
				Wrap(err)
		}
		return nil, oops.With("operation", "validate google id token").
			Wrap(errors.Join(auth.ErrInvalidFederatedToken, err))
	}
	return claimFromPayload(payload), nil
}

// certFetchFailed reports whether Google's signing keys could not be
// fetched. Such errors say nothing about the token itself.
func certFetchFailed(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return strings.HasPrefix(err.Error(), "idtoken: unable to retrieve cert")
}

func claimFromPayload(p *idtoken.Payload) *auth.Claim {
	return &auth.Claim{
		ProviderID:    p.Subject,
		Email:         stringClaim(p.Claims, "email"),
		EmailVerified: boolClaim(p.Claims, "email_verified"),
		Name:          stringClaim(p.Claims, "name"),
		AvatarURL:     stringClaim(p.Claims, "picture"),
	}
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}

// boolClaim accepts both JSON booleans and the "true" string some Google
// endpoints emit.
func boolClaim(claims map[string]any, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

// Compile-time interface check.
var _ auth.FederatedVerifier = (*Verifier)(nil)
