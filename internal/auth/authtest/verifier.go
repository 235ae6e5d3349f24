// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package authtest

import (
	"context"
	"sync"

	"github.com/passgate/passgate/internal/auth"
)

// StaticVerifier is an auth.FederatedVerifier that maps fixed tokens to claims.
// Unknown tokens are rejected with auth.ErrInvalidFederatedToken.
type StaticVerifier struct {
	mu     sync.RWMutex
	claims map[string]auth.Claim
}

// NewStaticVerifier creates a verifier with no known tokens.
func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{claims: make(map[string]auth.Claim)}
}

// Add registers the claim returned for token.
func (v *StaticVerifier) Add(token string, claim auth.Claim) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.claims[token] = claim
}

// Verify implements auth.FederatedVerifier.
func (v *StaticVerifier) Verify(_ context.Context, token string) (*auth.Claim, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	claim, ok := v.claims[token]
	if !ok {
		return nil, auth.ErrInvalidFederatedToken
	}
	return &claim, nil
}

var _ auth.FederatedVerifier = (*StaticVerifier)(nil)
