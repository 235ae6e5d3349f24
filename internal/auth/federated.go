// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

import "context"

// Claim is the verified identity asserted by a federated identity provider.
type Claim struct {
	ProviderID    string
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     string
}

// FederatedVerifier validates provider-issued identity tokens.
//
// Verify returns an error wrapping ErrInvalidFederatedToken when the token is
// missing, malformed, expired, or issued for a different audience. Any other
// error is treated as the provider being unavailable.
type FederatedVerifier interface {
	Verify(ctx context.Context, token string) (*Claim, error)
}
