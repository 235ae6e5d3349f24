// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package auth provides authentication primitives for Passgate.
//
// # Credentials and Tokens
//
// Passwords are hashed with argon2id through PasswordHasher. Legacy bcrypt
// hashes still verify and are upgraded on the next successful login.
// Successful authentication yields a signed JWT from a TokenIssuer bound to
// the user's id and email.
//
// # Federated Identity
//
// A FederatedVerifier turns a provider-issued token into a Claim. The Service
// reconciles that Claim with any existing User through Reconcile, a pure
// function that returns a WriteIntent; the Service then persists the intent.
// Fields already set on a User are never overwritten, and ProviderID is
// never changed once linked.
//
// # Errors
//
// Every Service operation fails with exactly one Kind, carried as an oops
// error code. Use KindOf to recover it at the transport boundary.
package auth
