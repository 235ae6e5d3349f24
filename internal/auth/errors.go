// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned by a UserRepository when a write would violate
// email or provider id uniqueness.
var ErrDuplicateUser = errors.New("duplicate user")

// ErrInvalidFederatedToken is returned by a FederatedVerifier when the
// provider token is missing, malformed, expired, or issued for another audience.
var ErrInvalidFederatedToken = errors.New("invalid federated token")

// Kind classifies a Service failure.
type Kind int

// Failure kinds returned by Service operations.
const (
	KindUpstreamFailure Kind = iota
	KindValidation
	KindEmailAlreadyUsed
	KindInvalidCredentials
	KindInvalidFederatedToken
	KindUnverifiedEmail
)

// Error codes carried by oops errors for each Kind.
const (
	CodeValidation            = "AUTH_VALIDATION"
	CodeEmailAlreadyUsed      = "AUTH_EMAIL_ALREADY_USED"
	CodeInvalidCredentials    = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidFederatedToken = "AUTH_INVALID_FEDERATED_TOKEN"
	CodeUnverifiedEmail       = "AUTH_UNVERIFIED_EMAIL"
	CodeUpstreamFailure       = "AUTH_UPSTREAM_FAILURE"
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindEmailAlreadyUsed:
		return "EmailAlreadyUsed"
	case KindInvalidCredentials:
		return "InvalidCredentials"
	case KindInvalidFederatedToken:
		return "InvalidFederatedToken"
	case KindUnverifiedEmail:
		return "UnverifiedEmail"
	default:
		return "UpstreamFailure"
	}
}

// KindOf returns the Kind carried by err. Errors without a recognised code
// are upstream failures.
//
// oops reports the deepest code in a chain, so Service errors that carry a
// Kind never wrap another coded error.
func KindOf(err error) Kind {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindUpstreamFailure
	}
	switch oopsErr.Code() {
	case CodeValidation:
		return KindValidation
	case CodeEmailAlreadyUsed:
		return KindEmailAlreadyUsed
	case CodeInvalidCredentials:
		return KindInvalidCredentials
	case CodeInvalidFederatedToken:
		return KindInvalidFederatedToken
	case CodeUnverifiedEmail:
		return KindUnverifiedEmail
	default:
		return KindUpstreamFailure
	}
}

// upstreamFailure wraps a collaborator failure.
func upstreamFailure(operation string, err error) error {
	return oops.Code(CodeUpstreamFailure).With("operation", operation).Wrap(err)
}
