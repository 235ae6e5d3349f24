// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package api

import (
	"encoding/json"
	"net/http"

	"github.com/passgate/passgate/internal/auth"
)

// Client-facing messages.
const (
	msgInvalidRequest    = "Invalid request"
	msgEmailAlreadyUsed  = "Email already used"
	msgInvalidCreds      = "Invalid credentials"
	msgInvalidIDToken    = "Invalid identity token"
	msgEmailNotVerified  = "Email not verified"
	msgUnavailable       = "Service unavailable"
	msgUnauthorized      = "Unauthorized"
	msgNotFound          = "Not found"
	msgInternal          = "Internal server error"
	msgRequestTooLarge   = "request body too large"
	msgUnreadableRequest = "request body could not be read"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// statusFor maps an error kind to its HTTP status and message.
func statusFor(kind auth.Kind) (int, string) {
	switch kind {
	case auth.KindValidation:
		return http.StatusBadRequest, msgInvalidRequest
	case auth.KindEmailAlreadyUsed:
		return http.StatusConflict, msgEmailAlreadyUsed
	case auth.KindInvalidCredentials:
		return http.StatusUnauthorized, msgInvalidCreds
	case auth.KindInvalidFederatedToken:
		return http.StatusUnauthorized, msgInvalidIDToken
	case auth.KindUnverifiedEmail:
		return http.StatusForbidden, msgEmailNotVerified
	default:
		return http.StatusServiceUnavailable, msgUnavailable
	}
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v) //nolint:wrapcheck // callers log the failure
}
