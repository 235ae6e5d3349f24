// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package api serves the passgate HTTP API.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/observability"
	"github.com/passgate/passgate/pkg/errutil"
)

// DefaultMaxBodyBytes limits request bodies to 1 MiB.
const DefaultMaxBodyBytes int64 = 1 << 20

// Operation labels for auth metrics.
const (
	opRegister    = "register"
	opLogin       = "login"
	opGoogleLogin = "google_login"
)

// AuthService is the auth behavior the API exposes.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*auth.RegisterResult, error)
	Login(ctx context.Context, email, password string) (*auth.AuthResult, error)
	LoginWithFederatedIdentity(ctx context.Context, providerToken string) (*auth.AuthResult, error)
	FederatedEnabled() bool
}

// Handler routes API requests.
type Handler struct {
	service      AuthService
	tokens       auth.TokenParser
	validator    *bodyValidator
	logger       *slog.Logger
	metrics      *observability.Metrics
	maxBodyBytes int64
	root         http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMetrics records request metrics. Without it no metrics are recorded.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		h.maxBodyBytes = n
	}
}

// NewHandler creates the API handler. POST /api/auth/google is only
// routed when the service has federated login enabled.
func NewHandler(service AuthService, tokens auth.TokenParser, opts ...Option) (*Handler, error) {
	if service == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token parser is required")
	}

	validator, err := newBodyValidator()
	if err != nil {
		return nil, err
	}

	h := &Handler{
		service:      service,
		tokens:       tokens,
		validator:    validator,
		logger:       slog.Default(),
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if h.maxBodyBytes <= 0 {
		return nil, oops.Errorf("max body bytes must be positive")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	if service.FederatedEnabled() {
		mux.HandleFunc("POST /api/auth/google", h.handleGoogleLogin)
	}
	mux.Handle("GET /api/auth/me", h.requireBearer(http.HandlerFunc(h.handleMe)))
	mux.HandleFunc("/", h.handleNotFound)

	h.root = h.recoverPanics(h.observe(mux))
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

type healthResponse struct {
	OK bool `json:"ok"`
}

// MeResponse is the body of GET /api/auth/me.
type MeResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, healthResponse{OK: true})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decodeBody(w, r, SchemaRegister, &req) {
		return
	}

	result, err := h.service.Register(r.Context(), req.Email, req.Password)
	h.recordAuth(opRegister, err)
	if err != nil {
		h.writeServiceError(w, r, opRegister, err)
		return
	}
	h.respond(w, r, http.StatusCreated, result)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decodeBody(w, r, SchemaLogin, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	h.recordAuth(opLogin, err)
	if err != nil {
		h.writeServiceError(w, r, opLogin, err)
		return
	}
	h.respond(w, r, http.StatusOK, result)
}

func (h *Handler) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req GoogleLoginRequest
	if !h.decodeBody(w, r, SchemaGoogleLogin, &req) {
		return
	}

	result, err := h.service.LoginWithFederatedIdentity(r.Context(), req.IDToken)
	h.recordAuth(opGoogleLogin, err)
	if err != nil {
		h.writeServiceError(w, r, opGoogleLogin, err)
		return
	}
	h.respond(w, r, http.StatusOK, result)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	subject, ok := SubjectFromContext(r.Context())
	if !ok {
		h.respond(w, r, http.StatusUnauthorized, ErrorResponse{Message: msgUnauthorized})
		return
	}
	h.respond(w, r, http.StatusOK, MeResponse{ID: subject.ID, Email: subject.Email})
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusNotFound, ErrorResponse{Message: msgNotFound})
}

// decodeBody reads, validates, and decodes the request body. It writes the
// 400 response itself and returns false when the body is rejected.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, schema string, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		msg := msgUnreadableRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = msgRequestTooLarge
		}
		h.respond(w, r, http.StatusBadRequest, ErrorResponse{
			Message: msgInvalidRequest,
			Details: []FieldError{{Message: msg}},
		})
		return false
	}

	details, err := h.validator.decode(schema, body, dst)
	if err != nil {
		errutil.LogErrorContext(r.Context(), h.logger, "request validation failed", err)
		h.respond(w, r, http.StatusInternalServerError, ErrorResponse{Message: msgInternal})
		return false
	}
	if len(details) > 0 {
		h.respond(w, r, http.StatusBadRequest, ErrorResponse{
			Message: msgInvalidRequest,
			Details: details,
		})
		return false
	}
	return true
}

// writeServiceError maps a service error to its response. Upstream
// failures are logged; client errors are not.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	kind := auth.KindOf(err)
	status, msg := statusFor(kind)

	resp := ErrorResponse{Message: msg}
	switch kind {
	case auth.KindUpstreamFailure:
		errutil.LogErrorContext(r.Context(), h.logger.With("operation", operation), "auth operation failed", err)
	case auth.KindValidation:
		resp.Details = []FieldError{{Message: err.Error()}}
	}
	h.respond(w, r, status, resp)
}

func (h *Handler) recordAuth(operation string, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = auth.KindOf(err).String()
	}
	h.metrics.AuthRequestsTotal.WithLabelValues(operation, outcome).Inc()
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeJSON(w, status, v); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write response",
			"path", r.URL.Path,
			"error", err)
	}
}
