// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/passgate/passgate/internal/auth"
)

type subjectKey struct{}

// SubjectFromContext returns the token subject set by the bearer middleware.
func SubjectFromContext(ctx context.Context) (*auth.Subject, bool) {
	subject, ok := ctx.Value(subjectKey{}).(*auth.Subject)
	return subject, ok && subject != nil
}

// requireBearer rejects requests without a valid bearer session token.
func (h *Handler) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			h.respond(w, r, http.StatusUnauthorized, ErrorResponse{Message: msgUnauthorized})
			return
		}

		subject, err := h.tokens.Parse(token)
		if err != nil {
			h.logger.DebugContext(r.Context(), "bearer token rejected", "error", err)
			h.respond(w, r, http.StatusUnauthorized, ErrorResponse{Message: msgUnauthorized})
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey{}, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from an Authorization header value.
// The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b) //nolint:wrapcheck // passthrough
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// observe logs each request and records its latency. The route label is
// the matched mux pattern, so unknown paths share one series.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		if h.metrics != nil {
			h.metrics.HTTPRequestDuration.
				WithLabelValues(routeLabel(r.Pattern), strconv.Itoa(status)).
				Observe(elapsed.Seconds())
		}

		h.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds())
	})
}

func routeLabel(pattern string) string {
	if pattern == "" || pattern == "/" {
		return "unmatched"
	}
	return pattern
}

// recoverPanics turns a handler panic into a 500 response.
func (h *Handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
					panic(p)
				}
				h.logger.ErrorContext(r.Context(), "handler panicked",
					"path", r.URL.Path,
					"panic", p)
				h.respond(w, r, http.StatusInternalServerError, ErrorResponse{Message: msgInternal})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
