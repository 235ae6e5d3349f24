// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Defaults for retrying a federated create that lost a uniqueness race.
const (
	DefaultConflictRetries = 3
	DefaultConflictBackoff = 10 * time.Millisecond
)

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// RegisterResult is returned by Register.
type RegisterResult struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthResult is returned by a successful login.
type AuthResult struct {
	Token string     `json:"token"`
	User  PublicView `json:"user"`
}

// Service provides registration, password login, and federated login.
type Service struct {
	users    UserRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
	verifier FederatedVerifier
	logger   *slog.Logger
	tracer   trace.Tracer

	conflictRetries uint64
	conflictBackoff time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithConflictRetry sets how often a federated login retries after its
// create collided with a concurrent one.
func WithConflictRetry(retries uint64, backoff time.Duration) ServiceOption {
	return func(s *Service) {
		s.conflictRetries = retries
		s.conflictBackoff = backoff
	}
}

// NewService creates a new Service. The verifier may be nil, in which case
// federated login reports an upstream failure.
func NewService(users UserRepository, hasher PasswordHasher, tokens TokenIssuer, verifier FederatedVerifier, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token issuer is required")
	}

	s := &Service{
		users:           users,
		hasher:          hasher,
		tokens:          tokens,
		verifier:        verifier,
		logger:          slog.Default(),
		tracer:          otel.Tracer("github.com/passgate/passgate/internal/auth"),
		conflictRetries: DefaultConflictRetries,
		conflictBackoff: DefaultConflictBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if s.conflictBackoff <= 0 {
		return nil, oops.Errorf("conflict backoff must be positive")
	}
	return s, nil
}

// FederatedEnabled reports whether a federated verifier is configured.
func (s *Service) FederatedEnabled() bool {
	return s.verifier != nil
}

// Register creates a password account.
func (s *Service) Register(ctx context.Context, email, password string) (_ *RegisterResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	if email == "" {
		return nil, validationError("email is required")
	}
	if password == "" {
		return nil, validationError("password is required")
	}

	_, lookupErr := s.users.GetByEmail(ctx, email)
	switch {
	case lookupErr == nil:
		return nil, emailAlreadyUsed(email)
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, upstreamFailure("get user by email", lookupErr)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, upstreamFailure("hash password", err)
	}

	user, err := NewUser(email, UserFields{PasswordHash: hash})
	if err != nil {
		return nil, upstreamFailure("build user", err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent registration won the race between lookup and create.
		if errors.Is(err, ErrDuplicateUser) {
			return nil, emailAlreadyUsed(email)
		}
		return nil, upstreamFailure("create user", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return &RegisterResult{ID: user.ID.String(), Email: user.Email}, nil
}

// Login authenticates with email and password.
// Uses constant-time operations to prevent timing-based email enumeration.
func (s *Service) Login(ctx context.Context, email, password string) (_ *AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)

	user, lookupErr := s.users.GetByEmail(ctx, email)

	// Determine which hash to verify against (real or dummy for timing attack prevention)
	targetHash := dummyPasswordHash
	userExists := false
	switch {
	case lookupErr == nil:
		userExists = true
		if user.HasPassword() {
			targetHash = user.PasswordHash
		}
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, upstreamFailure("get user by email", lookupErr)
	}

	// Always verify password (constant-time operation for timing attack prevention)
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if userExists && user.HasPassword() {
			s.logger.WarnContext(ctx, "stored password hash could not be verified",
				"user_id", user.ID.String(),
				"error", verifyErr)
		}
		return nil, invalidCredentials()
	}

	// Unknown email, federation-only account, and wrong password are indistinguishable.
	if !userExists || !user.HasPassword() || !valid {
		return nil, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradePasswordHash(ctx, user, password)
	}

	return s.authenticate(ctx, user)
}

// LoginWithFederatedIdentity authenticates with a provider-issued identity
// token, linking it to or creating the matching user.
func (s *Service) LoginWithFederatedIdentity(ctx context.Context, providerToken string) (_ *AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.LoginWithFederatedIdentity")
	defer func() { endSpan(span, err) }()

	if s.verifier == nil {
		return nil, oops.Code(CodeUpstreamFailure).Errorf("federated login is not configured")
	}
	if strings.TrimSpace(providerToken) == "" {
		return nil, invalidFederatedToken("token is empty")
	}

	claim, err := s.verifier.Verify(ctx, providerToken)
	if err != nil {
		if errors.Is(err, ErrInvalidFederatedToken) {
			return nil, invalidFederatedToken(err.Error())
		}
		return nil, upstreamFailure("verify federated token", err)
	}
	if claim == nil || claim.ProviderID == "" {
		return nil, invalidFederatedToken("provider id is missing")
	}

	verified := *claim
	verified.Email = NormalizeEmail(verified.Email)
	if verified.Email == "" || !verified.EmailVerified {
		return nil, oops.Code(CodeUnverifiedEmail).
			With("provider_id", verified.ProviderID).
			Errorf("email not verified by identity provider")
	}

	user, err := s.reconcileWithRetry(ctx, verified)
	if err != nil {
		return nil, err
	}

	return s.authenticate(ctx, user)
}

// reconcileWithRetry runs the find-or-create step, repeating it when a create
// or update collides with a concurrent writer.
func (s *Service) reconcileWithRetry(ctx context.Context, claim Claim) (*User, error) {
	var user *User
	backoff := retry.WithMaxRetries(s.conflictRetries, retry.NewConstant(s.conflictBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		u, err := s.reconcileOnce(ctx, claim)
		if errors.Is(err, ErrDuplicateUser) {
			s.logger.DebugContext(ctx, "federated login write conflicted, retrying lookup",
				"provider_id", claim.ProviderID)
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		user = u
		return nil
	})

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, ErrDuplicateUser):
		return nil, emailAlreadyUsed(claim.Email)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, upstreamFailure("reconcile federated identity", err)
	default:
		return nil, err
	}
}

// reconcileOnce returns ErrDuplicateUser unwrapped so the caller can retry.
func (s *Service) reconcileOnce(ctx context.Context, claim Claim) (*User, error) {
	existing, err := s.users.GetByEmailOrProviderID(ctx, claim.Email, claim.ProviderID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, upstreamFailure("get user by email or provider id", err)
		}
		existing = nil
	}

	intent := Reconcile(existing, claim)
	switch intent.Action {
	case ActionCreate:
		user, err := NewUser(intent.Email, intent.Fields)
		if err != nil {
			return nil, upstreamFailure("build user", err)
		}
		if err := s.users.Create(ctx, user); err != nil {
			if errors.Is(err, ErrDuplicateUser) {
				return nil, ErrDuplicateUser
			}
			return nil, upstreamFailure("create user", err)
		}
		s.logger.InfoContext(ctx, "user created from federated identity", "user_id", user.ID.String())
		return user, nil

	case ActionPatch:
		updated := intent.Apply(*existing)
		updated.UpdatedAt = time.Now()
		if err := s.users.Update(ctx, &updated); err != nil {
			if errors.Is(err, ErrDuplicateUser) {
				return nil, ErrDuplicateUser
			}
			return nil, upstreamFailure("update user", err)
		}
		s.logger.InfoContext(ctx, "federated identity linked", "user_id", updated.ID.String())
		return &updated, nil

	default:
		return existing, nil
	}
}

// authenticate issues a session token for the user.
func (s *Service) authenticate(ctx context.Context, user *User) (*AuthResult, error) {
	token, err := s.tokens.Issue(Subject{ID: user.ID.String(), Email: user.Email})
	if err != nil {
		return nil, upstreamFailure("issue token", err)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("user.id", user.ID.String()))
	return &AuthResult{Token: token, User: user.Public()}, nil
}

// upgradePasswordHash re-hashes the password with current parameters.
// Failures are logged; the login succeeds regardless.
func (s *Service) upgradePasswordHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"user_id", user.ID.String(),
			"operation", "hash password",
			"error", err)
		return
	}

	if err := s.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"user_id", user.ID.String(),
			"operation", "update password hash",
			"error", err)
		return
	}
	user.PasswordHash = newHash
}

func validationError(msg string) error {
	return oops.Code(CodeValidation).Errorf("%s", msg)
}

func emailAlreadyUsed(email string) error {
	return oops.Code(CodeEmailAlreadyUsed).With("email", email).Errorf("email already used")
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}

func invalidFederatedToken(reason string) error {
	return oops.Code(CodeInvalidFederatedToken).With("reason", reason).Wrap(ErrInvalidFederatedToken)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		kind := KindOf(err)
		span.SetAttributes(attribute.String("auth.error_kind", kind.String()))
		span.SetStatus(codes.Error, kind.String())
	}
	span.End()
}
