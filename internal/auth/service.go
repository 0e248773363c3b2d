// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// AuthorizationHeader is the header the Basic-auth chain reads.
const AuthorizationHeader = "Authorization"

// dummyPasswordHash is verified when a looked-up user does not exist, so the
// response time of ValidLogin does not reveal whether the email is known.
// It is a syntactically valid argon2id hash that matches no password.
//
//nolint:gosec // G101: not a credential, a timing-equalization constant.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service coordinates registration, login, session lifecycle, and the
// password-reset workflow. It is stateless between calls; all state lives in
// the UserRepository, and every mutation it requests is a single atomic
// write.
type Service struct {
	users              UserRepository
	hasher             PasswordHasher
	logger             *slog.Logger
	dropSessionOnReset bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for best-effort diagnostics.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithSessionInvalidationOnReset makes ConfirmPasswordReset clear the active
// session in the same write that stores the new password hash. Off by
// default: a password change does not log the user out.
func WithSessionInvalidationOnReset() ServiceOption {
	return func(s *Service) { s.dropSessionOnReset = true }
}

// NewService creates a Service.
func NewService(users UserRepository, hasher PasswordHasher, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("password hasher is required")
	}

	s := &Service{
		users:  users,
		hasher: hasher,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("logger cannot be nil")
	}
	return s, nil
}

// Register creates a new user with a hashed password. Registering an email
// that is already taken fails with AUTH_ALREADY_EXISTS.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return nil, oops.Code("AUTH_ALREADY_EXISTS").
			With("email", email).
			Wrap(ErrAlreadyExists)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(email, hash)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		// Concurrent registration can slip past the lookup above; the unique
		// constraint is authoritative.
		if errors.Is(err, ErrAlreadyExists) {
			return nil, oops.Code("AUTH_ALREADY_EXISTS").
				With("email", email).
				Wrap(ErrAlreadyExists)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	return user, nil
}

// ValidLogin reports whether the email/password pair is valid. It never
// fails loudly: unknown email and wrong password are indistinguishable, and
// a password verification runs either way to keep response time constant.
func (s *Service) ValidLogin(ctx context.Context, email, password string) bool {
	user, err := s.users.GetByEmail(ctx, email)

	targetHash := dummyPasswordHash
	exists := false
	switch {
	case err == nil:
		targetHash = user.PasswordHash
		exists = true
	case errors.Is(err, ErrNotFound):
		// Keep going with the dummy hash.
	default:
		s.logger.DebugContext(ctx, "login lookup failed", "error", err)
	}

	valid, err := s.hasher.Verify(password, targetHash)
	if err != nil {
		if exists {
			s.logger.DebugContext(ctx, "password verification failed", "error", err)
		}
		return false
	}
	return exists && valid
}

// Login validates credentials and creates a session, returning the plaintext
// session token. Invalid credentials fail with AUTH_INVALID_CREDENTIALS.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	if !s.ValidLogin(ctx, email, password) {
		return "", oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid email or password")
	}

	token, err := s.CreateSession(ctx, email)
	if err != nil {
		return "", err
	}
	if token == "" {
		// The user disappeared between validation and session creation.
		return "", oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid email or password")
	}
	return token, nil
}

// CreateSession issues a new session token for the user with the given
// email, overwriting and thereby invalidating any previous session. An
// unknown email yields ("", nil), not an error. The write is atomic;
// concurrent logins race to last-writer-wins without partial state.
func (s *Service) CreateSession(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	token, hash, err := GenerateToken()
	if err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	if err := s.users.SetSessionHash(ctx, user.ID, &hash); err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "store session token").
			Wrap(err)
	}

	return token, nil
}

// UserFromSession resolves a session token to its user. An empty or unknown
// token yields (nil, nil), never an error.
func (s *Service) UserFromSession(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, nil
	}

	user, err := s.users.GetBySessionHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("SESSION_LOOKUP_FAILED").
			With("operation", "get user by session").
			Wrap(err)
	}
	return user, nil
}

// DestroySession clears the user's session token. Destroying a session that
// does not exist is a no-op; only a missing user is an error.
func (s *Service) DestroySession(ctx context.Context, userID ulid.ULID) error {
	if err := s.users.SetSessionHash(ctx, userID, nil); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_NOT_FOUND").
				With("user_id", userID.String()).
				Wrap(ErrNotFound)
		}
		return oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "clear session token").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// RequestPasswordReset issues a single-use reset token for the user with the
// given email, invalidating any prior reset token. An unknown email fails
// with AUTH_NOT_FOUND.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("AUTH_NOT_FOUND").
				With("email", email).
				Wrap(ErrNotFound)
		}
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	token, hash, err := GenerateToken()
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	if err := s.users.SetResetHash(ctx, user.ID, &hash); err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "store reset token").
			Wrap(err)
	}

	return token, nil
}

// ConfirmPasswordReset consumes a reset token: the new password is hashed
// and stored, and the token is cleared in the same write, so a token can be
// used exactly once. An unknown token fails with RESET_TOKEN_INVALID.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return ErrEmptyPassword
	}
	if token == "" {
		return oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidToken)
	}

	user, err := s.users.GetByResetHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidToken)
		}
		return oops.Code("RESET_CONFIRM_FAILED").
			With("operation", "get user by reset token").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_CONFIRM_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash, s.dropSessionOnReset); err != nil {
		return oops.Code("RESET_CONFIRM_FAILED").
			With("operation", "update password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return nil
}

// Authenticate resolves a request's Basic-auth credentials to a user. Every
// failure along the chain (missing header, malformed scheme, bad base64,
// bad credential shape, unknown email, wrong password) yields (nil, nil).
// Only repository failures other than a lookup miss surface as errors.
func (s *Service) Authenticate(ctx context.Context, req Request) (*User, error) {
	header, ok := req.Header(AuthorizationHeader)
	if !ok {
		return nil, nil
	}
	token, ok := ExtractBasicToken(header)
	if !ok {
		return nil, nil
	}
	decoded, ok := DecodeBasicToken(token)
	if !ok {
		return nil, nil
	}
	email, password, ok := SplitCredentials(decoded)
	if !ok {
		return nil, nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		// A stored hash that cannot be parsed means this credential cannot
		// authenticate; treat it like a mismatch.
		s.logger.DebugContext(ctx, "stored hash verification failed", "error", err)
		return nil, nil
	}
	if !valid {
		return nil, nil
	}
	return user, nil
}
