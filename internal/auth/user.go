// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxEmailLength bounds stored email addresses.
const MaxEmailLength = 254

// emailRegex is a deliberately loose shape check: one @, no whitespace.
// Deliverability is not this layer's problem.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+$`)

// User is a registered account. SessionHash and ResetHash hold the SHA-256
// of the corresponding plaintext tokens, nil when no token is outstanding.
// A user has at most one of each at any time.
type User struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	SessionHash  *string
	ResetHash    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates a validated User with no outstanding tokens.
func NewUser(email, passwordHash string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasSession reports whether the user has an active session token.
func (u *User) HasSession() bool {
	return u.SessionHash != nil && *u.SessionHash != ""
}

// ValidateEmail checks the shape of an email address. Emails are stored and
// compared case-sensitively.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	if !emailRegex.MatchString(email) {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email must contain a single @ and no whitespace")
	}
	return nil
}

// UserRepository manages user persistence. Lookup misses are reported as
// ErrNotFound (possibly wrapped); callers translate them to absent results.
// Every mutating method must execute as a single atomic statement so that
// concurrent operations against the same user cannot interleave partial
// writes.
type UserRepository interface {
	// Create stores a new user. A duplicate email yields ErrAlreadyExists.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-sensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetBySessionHash retrieves the user holding the given session token hash.
	GetBySessionHash(ctx context.Context, hash string) (*User, error)

	// GetByResetHash retrieves the user holding the given reset token hash.
	GetByResetHash(ctx context.Context, hash string) (*User, error)

	// SetSessionHash overwrites the session token hash; nil clears it.
	SetSessionHash(ctx context.Context, id ulid.ULID, hash *string) error

	// SetResetHash overwrites the reset token hash; nil clears it.
	SetResetHash(ctx context.Context, id ulid.ULID, hash *string) error

	// UpdatePassword stores a new password hash and clears the reset token in
	// the same statement. When dropSession is true the session token hash is
	// cleared as well.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, dropSession bool) error
}
