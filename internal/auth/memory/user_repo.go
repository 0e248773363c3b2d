// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package memory implements auth.UserRepository in process memory. It backs
// tests and the dev profile; semantics match the postgres implementation,
// including atomic overwrites and duplicate-email detection.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// UserRepository is a mutex-guarded in-memory auth.UserRepository.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
}

// NewUserRepository creates an empty in-memory repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores a new user; duplicate emails yield auth.ErrAlreadyExists.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return oops.Code("USER_ALREADY_EXISTS").
			With("email", user.Email).
			Wrap(auth.ErrAlreadyExists)
	}

	clone := *user
	r.byID[user.ID] = &clone
	r.byEmail[user.Email] = user.ID
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	clone := *user
	return &clone, nil
}

// GetByEmail retrieves a user by email (case-sensitive).
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	clone := *r.byID[id]
	return &clone, nil
}

// GetBySessionHash retrieves the user holding the given session token hash.
func (r *UserRepository) GetBySessionHash(_ context.Context, hash string) (*auth.User, error) {
	return r.findBy(func(u *auth.User) *string { return u.SessionHash }, hash)
}

// GetByResetHash retrieves the user holding the given reset token hash.
func (r *UserRepository) GetByResetHash(_ context.Context, hash string) (*auth.User, error) {
	return r.findBy(func(u *auth.User) *string { return u.ResetHash }, hash)
}

func (r *UserRepository) findBy(field func(*auth.User) *string, hash string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.byID {
		if v := field(user); v != nil && *v == hash {
			clone := *user
			return &clone, nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// SetSessionHash overwrites the session token hash; nil clears it.
func (r *UserRepository) SetSessionHash(_ context.Context, id ulid.ULID, hash *string) error {
	return r.update(id, func(u *auth.User) {
		u.SessionHash = cloneString(hash)
	})
}

// SetResetHash overwrites the reset token hash; nil clears it.
func (r *UserRepository) SetResetHash(_ context.Context, id ulid.ULID, hash *string) error {
	return r.update(id, func(u *auth.User) {
		u.ResetHash = cloneString(hash)
	})
}

// UpdatePassword stores a new password hash, clears the reset token, and
// optionally drops the session, all under one lock acquisition.
func (r *UserRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string, dropSession bool) error {
	return r.update(id, func(u *auth.User) {
		u.PasswordHash = passwordHash
		u.ResetHash = nil
		if dropSession {
			u.SessionHash = nil
		}
	})
}

func (r *UserRepository) update(id ulid.ULID, apply func(*auth.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	apply(user)
	user.UpdatedAt = time.Now()
	return nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
