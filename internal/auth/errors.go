// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when creating a user whose email is taken.
var ErrAlreadyExists = errors.New("already exists")

// ErrInvalidToken is returned when a reset token resolves to no user.
var ErrInvalidToken = errors.New("invalid token")
