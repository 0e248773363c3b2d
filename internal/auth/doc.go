// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth provides the authentication core for Gatehouse.
//
// # Domain Types
//
// User is the single persisted record. Create one through NewUser, which
// validates the email and password hash; direct struct initialization
// bypasses validation and may create invalid state. Repository
// implementations receive pre-validated records.
//
// # Policy
//
// RequireAuth decides whether a request path is subject to authentication at
// all, given a list of exclusion patterns. The Basic-auth codec functions
// (ExtractBasicToken, DecodeBasicToken, SplitCredentials) are total: malformed
// input degrades to a "no value" result, never an error.
//
// # Service
//
// Service coordinates registration, login, session lifecycle, and the
// password-reset workflow against a UserRepository and a PasswordHasher.
// Lookup misses on queries are represented as nil results; only state
// conflicts (duplicate email, unknown reset token) surface as errors.
package auth
