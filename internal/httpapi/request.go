// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package httpapi exposes the auth service over HTTP: registration, login,
// logout, profile, and the password-reset workflow, behind a path-exclusion
// guard.
package httpapi

import (
	"net/http"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// request adapts *http.Request to auth.Request.
type request struct {
	r *http.Request
}

func (a request) Header(name string) (string, bool) {
	values, ok := a.r.Header[http.CanonicalHeaderKey(name)]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func (a request) Cookie(name string) (string, bool) {
	cookie, err := a.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}

var _ auth.Request = request{}
