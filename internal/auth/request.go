// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

// Request is the narrow view of an incoming request the core needs. It keeps
// the service independent of any concrete HTTP type; the httpapi package
// adapts *http.Request to it.
type Request interface {
	// Header returns the named header value and whether it was present.
	Header(name string) (string, bool)

	// Cookie returns the named cookie value and whether it was present.
	Cookie(name string) (string, bool)
}
