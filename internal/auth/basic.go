// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"encoding/base64"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Basic-auth header and credential shapes. Full matches only: the scheme
// keyword is case-sensitive, followed by exactly one space, and the username
// may not contain a colon. The secret may.
var (
	basicHeaderRegex = regexp.MustCompile(`^Basic (.+)$`)
	credentialsRegex = regexp.MustCompile(`^([^:]+):(.+)$`)
)

// ExtractBasicToken pulls the opaque token out of an Authorization header
// value. The header is trimmed of surrounding whitespace before matching.
// Returns ("", false) on any malformed input.
func ExtractBasicToken(header string) (string, bool) {
	m := basicHeaderRegex.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// DecodeBasicToken decodes the base64 payload of a Basic-auth header.
// The decode is strict: non-canonical encodings and byte sequences that are
// not valid UTF-8 are rejected. Returns ("", false) on any malformed input.
func DecodeBasicToken(token string) (string, bool) {
	raw, err := base64.StdEncoding.Strict().DecodeString(token)
	if err != nil {
		return "", false
	}
	if !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}

// SplitCredentials separates a decoded Basic-auth payload into username and
// secret at the first colon. The username must be non-empty and colon-free;
// the secret must be non-empty and may itself contain colons. The input is
// trimmed of surrounding whitespace before matching.
func SplitCredentials(decoded string) (username, secret string, ok bool) {
	m := credentialsRegex.FindStringSubmatch(strings.TrimSpace(decoded))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
