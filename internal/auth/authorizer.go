// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "strings"

// WildcardMarker terminates an exclusion pattern that matches by prefix.
const WildcardMarker = "*"

// RequireAuth reports whether a request path is subject to authentication,
// given a list of exclusion patterns. It fails closed: an empty path or an
// empty exclusion list always requires auth.
//
// Exact patterns compare against the path normalized to a trailing slash, so
// "/api/x" and "/api/x/" are equivalent for a pattern "/api/x/". Wildcard
// patterns compare their prefix (the pattern minus the marker) against the
// raw, un-normalized path truncated to the prefix length. Empty patterns
// never match and never block iteration.
func RequireAuth(path string, excluded []string) bool {
	if path == "" || len(excluded) == 0 {
		return true
	}

	normalized := path
	if !strings.HasSuffix(normalized, "/") {
		normalized += "/"
	}

	for _, pattern := range excluded {
		if pattern == "" {
			continue
		}
		if strings.HasSuffix(pattern, WildcardMarker) {
			// Prefix match against the raw path, boundary character included.
			if strings.HasPrefix(path, pattern[:len(pattern)-1]) {
				return false
			}
			continue
		}
		if normalized == pattern {
			return false
		}
	}

	return true
}
