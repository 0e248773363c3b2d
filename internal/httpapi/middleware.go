// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"context"
	"net/http"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

type contextKey struct{}

var userContextKey contextKey

// UserFromContext returns the user the guard resolved for this request, or
// nil on excluded paths.
func UserFromContext(ctx context.Context) *auth.User {
	user, _ := ctx.Value(userContextKey).(*auth.User)
	return user
}

// guard enforces authentication on every path not excluded by configuration.
// A request with no credential at all gets 401; a credential that resolves
// to no user gets 403. The resolved user rides the request context.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.RequireAuth(r.URL.Path, s.excludedPaths) {
			s.countDecision(observability.OutcomeExcluded)
			next.ServeHTTP(w, r)
			return
		}

		adapter := request{r: r}

		cookie, hasCookie := adapter.Cookie(s.sessionCookie)
		_, hasHeader := adapter.Header(auth.AuthorizationHeader)
		if !hasCookie && !hasHeader {
			s.countDecision(observability.OutcomeNoCredential)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		user, err := s.resolveUser(r.Context(), adapter, cookie, hasCookie)
		if err != nil {
			errutil.LogError(s.logger, "credential resolution failed", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if user == nil {
			s.countDecision(observability.OutcomeUnresolved)
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		}

		s.countDecision(observability.OutcomeAuthorized)
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveUser tries the session cookie first, then Basic credentials.
func (s *Server) resolveUser(ctx context.Context, adapter request, cookie string, hasCookie bool) (*auth.User, error) {
	if hasCookie {
		user, err := s.auth.UserFromSession(ctx, cookie)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}
	return s.auth.Authenticate(ctx, adapter)
}

func (s *Server) countDecision(outcome string) {
	if s.metrics != nil {
		s.metrics.AuthDecisions.WithLabelValues(outcome).Inc()
	}
}
