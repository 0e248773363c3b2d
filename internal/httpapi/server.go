// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// Options configure the API server.
type Options struct {
	// Addr is the listen address.
	Addr string

	// SessionCookie is the cookie that carries the session token.
	SessionCookie string

	// ExcludedPaths are served without authentication.
	ExcludedPaths []string

	// Metrics is optional; nil disables metric recording.
	Metrics *observability.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server serves the auth HTTP API.
type Server struct {
	addr          string
	auth          *auth.Service
	sessionCookie string
	excludedPaths []string
	metrics       *observability.Metrics
	logger        *slog.Logger

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates an API server around the auth service.
func NewServer(svc *auth.Service, opts Options) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("API_INVALID_DEPS").Errorf("auth service is required")
	}
	if opts.SessionCookie == "" {
		return nil, oops.Code("API_INVALID_DEPS").Errorf("session cookie name is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:          opts.Addr,
		auth:          svc,
		sessionCookie: opts.SessionCookie,
		excludedPaths: opts.ExcludedPaths,
		metrics:       opts.Metrics,
		logger:        logger,
	}, nil
}

// Handler returns the routed handler with the guard applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /users", s.handleRegister)
	mux.HandleFunc("POST /sessions", s.handleLogin)
	mux.HandleFunc("DELETE /sessions", s.handleLogout)
	mux.HandleFunc("GET /profile", s.handleProfile)
	mux.HandleFunc("POST /reset_password", s.handleResetRequest)
	mux.HandleFunc("PUT /reset_password", s.handleResetConfirm)
	return s.guard(mux)
}

// Start begins serving. The returned channel carries any serve error and is
// closed on graceful shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server. Stopping a stopped server is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" when not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Bienvenue"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	_, err := s.auth.Register(r.Context(), email, password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{
			"email":   email,
			"message": "user created",
		})
	case errors.Is(err, auth.ErrAlreadyExists):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"message": "email already registered",
		})
	case hasCode(err, "AUTH_INVALID_EMAIL") || errors.Is(err, auth.ErrEmptyPassword):
		writeError(w, http.StatusBadRequest, "Bad request")
	default:
		errutil.LogError(s.logger, "registration failed", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	token, err := s.auth.Login(r.Context(), email, password)
	if err != nil {
		if hasCode(err, "AUTH_INVALID_CREDENTIALS") {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		errutil.LogError(s.logger, "login failed", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	if s.metrics != nil {
		s.metrics.SessionsIssued.Inc()
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"email":   email,
		"message": "logged in",
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user, err := s.sessionUser(r)
	if err != nil {
		errutil.LogError(s.logger, "logout session lookup failed", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	if err := s.auth.DestroySession(r.Context(), user.ID); err != nil {
		errutil.LogError(s.logger, "session destroy failed", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.sessionUser(r)
	if err != nil {
		errutil.LogError(s.logger, "profile session lookup failed", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"email": user.Email})
}

func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")

	token, err := s.auth.RequestPasswordReset(r.Context(), email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		}
		errutil.LogError(s.logger, "reset request failed", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.countReset(observability.ResetStageRequested)
	writeJSON(w, http.StatusOK, map[string]string{
		"email":       email,
		"reset_token": token,
	})
}

func (s *Server) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	token := r.PostFormValue("reset_token")
	newPassword := r.PostFormValue("new_password")

	err := s.auth.ConfirmPasswordReset(r.Context(), token, newPassword)
	switch {
	case err == nil:
		s.countReset(observability.ResetStageConfirmed)
		writeJSON(w, http.StatusOK, map[string]string{
			"email":   email,
			"message": "Password updated",
		})
	case errors.Is(err, auth.ErrInvalidToken):
		s.countReset(observability.ResetStageRejected)
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, auth.ErrEmptyPassword):
		writeError(w, http.StatusBadRequest, "Bad request")
	default:
		errutil.LogError(s.logger, "reset confirm failed", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// sessionUser resolves the request's user, preferring what the guard already
// put in the context over a fresh session cookie lookup.
func (s *Server) sessionUser(r *http.Request) (*auth.User, error) {
	if user := UserFromContext(r.Context()); user != nil {
		return user, nil
	}

	cookie, ok := request{r: r}.Cookie(s.sessionCookie)
	if !ok {
		return nil, nil
	}
	return s.auth.UserFromSession(r.Context(), cookie)
}

func (s *Server) countReset(stage string) {
	if s.metrics != nil {
		s.metrics.PasswordResets.WithLabelValues(stage).Inc()
	}
}

func hasCode(err error, code string) bool {
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == code
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // response write error means the client went away
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
