// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/memory"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
)

const shutdownTimeout = 5 * time.Second

// newServeCmd creates the serve subcommand with all flags configured.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication HTTP server",
		Long: `Start the HTTP server that handles registration, login, logout,
profile access, and password resets, plus the metrics/health listener.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("addr", "", "API listen address")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("session-cookie", "", "session cookie name")
	cmd.Flags().String("log-format", "", "log format (json or text)")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().Bool("dev", false, "use the in-memory repository (state is lost on exit)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logging.SetDefault("gatehouse", version, cfg.Log.Format, cfg.Log.Level)
	logger := slog.Default()

	logger.Info("starting gatehouse",
		"addr", cfg.Server.Addr,
		"metrics_addr", cfg.Server.MetricsAddr,
		"dev", cfg.Dev,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	users, cleanup, err := buildRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := []auth.ServiceOption{auth.WithLogger(logger)}
	if cfg.Auth.InvalidateSessionsOnReset {
		opts = append(opts, auth.WithSessionInvalidationOnReset())
	}
	svc, err := auth.NewService(users, auth.NewArgon2idHasher(), opts...)
	if err != nil {
		return err
	}

	// Observability first so the API server can record metrics.
	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.Server.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.Server.MetricsAddr, func() bool { return true })
		if _, err := obsServer.Start(); err != nil {
			return err
		}
		metrics = obsServer.Metrics()
	}

	apiServer, err := httpapi.NewServer(svc, httpapi.Options{
		Addr:          cfg.Server.Addr,
		SessionCookie: cfg.Server.SessionCookie,
		ExcludedPaths: cfg.Server.ExcludedPaths,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		stopObservability(obsServer)
		return err
	}

	apiErrCh, err := apiServer.Start()
	if err != nil {
		stopObservability(obsServer)
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-apiErrCh:
		if err != nil {
			logger.Error("api server failed", "error", err)
		}
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// buildRepository returns the configured user repository and a cleanup func.
func buildRepository(ctx context.Context, cfg *config.Config) (auth.UserRepository, func(), error) {
	if cfg.Dev {
		slog.Warn("dev mode: using in-memory repository, state is lost on exit")
		return memory.NewUserRepository(), func() {}, nil
	}

	pool, err := store.Connect(ctx, cfg.Database.URL, store.ConnectOptions{})
	if err != nil {
		return nil, nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "connect to database").
			Wrap(err)
	}
	return postgres.NewUserRepository(pool), pool.Close, nil
}

func stopObservability(obsServer *observability.Server) {
	if obsServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := obsServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}
