// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/passgate/passgate/internal/api"
	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/logging"
	"github.com/passgate/passgate/internal/observability"
	"github.com/passgate/passgate/internal/store"
)

const (
	serviceName      = "passgate"
	readinessTimeout = 2 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth HTTP service",
		Long: `Start the auth HTTP service. Configuration is read from defaults,
the --config YAML file, PASSGATE_* environment variables, and flags.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().String("http-addr", defaultHTTPAddr, "API listen address")
	cmd.Flags().String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("google-client-id", "", "Google OAuth client ID (empty = federated login disabled)")
	cmd.Flags().String("log-format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	cmd.Flags().Bool("auto-migrate", true, "apply pending migrations on startup")

	return cmd
}

// runServeWithDeps runs the service until ctx is cancelled, a shutdown
// signal arrives, or a server fails. If deps is nil, default
// implementations are used.
func runServeWithDeps(ctx context.Context, cfg *serveConfig, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.setDefaults()

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.Setup(serviceName, version, cfg.LogFormat, level, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	logger.Info("starting passgate",
		"http_addr", cfg.HTTPAddr,
		"metrics_addr", cfg.MetricsAddr,
		"federated", cfg.GoogleClientID != "",
	)

	db, err := deps.DatabaseFactory(ctx, store.PoolConfig{DSN: cfg.DatabaseURL})
	if err != nil {
		return oops.With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	logger.Info("connected to database")

	if cfg.AutoMigrate {
		if err := applyMigrations(deps.MigratorFactory, cfg.DatabaseURL, logger); err != nil {
			return err
		}
		logger.Info("database schema up to date")
	}

	service, issuer, err := buildAuthService(ctx, cfg, deps, db, logger)
	if err != nil {
		return err
	}

	var obsServer ObservabilityServer
	handlerOpts := []api.Option{api.WithLogger(logger)}
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, readinessCheck(db))
		handlerOpts = append(handlerOpts, api.WithMetrics(obsServer.Metrics()))
	}

	handler, err := api.NewHandler(service, issuer, handlerOpts...)
	if err != nil {
		return oops.With("operation", "create api handler").Wrap(err)
	}

	apiServer := deps.APIServerFactory(cfg.HTTPAddr, handler, logger)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		return oops.With("operation", "start api server").Wrap(err)
	}

	// nil while the observability server is disabled
	var obsErrCh <-chan error
	if obsServer != nil {
		obsErrCh, err = obsServer.Start()
		if err != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer stopCancel()
			if stopErr := apiServer.Stop(stopCtx); stopErr != nil {
				logger.Warn("failed to stop api server during cleanup", "error", stopErr)
			}
			return oops.With("operation", "start observability server").Wrap(err)
		}
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Println("Passgate started")
	logger.Info("passgate ready", "http_addr", apiServer.Addr())

	var runErr error
	select {
	case <-sigCtx.Done():
		logger.Info("shutdown requested")
	case err, ok := <-apiErrCh:
		runErr = serverFailure("api", err, ok, logger)
	case err, ok := <-obsErrCh:
		runErr = serverFailure("observability", err, ok, logger)
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
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
	return runErr
}

// buildAuthService wires the hasher, token issuer, optional verifier, and
// repository into the auth service.
func buildAuthService(ctx context.Context, cfg *serveConfig, deps *ServeDeps, db Database, logger *slog.Logger) (*auth.Service, *auth.JWTIssuer, error) {
	hasher, err := auth.NewArgon2idHasherWithParams(cfg.hasherParams())
	if err != nil {
		return nil, nil, oops.With("operation", "create password hasher").Wrap(err)
	}

	issuer, err := auth.NewJWTIssuer(auth.TokenConfig{
		Secret: []byte(cfg.JWTSecret),
		TTL:    cfg.JWTTTL,
		Issuer: cfg.JWTIssuer,
	})
	if err != nil {
		return nil, nil, oops.With("operation", "create token issuer").Wrap(err)
	}

	var verifier auth.FederatedVerifier
	if cfg.GoogleClientID != "" {
		verifier, err = deps.VerifierFactory(ctx, cfg.GoogleClientID)
		if err != nil {
			return nil, nil, oops.With("operation", "create federated verifier").Wrap(err)
		}
	} else {
		logger.Info("federated login disabled", "reason", "google_client_id not set")
	}

	service, err := auth.NewService(deps.UserRepositoryFactory(db), hasher, issuer, verifier, auth.WithLogger(logger))
	if err != nil {
		return nil, nil, oops.With("operation", "create auth service").Wrap(err)
	}
	return service, issuer, nil
}

// applyMigrations brings the schema to the latest embedded version.
func applyMigrations(factory func(string) (SchemaMigrator, error), databaseURL string, logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.With("operation", "apply migrations").Wrap(err)
	}
	return nil
}

// readinessCheck reports ready while the database answers a ping.
func readinessCheck(db Database) observability.ReadinessChecker {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
		defer cancel()
		return db.Ping(ctx) == nil
	}
}

// serverFailure turns a value received from a server error channel into
// the error serve returns. A closed channel means the server stopped.
func serverFailure(server string, err error, ok bool, logger *slog.Logger) error {
	if !ok || err == nil {
		logger.Warn("server stopped unexpectedly", "server", server)
		return nil
	}
	logger.Error("server error, shutting down", "server", server, "error", err)
	return oops.Code("SERVER_FAILED").With("server", server).Wrap(err)
}
