package app

// server.go bridges Application → internal/server and holds the process
// bootstrap.

import (
	"context"
	"fmt"
	"net"

	"github.com/rems-acc/rems/config"
	"github.com/rems-acc/rems/internal/server"
	"github.com/rems-acc/rems/pkg/database"
	"github.com/rems-acc/rems/pkg/logger"
)

// Run binds the configured address and serves until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	ln, err := server.Listen(a.cfg.Addr())
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve answers requests on ln until ctx is cancelled. ln is closed on
// return.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	if a.cfg.Debug {
		a.log.Warn("debug mode enabled: verbose error responses, do not expose this server")
	}
	return server.Serve(ctx, ln, a.handler, server.Options{
		ReadTimeout:     a.cfg.ReadTimeout,
		WriteTimeout:    a.cfg.WriteTimeout,
		ShutdownTimeout: a.cfg.ShutdownTimeout,
		Logger:          a.log,
	})
}

// Boot runs the process lifecycle: load configuration files, default
// MAIN_DB_URI, resolve Config, construct the application with factory and
// serve it. A factory error is returned as is and nothing is bound.
func Boot(ctx context.Context, factory Factory) error {
	cfg, err := Configure()
	if err != nil {
		return err
	}

	a, err := factory(cfg)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	return a.Run(ctx)
}

// Configure performs the configuration step of Boot on its own.
func Configure() (config.Config, error) {
	if err := config.Load(); err != nil {
		return config.Config{}, fmt.Errorf("app: load config: %w", err)
	}
	if uri := config.EnsureDatabaseURI(); uri == config.DefaultDatabaseURI {
		logger.Info("using default database", "uri", uri)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, fmt.Errorf("app: %w", err)
	}
	logger.Debug("configuration resolved",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"database", database.Redact(cfg.DatabaseURI),
	)
	return cfg, nil
}
