package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rems-acc/rems/pkg/app"
	"github.com/rems-acc/rems/pkg/database"
)

// rems serve: start the HTTP server.
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"run", "start"},
	Short:   "Start the HTTP server",
	RunE:    runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()
	return app.Boot(ctx, factory)
}

// rems route:list: print all registered routes.
var routeListCmd = &cobra.Command{
	Use:     "route:list",
	Aliases: []string{"routes"},
	Short:   "List registered routes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := app.Configure()
		if err != nil {
			return err
		}
		a, err := factory(cfg)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		return app.PrintRoutes(cmd.OutOrStdout(), a.Routes())
	},
}

// rems db:ping: check that MAIN_DB_URI is reachable.
var dbPingCmd = &cobra.Command{
	Use:   "db:ping",
	Short: "Connect to the main database and ping it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := app.Configure()
		if err != nil {
			return err
		}

		opts := database.DefaultOptions()
		opts.Debug = cfg.Debug
		db, err := database.Open(cfg.DatabaseURI, opts)
		if err != nil {
			return err
		}
		defer database.Close(db) //nolint:errcheck

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := database.Ping(ctx, db); err != nil {
			return fmt.Errorf("db:ping: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "OK  %s\n", database.Redact(cfg.DatabaseURI))
		return nil
	},
}
