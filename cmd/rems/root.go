package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rems-acc/rems/pkg/app"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:           "rems",
	Short:         "REMS web server",
	Long:          "Starts the REMS web application and its supporting tools.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug mode (overrides APP_DEBUG)")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		if cmd.Flags().Changed("debug") {
			os.Setenv("APP_DEBUG", strconv.FormatBool(debug)) //nolint:errcheck
		}
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(routeListCmd)
	rootCmd.AddCommand(dbPingCmd)
}

// factory is the application factory used by every subcommand.
var factory = app.NewFactory()

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
