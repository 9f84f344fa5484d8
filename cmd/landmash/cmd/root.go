package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"landmash/lib/serviceutil"
	"landmash/lib/telemetry"
	"landmash/services/landmark"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

// current is set by the root command before any subcommand runs.
var current *app

var rootCmd = &cobra.Command{
	Use:           "landmash",
	Short:         "landmash lists what is showing at Landmark Theatres, ranked by critic ratings.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)

		config, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		current, err = newApp(cmd.Context(), config)
		if err != nil {
			return fmt.Errorf("init: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "landmash.json5", "Path to the config file.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging.")
}

// describe maps an error to the message shown to the user.
func describe(err error) string {
	var upstreamErr *landmark.UpstreamUnavailableError
	if errors.As(err, &upstreamErr) {
		return "service unavailable: " + err.Error()
	}
	return err.Error()
}

func Execute() {
	ctx, cancel := serviceutil.SignalContext(context.Background())
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	if current != nil {
		closeErr := current.Close(context.Background())
		if closeErr != nil {
			slog.Warn("failed to shut down cleanly", "err", closeErr)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}
