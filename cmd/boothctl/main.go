// Command boothctl runs one-off maintenance tasks against the booking store:
// slot diagnostics, reminders, audit inspection, exports and sheet syncs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"boothbook/internal/app"
	"boothbook/internal/config"
	"boothbook/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "boothctl",
		Short:         "Maintenance tool for the boothbook appointment service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfig, "config file path")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newSlotsCmd(opts),
		newRemindersCmd(opts),
		newAuditCmd(opts),
		newExportCmd(opts),
		newSettingsCmd(opts),
		newNotificationsCmd(opts),
		newSheetsCmd(opts),
		newBackupCmd(opts),
	)
	return root
}

// withApp loads the config, assembles the services and runs fn.
func withApp(cmd *cobra.Command, opts *rootOptions, appOpts app.Options, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := zerolog.Nop()
	if opts.verbose {
		cfg.Logging.Output = "stderr"
		base, _, err := logging.New(cfg.Logging, cfg.App)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = base.With().Str("component", "boothctl").Logger()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, &logger, appOpts)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return fn(ctx, a)
}
