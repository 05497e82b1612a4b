// Package cli wires the cobra command tree for the gridbot binary.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gridbot/internal/app"
	"gridbot/internal/config"
	"gridbot/internal/logging"
)

// NewRootCmd builds the root command. gridbot's only real subcommand
// today is run; the root itself just prints usage.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gridbot",
		Short: "Adaptive grid trading bot for Solana/Jupiter markets",
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var configPath string
	var durationHours int
	var durationMinutes int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot until interrupted or the configured duration elapses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(configPath, durationHours, durationMinutes, dryRun)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "internal/config/config.yaml", "path to config file")
	cmd.Flags().IntVar(&durationHours, "duration-hours", 0, "stop after this many hours (0 = run until interrupted)")
	cmd.Flags().IntVar(&durationMinutes, "duration-minutes", 0, "stop after this many minutes, added to duration-hours")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate every cycle but never sign or submit a transaction")

	return cmd
}

func runBot(configPath string, durationHours, durationMinutes int, dryRun bool) error {
	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.Log)
	log.Info("config loaded", zap.String("path", configPath), zap.Bool("dry_run", dryRun))

	application, err := app.New(cfg, log, dryRun)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	log.Info("app initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if d := time.Duration(durationHours)*time.Hour + time.Duration(durationMinutes)*time.Minute; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
		log.Info("bounded run requested", zap.Duration("duration", d))
	}

	if err := application.Run(ctx); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		log.Error("bot terminated", zap.Error(err))
		return err
	}
	log.Info("bot shut down cleanly")
	return nil
}
