package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"formgate/core"
)

var (
	configFilePath string
	runOnce        bool
)

var rootCmd = &cobra.Command{
	Use:   "formgate-worker",
	Short: "Remove expired sessions from a shared session backend",
	Long: `formgate-worker sweeps sessions older than session_ttl from the postgres
backend so that API instances do not each have to run their own sweeper.`,
	RunE: run,
}

func main() {
	rootCmd.Flags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")
	rootCmd.Flags().BoolVar(&runOnce, "once", false, "Sweep once and exit")

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := core.Load(configFilePath)
	if err != nil {
		return err
	}
	if cfg.SessionBackend != core.BackendPostgres {
		return fmt.Errorf("session_backend %q does not need a standalone sweeper", cfg.SessionBackend)
	}
	if cfg.SessionTTL <= 0 {
		return errors.New("session_ttl must be set for the sweeper")
	}

	logger, logCloser, err := core.SetupLogging(cfg, "worker.log")
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logCloser.Close()
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("instance", core.NewInstanceID("worker")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := core.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	defer db.Close()

	// the worker never mints ids, so a random key is fine here
	ids, err := core.NewSessionIDs(nil)
	if err != nil {
		return err
	}
	registry := core.NewPgSessionRegistry(db, ids, cfg.SessionTTL)
	if err := registry.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to prepare sessions table: %w", err)
	}

	sweeper := core.NewSessionSweeper(registry, cfg.SessionTTL, cfg.SweepInterval, logger)
	if runOnce {
		n, err := sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		logger.Info("sweep finished", zap.Int("removed", n))
		return nil
	}

	supervisor := suture.NewSimple("formgate-worker")
	supervisor.Add(sweeper)
	logger.Info("worker started", zap.Duration("ttl", cfg.SessionTTL), zap.Duration("interval", cfg.SweepInterval))
	if err := supervisor.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor stopped: %w", err)
	}
	logger.Info("worker stopped")
	return nil
}
