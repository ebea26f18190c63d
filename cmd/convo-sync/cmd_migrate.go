package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	store "github.com/wuwenbin0122/convo-sync/internal/db"
	"github.com/wuwenbin0122/convo-sync/internal/utils"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables and indexes for the configured storage driver",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := utils.LoadLocalConfig()
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = utils.SyncLogger(logger) }()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	s, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(context.Background()); err != nil {
			logger.Warn("close store failed", zap.Error(err))
		}
	}()

	if err := s.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("%s: ensure schema: %w", s.Driver(), err)
	}

	logger.Info("schema ready", zap.String("driver", s.Driver()))
	return nil
}
