package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/convo-sync/internal/api"
	"github.com/wuwenbin0122/convo-sync/internal/auth"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run now, then on every SYNC_SCHEDULE tick until interrupted",
	Long: `Schedule runs one sync immediately and then on the cron expression in
SYNC_SCHEDULE. Ticks that fire while a run is in progress are skipped.

When OPS_ADDR is set an HTTP server exposes /health, /metrics, the latest
run report and a manual trigger guarded by OPS_JWT_SECRET.

SIGINT or SIGTERM stops scheduling, lets the current run finish its started
writes, and shuts the HTTP server down.`,
	RunE: runSchedule,
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var server *http.Server
	if a.cfg.Ops.Addr != "" {
		server, err = newOpsServer(a)
		if err != nil {
			return err
		}

		go func() {
			a.logger.Info("ops server listening", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("ops server crashed", zap.Error(err))
				cancel()
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	go func() {
		select {
		case sig := <-quit:
			a.logger.Info("shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	scheduleErr := a.runner.Schedule(ctx, a.cfg.Sync.Schedule)

	if server != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("graceful shutdown failed", zap.Error(err))
		}
	}

	if scheduleErr != nil {
		return scheduleErr
	}
	a.logger.Info("scheduler stopped cleanly")
	return nil
}

func newOpsServer(a *app) (*http.Server, error) {
	var authService *auth.Service
	if a.cfg.Ops.JWTSecret != "" {
		svc, err := auth.NewService(a.cfg.Ops.JWTSecret, a.cfg.Ops.TokenTTL)
		if err != nil {
			return nil, err
		}
		authService = svc
	} else {
		a.logger.Warn("OPS_JWT_SECRET not set, manual runs disabled")
	}

	return &http.Server{
		Addr:         a.cfg.Ops.Addr,
		Handler:      api.NewRouter(authService, a.runner, a.logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: a.cfg.Sync.RunTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}
