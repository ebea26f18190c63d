package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/convo-sync/db"
	store "github.com/wuwenbin0122/convo-sync/internal/db"
	"github.com/wuwenbin0122/convo-sync/internal/pipeline"
	"github.com/wuwenbin0122/convo-sync/internal/runner"
	"github.com/wuwenbin0122/convo-sync/internal/utils"
	"github.com/wuwenbin0122/convo-sync/services"
)

// app holds the wiring shared by run and schedule.
type app struct {
	cfg    *utils.Config
	logger *zap.Logger
	runner *runner.Runner

	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := utils.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	client := services.NewSourceClient(cfg.Source, logger.Sugar())
	messages, err := pipeline.NewMessageSource(cfg.Source.MessageMode, client)
	if err != nil {
		a.close()
		return nil, err
	}

	deps := runner.Deps{
		Source:    client,
		Messages:  messages,
		OpenStore: openStore(cfg.Storage),
	}

	if cfg.Lock.RedisAddr != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.Lock.RedisAddr)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		deps.Lock = runner.NewRedisLock(rdb, cfg.Lock.Key, cfg.Lock.TTL)
		logger.Info("cross-process run lock enabled", zap.String("key", cfg.Lock.Key))
	}

	if cfg.Report.NATSURL != "" {
		publisher, err := runner.NewNATSPublisher(cfg.Report.NATSURL, cfg.Report.Subject)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("nats: %w", err)
		}
		a.closers = append(a.closers, publisher.Close)
		deps.Publisher = publisher
		logger.Info("run reports published", zap.String("subject", cfg.Report.Subject))
	}

	a.runner = runner.New(deps, cfg.Sync, cfg.Location, logger)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = utils.SyncLogger(a.logger)
}

// openStore connects for one run and makes sure the tables exist.
func openStore(cfg utils.StorageConfig) runner.StoreOpener {
	return func(ctx context.Context) (store.Store, error) {
		s, err := store.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("%s: ensure schema: %w", s.Driver(), err)
		}
		return s, nil
	}
}
