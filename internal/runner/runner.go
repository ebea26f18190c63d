// Package runner drives sync runs: it computes the listing window, opens the
// store for the duration of one run, feeds the pipeline, and records the
// outcome. Runs never overlap.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mileusna/crontab"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/convo-sync/internal/db"
	"github.com/wuwenbin0122/convo-sync/internal/metrics"
	"github.com/wuwenbin0122/convo-sync/internal/models"
	"github.com/wuwenbin0122/convo-sync/internal/pipeline"
	"github.com/wuwenbin0122/convo-sync/internal/utils"
)

// ErrRunInProgress is returned when another run holds the process or
// cluster lock.
var ErrRunInProgress = errors.New("runner: a sync run is already in progress")

// ErrStopped is returned by RunOnce after Schedule has shut down.
var ErrStopped = errors.New("runner: stopped")

// ConversationLister lists the conversations active in a window.
type ConversationLister interface {
	ListConversations(ctx context.Context, from, to time.Time) ([]models.Payload, error)
}

// StoreOpener opens a store for one run; the runner closes it when the run ends.
type StoreOpener func(ctx context.Context) (db.Store, error)

// Deps are the collaborators of a Runner. Lock and Publisher are optional.
type Deps struct {
	Source    ConversationLister
	Messages  pipeline.MessageSource
	OpenStore StoreOpener
	Lock      Locker
	Publisher Publisher
}

type Runner struct {
	deps       Deps
	opts       pipeline.Options
	loc        *time.Location
	lookback   time.Duration
	runTimeout time.Duration
	logger     *zap.Logger
	now        func() time.Time

	running sync.Mutex

	mu     sync.RWMutex
	latest *pipeline.Report
	// cancelRun cancels the run in flight, if any.
	cancelRun context.CancelFunc
	stopped   bool
}

func New(deps Deps, cfg utils.SyncConfig, loc *time.Location, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}

	return &Runner{
		deps:       deps,
		opts:       pipeline.OptionsFrom(cfg),
		loc:        loc,
		lookback:   cfg.Lookback,
		runTimeout: cfg.RunTimeout,
		logger:     logger.Named("runner"),
		now:        time.Now,
	}
}

// Latest returns a copy of the most recent finished report, or nil.
func (r *Runner) Latest() *pipeline.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.latest == nil {
		return nil
	}
	return r.latest.Snapshot()
}

// RunOnce performs one complete sync. The returned error covers only problems
// that prevented the run from starting; record-level failures are in the
// report.
func (r *Runner) RunOnce(ctx context.Context) (*pipeline.Report, error) {
	if !r.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.running.Unlock()

	if r.deps.Lock != nil {
		release, acquired, err := r.deps.Lock.TryLock(ctx)
		if err != nil {
			return nil, fmt.Errorf("runner: acquire lock: %w", err)
		}
		if !acquired {
			return nil, ErrRunInProgress
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("release run lock failed", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !r.track(cancel) {
		return nil, ErrStopped
	}
	defer r.track(nil)

	if r.runTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, r.runTimeout)
		defer cancelTimeout()
	}

	rep := pipeline.NewReport()
	log := r.logger.With(zap.String("run_id", rep.RunID))
	from, to := Window(r.now(), r.loc, r.lookback)

	store, err := r.deps.OpenStore(ctx)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("runner: open store: %w", err)
	}
	defer func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("close store failed", zap.Error(err))
		}
	}()

	// A listing that fails part way still returns the pages it got.
	conversations, err := r.deps.Source.ListConversations(ctx, from, to)
	if err != nil && ctx.Err() != nil {
		log.Info("run cancelled while listing conversations", zap.Int("listed", len(conversations)))
	} else if err != nil {
		log.Warn("list conversations failed",
			zap.Int("listed", len(conversations)),
			zap.Error(err),
		)
		rep.AddFetchFailure("", err)
	}

	if len(conversations) == 0 {
		log.Info("no conversations found",
			zap.Time("from", from),
			zap.Time("to", to),
		)
		rep.Finish(ctx.Err() != nil)
	} else {
		log.Info("ingesting conversations",
			zap.Int("count", len(conversations)),
			zap.Time("from", from),
			zap.Time("to", to),
		)
		pipeline.New(store, r.deps.Messages, r.logger, r.opts).IngestInto(ctx, rep, conversations)
	}

	r.record(ctx, log, rep)
	return rep, nil
}

// track registers the cancel func of the run in flight. It reports false
// once the runner has stopped.
func (r *Runner) track(cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped && cancel != nil {
		return false
	}
	r.cancelRun = cancel
	return true
}

// stop refuses new runs and cancels the one in flight.
func (r *Runner) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	if r.cancelRun != nil {
		r.cancelRun()
	}
}

func (r *Runner) record(ctx context.Context, log *zap.Logger, rep *pipeline.Report) {
	status := rep.Status()
	duration := rep.Duration()

	metrics.RunsTotal.WithLabelValues(status).Inc()
	metrics.RunDuration.Observe(duration.Seconds())

	log.Info("run finished",
		zap.String("status", status),
		zap.Duration("duration", duration),
		zap.Any("conversations", rep.Conversations),
		zap.Any("messages", rep.Messages),
		zap.Any("senders", rep.Senders),
		zap.Int("fetch_failures", rep.FetchFailures),
	)

	if r.deps.Publisher != nil {
		if err := r.deps.Publisher.Publish(context.WithoutCancel(ctx), rep); err != nil {
			log.Warn("publish run report failed", zap.Error(err))
		}
	}

	r.mu.Lock()
	r.latest = rep
	r.mu.Unlock()
}

// Schedule runs once immediately and then on every tick of the cron spec
// until ctx is done. A tick that fires while a run is still going is skipped.
// Cancelling ctx cancels the run in flight, scheduled or manual, which stops
// scheduling new work and lets started writes finish; Schedule returns after
// that run returns.
func (r *Runner) Schedule(ctx context.Context, spec string) error {
	ctab := crontab.New()

	job := func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.RunOnce(ctx); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				r.logger.Info("previous run still in progress, skipping tick")
				return
			}
			r.logger.Error("scheduled run failed", zap.Error(err))
		}
	}

	if err := ctab.AddJob(spec, job); err != nil {
		return fmt.Errorf("runner: schedule %q: %w", spec, err)
	}
	r.logger.Info("sync scheduled", zap.String("schedule", spec))

	job()

	<-ctx.Done()
	ctab.Shutdown()
	r.stop()

	// Wait for a tick that was already running.
	r.running.Lock()
	r.running.Unlock()

	return nil
}
