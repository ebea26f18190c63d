// Package pipeline ingests conversations with two nested concurrency limits:
// at most ConversationConcurrency conversation subtrees run at once, and each
// subtree runs at most MessageConcurrency message or sender saves at once.
// Every unit is attempted exactly once and failures never escape their unit;
// they are logged and recorded in the returned Report.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wuwenbin0122/convo-sync/internal/models"
	"github.com/wuwenbin0122/convo-sync/internal/normalize"
	"github.com/wuwenbin0122/convo-sync/internal/utils"
)

const (
	DefaultConversationConcurrency = 3
	DefaultMessageConcurrency      = 5
)

// Upserter is the persistence operation the pipeline depends on.
type Upserter interface {
	Upsert(ctx context.Context, rec models.Record) error
}

type Options struct {
	ConversationConcurrency int
	MessageConcurrency      int
	// FetchTimeout bounds each message listing; zero means no limit.
	FetchTimeout time.Duration
	// WriteTimeout bounds each upsert; zero means no limit.
	WriteTimeout time.Duration
}

// OptionsFrom maps the sync settings onto pipeline options.
func OptionsFrom(cfg utils.SyncConfig) Options {
	return Options{
		ConversationConcurrency: cfg.ConversationConcurrency,
		MessageConcurrency:      cfg.MessageConcurrency,
		FetchTimeout:            cfg.FetchTimeout,
		WriteTimeout:            cfg.WriteTimeout,
	}
}

type Pipeline struct {
	store    Upserter
	messages MessageSource
	logger   *zap.Logger
	opts     Options
}

func New(store Upserter, messages MessageSource, logger *zap.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if messages == nil {
		messages = EmbeddedSource{}
	}
	if opts.ConversationConcurrency <= 0 {
		opts.ConversationConcurrency = DefaultConversationConcurrency
	}
	if opts.MessageConcurrency <= 0 {
		opts.MessageConcurrency = DefaultMessageConcurrency
	}

	return &Pipeline{
		store:    store,
		messages: messages,
		logger:   logger.Named("pipeline"),
		opts:     opts,
	}
}

// Ingest processes every conversation and returns once each subtree has been
// attempted. When ctx is cancelled no new unit starts; units not yet started
// are counted as skipped and writes already in flight run to completion.
func (p *Pipeline) Ingest(ctx context.Context, conversations []models.Payload) *Report {
	return p.IngestInto(ctx, NewReport(), conversations)
}

// IngestInto is Ingest recording into an existing report, so that failures
// observed before ingestion (such as listing errors) share one run.
func (p *Pipeline) IngestInto(ctx context.Context, rep *Report, conversations []models.Payload) *Report {
	var g errgroup.Group
	g.SetLimit(p.opts.ConversationConcurrency)

	for _, conv := range conversations {
		g.Go(func() error {
			p.ingestConversation(ctx, rep, conv)
			return nil
		})
	}
	_ = g.Wait()

	rep.Finish(ctx.Err() != nil)
	return rep
}

func (p *Pipeline) ingestConversation(ctx context.Context, rep *Report, raw models.Payload) {
	if ctx.Err() != nil {
		rep.skipped(models.EntityConversation)
		return
	}

	rec, err := normalize.Conversation(raw)
	if err != nil {
		// Without an id nothing below can be linked to it.
		p.logger.Warn("skipping malformed conversation", zap.Error(err))
		rep.failed(Failure{Entity: models.EntityConversation, Kind: FailureMalformed, Error: err.Error()})
		return
	}

	conversationID := rec.ID
	log := p.logger.With(zap.String("conversation_id", conversationID))

	if err := p.write(ctx, rec); err != nil {
		log.Warn("save conversation failed", zap.Error(err))
		rep.failed(Failure{
			Entity:         models.EntityConversation,
			Kind:           FailurePersistence,
			ConversationID: conversationID,
			RecordID:       conversationID,
			Error:          err.Error(),
		})
	} else {
		rep.saved(models.EntityConversation)
	}

	messages, err := p.fetchMessages(ctx, raw, conversationID)
	if err != nil {
		if ctx.Err() != nil {
			log.Debug("run cancelled before messages were fetched")
			return
		}
		log.Warn("fetch messages failed", zap.Error(err))
		rep.failed(Failure{
			Entity:         models.EntityMessage,
			Kind:           FailureFetch,
			ConversationID: conversationID,
			Error:          err.Error(),
		})
		messages = nil
	}

	var g errgroup.Group
	g.SetLimit(p.opts.MessageConcurrency)

	// seen is only touched by this goroutine, which does all the scheduling.
	// A sender without an id has no key and goes on to be reported malformed.
	seen := make(map[string]struct{})
	scheduleSender := func(sender models.Payload) {
		if key, ok := normalize.SenderKey(sender); ok {
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
		}

		g.Go(func() error {
			p.saveSender(ctx, rep, log, conversationID, sender)
			return nil
		})
	}

	// An assignee stub without an id is "unassigned", not a broken record.
	if assignee := normalize.Assignee(raw); normalize.IsSenderShaped(assignee) {
		scheduleSender(assignee)
	}
	for _, msg := range messages {
		g.Go(func() error {
			p.saveMessage(ctx, rep, log, conversationID, msg)
			return nil
		})
		if sender := normalize.MessageSender(msg); sender != nil {
			scheduleSender(sender)
		}
	}
	_ = g.Wait()
}

func (p *Pipeline) saveMessage(ctx context.Context, rep *Report, log *zap.Logger, conversationID string, raw models.Payload) {
	if ctx.Err() != nil {
		rep.skipped(models.EntityMessage)
		return
	}

	rec, err := normalize.Message(raw, conversationID)
	if err != nil {
		log.Warn("skipping malformed message", zap.Error(err))
		rep.failed(Failure{Entity: models.EntityMessage, Kind: FailureMalformed, ConversationID: conversationID, Error: err.Error()})
		return
	}

	if err := p.write(ctx, rec); err != nil {
		log.Warn("save message failed", zap.String("message_id", rec.ID), zap.Error(err))
		rep.failed(Failure{
			Entity:         models.EntityMessage,
			Kind:           FailurePersistence,
			ConversationID: conversationID,
			RecordID:       rec.ID,
			Error:          err.Error(),
		})
		return
	}
	rep.saved(models.EntityMessage)
}

func (p *Pipeline) saveSender(ctx context.Context, rep *Report, log *zap.Logger, conversationID string, raw models.Payload) {
	if ctx.Err() != nil {
		rep.skipped(models.EntitySender)
		return
	}

	rec, err := normalize.Sender(raw)
	if err != nil {
		log.Warn("skipping malformed sender", zap.Error(err))
		rep.failed(Failure{Entity: models.EntitySender, Kind: FailureMalformed, ConversationID: conversationID, Error: err.Error()})
		return
	}

	if err := p.write(ctx, rec); err != nil {
		log.Warn("save sender failed", zap.String("sender_id", rec.ID), zap.Error(err))
		rep.failed(Failure{
			Entity:         models.EntitySender,
			Kind:           FailurePersistence,
			ConversationID: conversationID,
			RecordID:       rec.ID,
			Error:          err.Error(),
		})
		return
	}
	rep.saved(models.EntitySender)
}

func (p *Pipeline) fetchMessages(ctx context.Context, raw models.Payload, conversationID string) ([]models.Payload, error) {
	if p.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.FetchTimeout)
		defer cancel()
	}
	return p.messages.Messages(ctx, raw, conversationID)
}

// write runs the upsert detached from ctx cancellation so a shutdown never
// abandons a statement halfway.
func (p *Pipeline) write(ctx context.Context, rec models.Record) error {
	if p.store == nil {
		return errors.New("pipeline: no store configured")
	}

	wctx := context.WithoutCancel(ctx)
	if p.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(wctx, p.opts.WriteTimeout)
		defer cancel()
	}
	return p.store.Upsert(wctx, rec)
}
