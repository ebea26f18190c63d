package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wuwenbin0122/convo-sync/internal/metrics"
	"github.com/wuwenbin0122/convo-sync/internal/models"
)

type FailureKind string

const (
	FailureMalformed   FailureKind = "malformed"
	FailurePersistence FailureKind = "persistence"
	FailureFetch       FailureKind = "fetch"
)

// Run statuses, also used as the runs_total label.
const (
	StatusSuccess   = "success"
	StatusPartial   = "partial"
	StatusCancelled = "cancelled"
)

// Failure is one unit of work that did not complete.
type Failure struct {
	Entity         models.Entity `json:"entity"`
	Kind           FailureKind   `json:"kind"`
	ConversationID string        `json:"conversation_id,omitempty"`
	RecordID       string        `json:"record_id,omitempty"`
	Error          string        `json:"error"`
}

// Counts tallies one entity. Attempted is Saved plus Failed; Skipped units
// were never started because the run was cancelled.
type Counts struct {
	Attempted int `json:"attempted"`
	Saved     int `json:"saved"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Report is the structured result of one Ingest call. It is safe for
// concurrent updates while the run is in flight and read-only afterwards.
type Report struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Cancelled     bool      `json:"cancelled"`
	Conversations Counts    `json:"conversations"`
	Messages      Counts    `json:"messages"`
	Senders       Counts    `json:"senders"`
	FetchFailures int       `json:"fetch_failures"`
	Failures      []Failure `json:"failures"`

	mu sync.Mutex
}

// NewReport starts an empty report stamped with a fresh run ID.
func NewReport() *Report {
	return &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Failures:  []Failure{},
	}
}

func (r *Report) counts(entity models.Entity) *Counts {
	switch entity {
	case models.EntityConversation:
		return &r.Conversations
	case models.EntityMessage:
		return &r.Messages
	default:
		return &r.Senders
	}
}

func (r *Report) saved(entity models.Entity) {
	r.mu.Lock()
	c := r.counts(entity)
	c.Attempted++
	c.Saved++
	r.mu.Unlock()

	metrics.RecordsTotal.WithLabelValues(string(entity), metrics.OutcomeSaved).Inc()
}

func (r *Report) failed(f Failure) {
	r.mu.Lock()
	if f.Kind == FailureFetch {
		r.FetchFailures++
	} else {
		c := r.counts(f.Entity)
		c.Attempted++
		c.Failed++
	}
	r.Failures = append(r.Failures, f)
	r.mu.Unlock()

	if f.Kind != FailureFetch {
		metrics.RecordsTotal.WithLabelValues(string(f.Entity), metrics.OutcomeFailed).Inc()
	}
}

func (r *Report) skipped(entity models.Entity) {
	r.mu.Lock()
	r.counts(entity).Skipped++
	r.mu.Unlock()

	metrics.RecordsTotal.WithLabelValues(string(entity), metrics.OutcomeSkipped).Inc()
}

// Finish stamps the end of the run.
func (r *Report) Finish(cancelled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.FinishedAt = time.Now().UTC()
	r.Cancelled = r.Cancelled || cancelled
}

// AddFetchFailure records a failed upstream call made outside Ingest, such as
// the conversation listing.
func (r *Report) AddFetchFailure(conversationID string, err error) {
	r.failed(Failure{
		Entity:         models.EntityConversation,
		Kind:           FailureFetch,
		ConversationID: conversationID,
		Error:          err.Error(),
	})
}

func (r *Report) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// HasFailures reports whether any unit failed, including fetches.
func (r *Report) HasFailures() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.Failures) > 0
}

func (r *Report) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.Cancelled:
		return StatusCancelled
	case len(r.Failures) > 0:
		return StatusPartial
	default:
		return StatusSuccess
	}
}

// Snapshot returns a copy that is safe to read or encode while the original
// is still being updated.
func (r *Report) Snapshot() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	return &Report{
		RunID:         r.RunID,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		Cancelled:     r.Cancelled,
		Conversations: r.Conversations,
		Messages:      r.Messages,
		Senders:       r.Senders,
		FetchFailures: r.FetchFailures,
		Failures:      append([]Failure{}, r.Failures...),
	}
}
