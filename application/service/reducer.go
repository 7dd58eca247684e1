package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dupbot/dupbot/domain/job"
	"github.com/dupbot/dupbot/domain/thread"
	"github.com/dupbot/dupbot/infrastructure/forge"
	"github.com/dupbot/dupbot/internal/database"
	"github.com/dupbot/dupbot/internal/metrics"
)

// Outcome is the reducer's verdict on one webhook event.
type Outcome int

// Outcome values.
const (
	// OutcomeApplied means the mutation was committed inline.
	OutcomeApplied Outcome = iota
	// OutcomeQueued means the work was deferred to a background job.
	OutcomeQueued
	// OutcomeIgnored means the event carried no indexing consequence.
	OutcomeIgnored
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeQueued:
		return "queued"
	default:
		return "ignored"
	}
}

// Reducer applies webhook events to the store. Replayed deliveries collapse
// into UPSERTs, events about unknown threads fall back to a full fetch from
// the forge, and work that cannot finish before the caller's deadline is
// deferred to a thread_ingest job.
type Reducer struct {
	store     thread.Store
	jobs      job.Store
	ingestor  *Ingestor
	suggester *Suggester
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewReducer creates a Reducer. suggester may be nil to disable the
// suggestion path.
func NewReducer(
	store thread.Store,
	jobs job.Store,
	ingestor *Ingestor,
	suggester *Suggester,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Reducer {
	return &Reducer{
		store:     store,
		jobs:      jobs,
		ingestor:  ingestor,
		suggester: suggester,
		metrics:   m,
		logger:    logger,
	}
}

// Apply processes one event. Store failures return an error; upstream
// failures are either deferred to a job (transient) or dropped (permanent)
// so a poisoned event never blocks the pipeline.
func (r *Reducer) Apply(ctx context.Context, ev thread.Event) (Outcome, error) {
	switch e := ev.(type) {
	case thread.Opened:
		return r.applyOpened(ctx, e)
	case thread.Edited:
		return r.applyEdited(ctx, e)
	case thread.Deleted:
		if err := r.store.DeleteThread(ctx, e.SourceID); err != nil {
			return OutcomeIgnored, err
		}
		return OutcomeApplied, nil
	case thread.CommentCreated:
		return r.applyCommentCreated(ctx, e)
	case thread.CommentEdited:
		return r.applyCommentEdited(ctx, e)
	case thread.CommentDeleted:
		if err := r.store.DeleteComment(ctx, e.SourceID); err != nil {
			return OutcomeIgnored, err
		}
		return OutcomeApplied, nil
	default:
		return OutcomeIgnored, fmt.Errorf("unhandled event %q", ev.EventName())
	}
}

func (r *Reducer) applyOpened(ctx context.Context, e thread.Opened) (Outcome, error) {
	if e.AuthorIsBot {
		r.logger.Debug("dropping bot-authored thread", slog.String("source_id", e.Thread.SourceID()))
		return OutcomeIgnored, nil
	}

	stored, err := r.store.UpsertThread(ctx, e.Thread)
	if err != nil {
		return OutcomeIgnored, err
	}
	r.metrics.ThreadIndexed()

	// Best-effort: the thread is indexed, a failed suggestion must not fail
	// the webhook.
	if r.suggester != nil {
		if err := r.suggester.Suggest(ctx, stored); err != nil {
			r.logger.Error("suggestion failed",
				slog.String("source_id", stored.SourceID()),
				slog.String("error", err.Error()))
		}
	}
	return OutcomeApplied, nil
}

func (r *Reducer) applyEdited(ctx context.Context, e thread.Edited) (Outcome, error) {
	current, err := r.store.BySourceID(ctx, e.SourceID)
	if errors.Is(err, database.ErrNotFound) {
		// An edit for a thread that was never indexed: treat it as a late
		// discovery and ingest the whole thread.
		return r.ingestBySourceID(ctx, e.SourceID)
	}
	if err != nil {
		return OutcomeIgnored, err
	}

	if _, err := r.store.UpsertThread(ctx, current.Edited(e.Title, e.Body)); err != nil {
		return OutcomeIgnored, err
	}
	return OutcomeApplied, nil
}

func (r *Reducer) applyCommentCreated(ctx context.Context, e thread.CommentCreated) (Outcome, error) {
	if e.AuthorIsBot {
		r.logger.Debug("dropping bot-authored comment", slog.String("source_id", e.Comment.SourceID()))
		return OutcomeIgnored, nil
	}

	err := r.store.UpsertComment(ctx, e.ParentSourceID, e.Comment)
	if errors.Is(err, database.ErrNotFound) {
		return r.ingestBySourceID(ctx, e.ParentSourceID)
	}
	if err != nil {
		return OutcomeIgnored, err
	}
	return OutcomeApplied, nil
}

func (r *Reducer) applyCommentEdited(ctx context.Context, e thread.CommentEdited) (Outcome, error) {
	if e.AuthorIsBot {
		return OutcomeIgnored, nil
	}

	err := r.store.UpsertComment(ctx, e.ParentSourceID, thread.NewComment(e.SourceID, e.NewBody))
	if errors.Is(err, database.ErrNotFound) {
		return r.ingestBySourceID(ctx, e.ParentSourceID)
	}
	if err != nil {
		return OutcomeIgnored, err
	}
	return OutcomeApplied, nil
}

// ingestBySourceID runs a full-thread ingestion inline. When the forge is
// slow or flaky it defers to a thread_ingest job instead, so the webhook can
// still be acknowledged within its deadline.
func (r *Reducer) ingestBySourceID(ctx context.Context, sourceID string) (Outcome, error) {
	source, repository, kind, number, err := thread.ParseSourceID(sourceID)
	if err != nil {
		r.logger.Error("dropping event with malformed source id",
			slog.String("source_id", sourceID), slog.String("error", err.Error()))
		return OutcomeIgnored, nil
	}

	err = r.ingestor.IngestThread(ctx, source, repository, kind, number)
	if err == nil {
		return OutcomeApplied, nil
	}
	if forge.IsRetryable(err) {
		return r.enqueueIngest(ctx, source, repository, kind, number)
	}

	r.logger.Error("dropping event after permanent ingest failure",
		slog.String("source_id", sourceID), slog.String("error", err.Error()))
	return OutcomeIgnored, nil
}

func (r *Reducer) enqueueIngest(ctx context.Context, source thread.Source, repository string, kind thread.Kind, number int) (Outcome, error) {
	j := job.New(job.TypeThreadIngest, job.ThreadIngestScope(repository, number), job.Data{
		Source: string(source),
		Kind:   string(kind),
		Number: number,
	})
	// The enqueue must not inherit an exhausted webhook deadline.
	if _, _, err := r.jobs.Enqueue(context.WithoutCancel(ctx), j); err != nil {
		return OutcomeIgnored, fmt.Errorf("enqueue thread ingest: %w", err)
	}
	return OutcomeQueued, nil
}
