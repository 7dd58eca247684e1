package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dupbot/dupbot/application/service"
	"github.com/dupbot/dupbot/domain/job"
	"github.com/dupbot/dupbot/domain/thread"
)

// regenerationBatchSize bounds how many threads one tick re-embeds.
const regenerationBatchSize = 25

// Regeneration executes the embeddings_regeneration singleton: it sweeps
// every stored thread in ID order and recomputes its embedding with the
// current model. Threads mutated by live ingestion while the sweep runs are
// re-embedded by that mutation anyway, so the two paths converge.
type Regeneration struct {
	store     thread.Store
	batchSize int
	logger    *slog.Logger
}

// NewRegeneration creates a Regeneration executor.
func NewRegeneration(store thread.Store, logger *slog.Logger) *Regeneration {
	return &Regeneration{store: store, batchSize: regenerationBatchSize, logger: logger}
}

// WithBatchSize overrides the per-tick batch size.
func (r *Regeneration) WithBatchSize(n int) *Regeneration {
	r.batchSize = n
	return r
}

var _ service.Executor = (*Regeneration)(nil)

// Tick implements service.Executor.
func (r *Regeneration) Tick(ctx context.Context, j job.Job) (job.Data, bool, error) {
	data := j.Data()

	threads, err := r.store.ThreadsAfter(ctx, data.AfterThreadID, r.batchSize)
	if err != nil {
		return data, false, fmt.Errorf("list threads after %d: %w", data.AfterThreadID, err)
	}
	if len(threads) == 0 {
		r.logger.Info("embeddings regeneration complete",
			slog.Int64("last_thread_id", data.AfterThreadID))
		return data, true, nil
	}

	for _, t := range threads {
		if err := r.store.RefreshEmbedding(ctx, t.SourceID()); err != nil {
			return data, false, fmt.Errorf("refresh embedding of %s: %w", t.SourceID(), err)
		}
		data.AfterThreadID = t.ID()
	}

	r.logger.Debug("regeneration batch done",
		slog.Int("threads", len(threads)),
		slog.Int64("cursor", data.AfterThreadID))
	return data, len(threads) < r.batchSize, nil
}
