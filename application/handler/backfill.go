// Package handler contains the job executors driven by the engine: the
// repository backfill, single-thread ingestion, and the embeddings
// regeneration sweep.
package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dupbot/dupbot/application/service"
	"github.com/dupbot/dupbot/domain/job"
	"github.com/dupbot/dupbot/domain/thread"
	"github.com/dupbot/dupbot/infrastructure/forge"
)

// Backfill executes issue_indexation jobs: it walks every thread of one
// repository, one forge listing page per tick, and indexes each thread with
// all its comments. The page cursor is persisted after every tick so a
// restart resumes where it stopped, and live webhook events interleave
// safely because everything goes through the same UPSERT path.
type Backfill struct {
	ingestor *service.Ingestor
	clients  map[thread.Source]forge.Client
	logger   *slog.Logger
}

// NewBackfill creates a Backfill executor.
func NewBackfill(ingestor *service.Ingestor, clients map[thread.Source]forge.Client, logger *slog.Logger) *Backfill {
	return &Backfill{ingestor: ingestor, clients: clients, logger: logger}
}

var _ service.Executor = (*Backfill)(nil)

// Tick implements service.Executor.
func (b *Backfill) Tick(ctx context.Context, j job.Job) (job.Data, bool, error) {
	data := j.Data()
	source := thread.Source(data.Source)
	repository := j.Scope()

	client, ok := b.clients[source]
	if !ok {
		return data, false, &forge.PermanentError{Message: fmt.Sprintf("no forge client for source %q", source)}
	}

	threads, next, err := client.ListThreads(ctx, repository, data.PageCursor)
	if err != nil {
		return data, false, fmt.Errorf("list threads of %s: %w", repository, err)
	}

	for _, t := range threads {
		if err := b.ingestor.IndexThread(ctx, t); err != nil {
			return data, false, err
		}
	}

	b.logger.Info("backfill page indexed",
		slog.String("repository", repository),
		slog.String("source", string(source)),
		slog.Int("threads", len(threads)),
		slog.String("next_cursor", next))

	data.PageCursor = next
	return data, next == "", nil
}
