// Package service contains the application services: the webhook event
// reducer, the suggestion path, the full-thread ingestor, and the job
// engine that drives background executors.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dupbot/dupbot/domain/thread"
	"github.com/dupbot/dupbot/infrastructure/forge"
	"github.com/dupbot/dupbot/internal/metrics"
)

// Ingestor materializes complete threads from a forge into the store. It is
// the shared path behind webhook fallbacks, single-thread jobs, and
// repository backfills.
type Ingestor struct {
	store     thread.Store
	clients   map[thread.Source]forge.Client
	botLogins map[thread.Source]string
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(
	store thread.Store,
	clients map[thread.Source]forge.Client,
	botLogins map[thread.Source]string,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Ingestor {
	return &Ingestor{
		store:     store,
		clients:   clients,
		botLogins: botLogins,
		metrics:   m,
		logger:    logger,
	}
}

func (i *Ingestor) client(source thread.Source) (forge.Client, error) {
	client, ok := i.clients[source]
	if !ok {
		return nil, fmt.Errorf("no forge client for source %q", source)
	}
	return client, nil
}

// IngestThread fetches one thread with all its comments and indexes it.
// A thread the forge no longer knows is removed from the index instead;
// kind names the thread kind that tombstone should carry.
func (i *Ingestor) IngestThread(ctx context.Context, source thread.Source, repository string, kind thread.Kind, number int) error {
	client, err := i.client(source)
	if err != nil {
		return err
	}

	t, err := client.FetchThread(ctx, repository, number)
	if err != nil {
		if errors.Is(err, forge.ErrNotFound) {
			sourceID := thread.SourceID(source, repository, kind, number)
			i.logger.Info("thread gone upstream, removing from index",
				slog.String("source_id", sourceID))
			return i.store.DeleteThread(ctx, sourceID)
		}
		return fmt.Errorf("fetch thread %s/%s/%d: %w", source, repository, number, err)
	}

	return i.IndexThread(ctx, t)
}

// IndexThread upserts an already fetched thread and pages through its
// comments, skipping bot-authored ones so they never enter the canonical
// text.
func (i *Ingestor) IndexThread(ctx context.Context, t thread.Thread) error {
	client, err := i.client(t.Source())
	if err != nil {
		return err
	}
	botLogin := i.botLogins[t.Source()]

	if thread.IsBotAuthored(t.AuthorLogin(), t.Body(), botLogin) {
		i.logger.Debug("skipping bot-authored thread", slog.String("source_id", t.SourceID()))
		return nil
	}

	stored, err := i.store.UpsertThread(ctx, t)
	if err != nil {
		return fmt.Errorf("upsert thread %s: %w", t.SourceID(), err)
	}

	cursor := ""
	for {
		comments, next, err := client.ListComments(ctx, stored, cursor)
		if err != nil {
			return fmt.Errorf("list comments of %s: %w", stored.SourceID(), err)
		}
		for _, c := range comments {
			if thread.IsBotAuthored(c.AuthorLogin(), c.Body(), botLogin) {
				continue
			}
			if err := i.store.UpsertComment(ctx, stored.SourceID(), c); err != nil {
				return fmt.Errorf("upsert comment %s: %w", c.SourceID(), err)
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}

	i.metrics.ThreadIndexed()
	return nil
}
