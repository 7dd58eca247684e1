package handler

import (
	"context"
	"strings"

	"github.com/dupbot/dupbot/application/service"
	"github.com/dupbot/dupbot/domain/job"
	"github.com/dupbot/dupbot/domain/thread"
)

// ThreadIngest executes thread_ingest jobs: the deferred form of the
// webhook fallback, fetching one thread with all its comments. A single
// tick drains the job.
type ThreadIngest struct {
	ingestor *service.Ingestor
}

// NewThreadIngest creates a ThreadIngest executor.
func NewThreadIngest(ingestor *service.Ingestor) *ThreadIngest {
	return &ThreadIngest{ingestor: ingestor}
}

var _ service.Executor = (*ThreadIngest)(nil)

// Tick implements service.Executor.
func (t *ThreadIngest) Tick(ctx context.Context, j job.Job) (job.Data, bool, error) {
	data := j.Data()

	kind := thread.Kind(data.Kind)
	if kind == "" {
		kind = thread.KindIssue
	}

	err := t.ingestor.IngestThread(ctx,
		thread.Source(data.Source), repositoryOfScope(j.Scope()), kind, data.Number)
	return data, err == nil, err
}

// repositoryOfScope recovers the repository from a "repository#number"
// dedup scope.
func repositoryOfScope(scope string) string {
	if idx := strings.LastIndex(scope, "#"); idx >= 0 {
		return scope[:idx]
	}
	return scope
}
