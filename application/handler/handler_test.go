package handler_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dupbot/dupbot/application/handler"
	"github.com/dupbot/dupbot/application/service"
	"github.com/dupbot/dupbot/domain/job"
	"github.com/dupbot/dupbot/domain/thread"
	"github.com/dupbot/dupbot/infrastructure/forge"
	"github.com/dupbot/dupbot/infrastructure/persistence"
	"github.com/dupbot/dupbot/internal/config"
	"github.com/dupbot/dupbot/internal/log"
	"github.com/dupbot/dupbot/internal/metrics"
	"github.com/dupbot/dupbot/internal/testdb"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for i, r := range text {
		vec[i%8] += float32(r) / 1000
	}
	return vec, nil
}

func (stubEmbedder) Dimension() int { return 8 }

// pagedForge serves scripted threads one page at a time.
type pagedForge struct {
	threads  map[int]thread.Thread
	comments map[int][]thread.Comment
	pageSize int
}

func (p *pagedForge) Source() thread.Source { return thread.SourceGitHub }
func (p *pagedForge) CommentsEnabled() bool { return true }

func (p *pagedForge) FetchThread(_ context.Context, _ string, number int) (thread.Thread, error) {
	t, ok := p.threads[number]
	if !ok {
		return thread.Thread{}, fmt.Errorf("%w: %d", forge.ErrNotFound, number)
	}
	return t, nil
}

func (p *pagedForge) ListThreads(_ context.Context, _ string, cursor string) ([]thread.Thread, string, error) {
	numbers := make([]int, 0, len(p.threads))
	for n := range p.threads {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	end := start + p.pageSize
	if end > len(numbers) {
		end = len(numbers)
	}

	page := make([]thread.Thread, 0, end-start)
	for _, n := range numbers[start:end] {
		page = append(page, p.threads[n])
	}
	next := ""
	if end < len(numbers) {
		next = strconv.Itoa(end)
	}
	return page, next, nil
}

func (p *pagedForge) ListComments(_ context.Context, t thread.Thread, _ string) ([]thread.Comment, string, error) {
	return p.comments[t.Number()], "", nil
}

func (p *pagedForge) PostReply(context.Context, thread.Thread, string) error { return nil }

var _ forge.Client = (*pagedForge)(nil)

func testLogger() *slog.Logger {
	return log.NewLoggerWithWriter(io.Discard, config.LogFormatJSON, "error").Slog()
}

func ghThread(n int, title string) thread.Thread {
	return thread.New(thread.SourceGitHub, "acme/widgets", thread.KindIssue, n, title, title+" body")
}

type fixture struct {
	store    *persistence.ThreadStore
	forge    *pagedForge
	ingestor *service.Ingestor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := persistence.NewThreadStore(testdb.New(t), stubEmbedder{})
	f := &pagedForge{
		threads:  map[int]thread.Thread{},
		comments: map[int][]thread.Comment{},
		pageSize: 2,
	}
	clients := map[thread.Source]forge.Client{thread.SourceGitHub: f}
	botLogins := map[thread.Source]string{thread.SourceGitHub: "dupbot[bot]"}
	ingestor := service.NewIngestor(store, clients, botLogins, metrics.New(), testLogger())
	return &fixture{store: store, forge: f, ingestor: ingestor}
}

func TestBackfill_WalksAllPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for n := 1; n <= 5; n++ {
		f.forge.threads[n] = ghThread(n, fmt.Sprintf("issue %d", n))
	}
	f.forge.comments[1] = []thread.Comment{
		thread.NewComment(thread.CommentSourceID(thread.SourceGitHub, "acme/widgets", "900"), "me too"),
	}

	backfill := handler.NewBackfill(f.ingestor,
		map[thread.Source]forge.Client{thread.SourceGitHub: f.forge}, testLogger())
	j := job.New(job.TypeIssueIndexation, "acme/widgets", job.Data{Source: "github"})

	data := j.Data()
	ticks := 0
	for {
		var done bool
		var err error
		data, done, err = backfill.Tick(ctx, j.WithData(data))
		require.NoError(t, err)
		ticks++
		if done {
			break
		}
	}
	assert.Equal(t, 3, ticks, "five threads at page size two take three pages")

	for n := 1; n <= 5; n++ {
		stored, err := f.store.BySourceID(ctx, fmt.Sprintf("github/acme/widgets/issue/%d", n))
		require.NoError(t, err)
		assert.NotEmpty(t, stored.Embedding())
	}

	one, err := f.store.BySourceID(ctx, "github/acme/widgets/issue/1")
	require.NoError(t, err)
	comments, err := f.store.Comments(ctx, one.ID())
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}

func TestBackfill_SkipsBotThreads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.forge.threads[1] = thread.New(thread.SourceGitHub, "acme/widgets", thread.KindIssue, 1,
		"bot noise", "x", thread.WithAuthorLogin("dupbot[bot]"))
	f.forge.threads[2] = ghThread(2, "real issue")

	backfill := handler.NewBackfill(f.ingestor,
		map[thread.Source]forge.Client{thread.SourceGitHub: f.forge}, testLogger())
	j := job.New(job.TypeIssueIndexation, "acme/widgets", job.Data{Source: "github"})

	_, done, err := backfill.Tick(ctx, j)
	require.NoError(t, err)
	assert.True(t, done)

	_, err = f.store.BySourceID(ctx, "github/acme/widgets/issue/1")
	assert.Error(t, err)
	_, err = f.store.BySourceID(ctx, "github/acme/widgets/issue/2")
	assert.NoError(t, err)
}

func TestThreadIngest_IndexesOneThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.forge.threads[7] = ghThread(7, "crash")

	ingest := handler.NewThreadIngest(f.ingestor)
	j := job.New(job.TypeThreadIngest, job.ThreadIngestScope("acme/widgets", 7),
		job.Data{Source: "github", Kind: "issue", Number: 7})

	_, done, err := ingest.Tick(ctx, j)
	require.NoError(t, err)
	assert.True(t, done)

	_, err = f.store.BySourceID(ctx, "github/acme/widgets/issue/7")
	assert.NoError(t, err)
}

func TestThreadIngest_GoneThreadDrainsJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.UpsertThread(ctx, ghThread(7, "stale"))
	require.NoError(t, err)

	ingest := handler.NewThreadIngest(f.ingestor)
	j := job.New(job.TypeThreadIngest, job.ThreadIngestScope("acme/widgets", 7),
		job.Data{Source: "github", Kind: "issue", Number: 7})

	_, done, err := ingest.Tick(ctx, j)
	require.NoError(t, err)
	assert.True(t, done)

	_, err = f.store.BySourceID(ctx, "github/acme/widgets/issue/7")
	assert.Error(t, err, "thread gone upstream is removed from the index")
}

func TestRegeneration_SweepsInBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for n := 1; n <= 3; n++ {
		_, err := f.store.UpsertThread(ctx, ghThread(n, fmt.Sprintf("issue %d", n)))
		require.NoError(t, err)
	}

	regen := handler.NewRegeneration(f.store, testLogger()).WithBatchSize(2)
	j := job.New(job.TypeEmbeddingsRegeneration, job.RegenerationScope(), job.Data{})

	data, done, err := regen.Tick(ctx, j)
	require.NoError(t, err)
	assert.False(t, done)
	assert.NotZero(t, data.AfterThreadID)

	data, done, err = regen.Tick(ctx, j.WithData(data))
	require.NoError(t, err)
	assert.True(t, done, "a short batch ends the sweep")
	_ = data
}

func TestRegeneration_EmptyIndexCompletesImmediately(t *testing.T) {
	f := newFixture(t)

	regen := handler.NewRegeneration(f.store, testLogger())
	j := job.New(job.TypeEmbeddingsRegeneration, job.RegenerationScope(), job.Data{})

	_, done, err := regen.Tick(context.Background(), j)
	require.NoError(t, err)
	assert.True(t, done)
}
