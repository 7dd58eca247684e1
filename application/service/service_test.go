package service_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"testing"

	"github.com/dupbot/dupbot/domain/thread"
	"github.com/dupbot/dupbot/infrastructure/forge"
	"github.com/dupbot/dupbot/infrastructure/persistence"
	"github.com/dupbot/dupbot/internal/config"
	"github.com/dupbot/dupbot/internal/log"
	"github.com/dupbot/dupbot/internal/metrics"
	"github.com/dupbot/dupbot/internal/testdb"
)

const testBotLogin = "dupbot[bot]"

// stubEmbedder mirrors the deterministic embedder the persistence tests
// use: similar text embeds to similar vectors.
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for i, r := range text {
		vec[i%8] += float32(r) / 1000
	}
	return vec, nil
}

func (stubEmbedder) Dimension() int { return 8 }

// fakeForge is an in-memory forge.Client with scripted failures.
type fakeForge struct {
	source          thread.Source
	threads         map[int]thread.Thread
	comments        map[int][]thread.Comment
	replies         map[int][]string
	commentsEnabled bool
	pageSize        int
	fetchErr        error
}

func newFakeForge(source thread.Source) *fakeForge {
	return &fakeForge{
		source:          source,
		threads:         map[int]thread.Thread{},
		comments:        map[int][]thread.Comment{},
		replies:         map[int][]string{},
		commentsEnabled: true,
		pageSize:        100,
	}
}

func (f *fakeForge) addThread(t thread.Thread, comments ...thread.Comment) {
	f.threads[t.Number()] = t
	f.comments[t.Number()] = comments
}

func (f *fakeForge) Source() thread.Source { return f.source }

func (f *fakeForge) CommentsEnabled() bool { return f.commentsEnabled }

func (f *fakeForge) FetchThread(_ context.Context, _ string, number int) (thread.Thread, error) {
	if f.fetchErr != nil {
		return thread.Thread{}, f.fetchErr
	}
	t, ok := f.threads[number]
	if !ok {
		return thread.Thread{}, fmt.Errorf("%w: %d", forge.ErrNotFound, number)
	}
	return t, nil
}

func (f *fakeForge) ListThreads(_ context.Context, _ string, cursor string) ([]thread.Thread, string, error) {
	if f.fetchErr != nil {
		return nil, "", f.fetchErr
	}
	numbers := make([]int, 0, len(f.threads))
	for n := range f.threads {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	end := start + f.pageSize
	if end > len(numbers) {
		end = len(numbers)
	}

	page := make([]thread.Thread, 0, end-start)
	for _, n := range numbers[start:end] {
		page = append(page, f.threads[n])
	}
	next := ""
	if end < len(numbers) {
		next = strconv.Itoa(end)
	}
	return page, next, nil
}

func (f *fakeForge) ListComments(_ context.Context, t thread.Thread, _ string) ([]thread.Comment, string, error) {
	return f.comments[t.Number()], "", nil
}

func (f *fakeForge) PostReply(_ context.Context, t thread.Thread, text string) error {
	f.replies[t.Number()] = append(f.replies[t.Number()], text)
	return nil
}

var _ forge.Client = (*fakeForge)(nil)

func newThreadStore(t *testing.T) *persistence.ThreadStore {
	t.Helper()
	return persistence.NewThreadStore(testdb.New(t), stubEmbedder{})
}

func testLogger() *slog.Logger {
	return log.NewLoggerWithWriter(io.Discard, config.LogFormatJSON, "error").Slog()
}

func testMetrics() *metrics.Metrics {
	return metrics.New()
}

func githubThread(n int, title, body string) thread.Thread {
	return thread.New(thread.SourceGitHub, "acme/widgets", thread.KindIssue, n, title, body,
		thread.WithURLs(fmt.Sprintf("https://github.test/acme/widgets/issues/%d", n), ""),
		thread.WithAuthorLogin("alice"),
	)
}

func githubComment(id, body string) thread.Comment {
	return thread.NewComment(
		thread.CommentSourceID(thread.SourceGitHub, "acme/widgets", id), body,
		thread.CommentWithAuthorLogin("carol"),
	)
}
