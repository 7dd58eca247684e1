package service_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dupbot/dupbot/application/service"
	"github.com/dupbot/dupbot/domain/thread"
	"github.com/dupbot/dupbot/infrastructure/forge"
	"github.com/dupbot/dupbot/infrastructure/persistence"
	"github.com/dupbot/dupbot/infrastructure/provider"
	"github.com/dupbot/dupbot/infrastructure/slack"
)

type stubSummarizer struct {
	summary provider.Summary
	err     error
}

func (s stubSummarizer) Summarize(context.Context, string, string) (provider.Summary, error) {
	return s.summary, s.err
}

func seedThreads(t *testing.T, store *persistence.ThreadStore, titles ...string) []thread.Thread {
	t.Helper()
	ctx := context.Background()
	out := make([]thread.Thread, 0, len(titles))
	for i, title := range titles {
		stored, err := store.UpsertThread(ctx, githubThread(i+1, title, title+" body"))
		require.NoError(t, err)
		out = append(out, stored)
	}
	return out
}

func newSuggester(store *persistence.ThreadStore, github *fakeForge, slackClient *slack.Client, summarizer service.Summarizer, limit int, floor float64) *service.Suggester {
	clients := map[thread.Source]forge.Client{thread.SourceGitHub: github}
	return service.NewSuggester(store, clients, slackClient, summarizer,
		limit, floor, "Possibly related:\n", "\nPlease take a look.",
		testMetrics(), testLogger())
}

func TestSuggest_PostsReplyOnForge(t *testing.T) {
	store := newThreadStore(t)
	github := newFakeForge(thread.SourceGitHub)
	seedThreads(t, store, "crash on startup", "crash when idle")

	opened, err := store.UpsertThread(context.Background(), githubThread(9, "crash on shutdown", "boom"))
	require.NoError(t, err)

	s := newSuggester(store, github, nil, nil, 3, 0)
	require.NoError(t, s.Suggest(context.Background(), opened))

	require.Len(t, github.replies[9], 1)
	reply := github.replies[9][0]
	assert.Contains(t, reply, "Possibly related:")
	assert.Contains(t, reply, "crash on startup")
	assert.Contains(t, reply, "Please take a look.")
	assert.True(t, strings.HasSuffix(reply, thread.ReplyMarker))
	assert.NotContains(t, reply, "crash on shutdown ([#9]",
		"the opened thread must not suggest itself")
}

func TestSuggest_CapsReplyCount(t *testing.T) {
	store := newThreadStore(t)
	github := newFakeForge(thread.SourceGitHub)
	seedThreads(t, store, "crash a", "crash b", "crash c", "crash d", "crash e")

	opened, err := store.UpsertThread(context.Background(), githubThread(9, "crash f", "boom"))
	require.NoError(t, err)

	s := newSuggester(store, github, nil, nil, 3, 0)
	require.NoError(t, s.Suggest(context.Background(), opened))

	require.Len(t, github.replies[9], 1)
	assert.Equal(t, 3, strings.Count(github.replies[9][0], "\n- "),
		"reply carries at most three bullets")
}

func TestSuggest_ScoreFloorSuppressesReply(t *testing.T) {
	store := newThreadStore(t)
	github := newFakeForge(thread.SourceGitHub)
	seedThreads(t, store, "crash on startup")

	opened, err := store.UpsertThread(context.Background(), githubThread(9, "crash again", "boom"))
	require.NoError(t, err)

	// Cosine similarity never exceeds 1, so nothing clears this floor.
	s := newSuggester(store, github, nil, nil, 3, 1.5)
	require.NoError(t, s.Suggest(context.Background(), opened))
	assert.Empty(t, github.replies[9])
}

func TestSuggest_EmptyIndexPostsNothing(t *testing.T) {
	store := newThreadStore(t)
	github := newFakeForge(thread.SourceGitHub)

	opened, err := store.UpsertThread(context.Background(), githubThread(9, "first ever", "boom"))
	require.NoError(t, err)

	s := newSuggester(store, github, nil, nil, 3, 0)
	require.NoError(t, s.Suggest(context.Background(), opened))
	assert.Empty(t, github.replies[9])
}

func TestSuggest_FallsBackToSlack(t *testing.T) {
	store := newThreadStore(t)
	github := newFakeForge(thread.SourceGitHub)
	github.commentsEnabled = false
	seedThreads(t, store, "crash on startup")

	var captured map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	t.Cleanup(srv.Close)
	slackClient := slack.NewClient("tok", "#triage", srv.URL)

	opened, err := store.UpsertThread(context.Background(), githubThread(9, "crash again", "boom"))
	require.NoError(t, err)

	s := newSuggester(store, github, slackClient, nil, 3, 0)
	require.NoError(t, s.Suggest(context.Background(), opened))

	assert.Empty(t, github.replies[9])
	assert.Contains(t, captured["text"], "crash on startup")
}

func TestSuggest_IncludesSummary(t *testing.T) {
	store := newThreadStore(t)
	github := newFakeForge(thread.SourceGitHub)
	seedThreads(t, store, "crash on startup")

	opened, err := store.UpsertThread(context.Background(), githubThread(9, "crash again", "boom"))
	require.NoError(t, err)

	summarizer := stubSummarizer{summary: provider.Summary{
		Description: "A crash at startup.",
		Tags:        []string{"crash", "startup"},
	}}
	s := newSuggester(store, github, nil, summarizer, 3, 0)
	require.NoError(t, s.Suggest(context.Background(), opened))

	require.Len(t, github.replies[9], 1)
	assert.Contains(t, github.replies[9][0], "> A crash at startup.")
	assert.Contains(t, github.replies[9][0], "> Tags: crash, startup")
}

func TestSuggest_SummarizerFailureDegrades(t *testing.T) {
	store := newThreadStore(t)
	github := newFakeForge(thread.SourceGitHub)
	seedThreads(t, store, "crash on startup")

	opened, err := store.UpsertThread(context.Background(), githubThread(9, "crash again", "boom"))
	require.NoError(t, err)

	s := newSuggester(store, github, nil, stubSummarizer{err: assert.AnError}, 3, 0)
	require.NoError(t, s.Suggest(context.Background(), opened))

	require.Len(t, github.replies[9], 1)
	assert.Contains(t, github.replies[9][0], "Possibly related:")
	assert.NotContains(t, github.replies[9][0], "> ")
}
