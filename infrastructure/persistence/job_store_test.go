package persistence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dupbot/dupbot/domain/job"
	"github.com/dupbot/dupbot/infrastructure/persistence"
	"github.com/dupbot/dupbot/internal/database"
	"github.com/dupbot/dupbot/internal/testdb"
)

func TestEnqueue_DedupPerRepository(t *testing.T) {
	store := persistence.NewJobStore(testdb.New(t))
	ctx := context.Background()

	first, created, err := store.Enqueue(ctx,
		job.New(job.TypeIssueIndexation, job.IndexationScope("o/r"), job.Data{Source: "github"}))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID())

	second, created, err := store.Enqueue(ctx,
		job.New(job.TypeIssueIndexation, job.IndexationScope("o/r"), job.Data{Source: "github"}))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID(), second.ID())

	// A different repository gets its own job.
	other, created, err := store.Enqueue(ctx,
		job.New(job.TypeIssueIndexation, job.IndexationScope("o/other"), job.Data{Source: "github"}))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID(), other.ID())
}

func TestEnqueue_RegenerationSingleton(t *testing.T) {
	store := persistence.NewJobStore(testdb.New(t))
	ctx := context.Background()

	first, created, err := store.Enqueue(ctx,
		job.New(job.TypeEmbeddingsRegeneration, job.RegenerationScope(), job.Data{}))
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := store.Enqueue(ctx,
		job.New(job.TypeEmbeddingsRegeneration, job.RegenerationScope(), job.Data{}))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID(), second.ID())

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClaim_OldestFirstAndLifecycle(t *testing.T) {
	store := persistence.NewJobStore(testdb.New(t))
	ctx := context.Background()

	_, ok, err := store.Claim(ctx, job.TypeIssueIndexation)
	require.NoError(t, err)
	assert.False(t, ok)

	first, _, err := store.Enqueue(ctx,
		job.New(job.TypeIssueIndexation, "o/a", job.Data{Source: "github"}))
	require.NoError(t, err)
	_, _, err = store.Enqueue(ctx,
		job.New(job.TypeIssueIndexation, "o/b", job.Data{Source: "github"}))
	require.NoError(t, err)

	claimed, ok, err := store.Claim(ctx, job.TypeIssueIndexation)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID(), claimed.ID())

	require.NoError(t, store.UpdateData(ctx, claimed.ID(), job.Data{PageCursor: "2", Source: "github"}))
	reclaimed, ok, err := store.Claim(ctx, job.TypeIssueIndexation)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", reclaimed.Data().PageCursor)

	require.NoError(t, store.Delete(ctx, claimed.ID()))
	next, ok, err := store.Claim(ctx, job.TypeIssueIndexation)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "o/b", next.Scope())
}

func TestClaim_RepeatedClaimReturnsSameJob(t *testing.T) {
	store := persistence.NewJobStore(testdb.New(t))
	ctx := context.Background()

	queued, _, err := store.Enqueue(ctx,
		job.New(job.TypeThreadIngest, "o/a#7", job.Data{Number: 7}))
	require.NoError(t, err)

	// A claim holds its row lock only for the selecting transaction; the
	// job stays queued until the engine deletes it, so back-to-back claims
	// see the same row.
	for i := 0; i < 2; i++ {
		claimed, ok, err := store.Claim(ctx, job.TypeThreadIngest)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, queued.ID(), claimed.ID())
	}
}

func TestUpdateData_UnknownJob(t *testing.T) {
	store := persistence.NewJobStore(testdb.New(t))
	err := store.UpdateData(context.Background(), 999, job.Data{})
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestClaim_TypesAreIndependent(t *testing.T) {
	store := persistence.NewJobStore(testdb.New(t))
	ctx := context.Background()

	_, _, err := store.Enqueue(ctx,
		job.New(job.TypeEmbeddingsRegeneration, job.RegenerationScope(), job.Data{}))
	require.NoError(t, err)

	_, ok, err := store.Claim(ctx, job.TypeIssueIndexation)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.Claim(ctx, job.TypeEmbeddingsRegeneration)
	require.NoError(t, err)
	assert.True(t, ok)
}
