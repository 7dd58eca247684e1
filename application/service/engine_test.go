package service_test

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dupbot/dupbot/application/service"
	"github.com/dupbot/dupbot/domain/job"
	"github.com/dupbot/dupbot/infrastructure/forge"
	"github.com/dupbot/dupbot/infrastructure/persistence"
	"github.com/dupbot/dupbot/internal/testdb"
)

type scriptedExecutor struct {
	ticks   int
	results []func(j job.Job) (job.Data, bool, error)
}

func (s *scriptedExecutor) Tick(_ context.Context, j job.Job) (job.Data, bool, error) {
	step := s.results[s.ticks]
	s.ticks++
	return step(j)
}

func newEngine(t *testing.T) (*service.Engine, *persistence.JobStore) {
	t.Helper()
	jobs := persistence.NewJobStore(testdb.New(t))
	// A short poll period keeps the transient-failure cooldowns in the
	// millisecond range.
	engine := service.NewEngine(jobs, testMetrics(), testLogger()).
		WithPollPeriod(time.Millisecond)
	return engine, jobs
}

func TestEngine_DrainsJobAcrossTicks(t *testing.T) {
	engine, jobs := newEngine(t)
	ctx := context.Background()

	ex := &scriptedExecutor{results: []func(j job.Job) (job.Data, bool, error){
		func(j job.Job) (job.Data, bool, error) {
			assert.Empty(t, j.Data().PageCursor)
			return job.Data{PageCursor: "2"}, false, nil
		},
		func(j job.Job) (job.Data, bool, error) {
			assert.Equal(t, "2", j.Data().PageCursor, "cursor persists between ticks")
			return job.Data{}, true, nil
		},
	}}
	engine.Register(job.TypeIssueIndexation, ex)

	_, created, err := jobs.Enqueue(ctx, job.New(job.TypeIssueIndexation, "acme/widgets", job.Data{}))
	require.NoError(t, err)
	require.True(t, created)

	claimed, err := engine.ProcessOne(ctx, job.TypeIssueIndexation)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = engine.ProcessOne(ctx, job.TypeIssueIndexation)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, 2, ex.ticks)

	count, err := jobs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "drained job is deleted")
}

func TestEngine_TransientFailureKeepsJobQueued(t *testing.T) {
	engine, jobs := newEngine(t)
	ctx := context.Background()

	ex := &scriptedExecutor{results: []func(j job.Job) (job.Data, bool, error){
		func(j job.Job) (job.Data, bool, error) { return j.Data(), false, assert.AnError },
		func(j job.Job) (job.Data, bool, error) { return j.Data(), true, nil },
	}}
	engine.Register(job.TypeThreadIngest, ex)

	_, _, err := jobs.Enqueue(ctx, job.New(job.TypeThreadIngest, "acme/widgets#7", job.Data{Number: 7}))
	require.NoError(t, err)

	claimed, err := engine.ProcessOne(ctx, job.TypeThreadIngest)
	require.NoError(t, err)
	assert.True(t, claimed)

	count, err := jobs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "transient failure leaves the job queued")

	claimed, err = engine.ProcessOne(ctx, job.TypeThreadIngest)
	require.NoError(t, err)
	assert.False(t, claimed, "the failed type cools down before the next claim")

	time.Sleep(10 * time.Millisecond)
	claimed, err = engine.ProcessOne(ctx, job.TypeThreadIngest)
	require.NoError(t, err)
	assert.True(t, claimed)
	count, err = jobs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEngine_TransientFailuresBackOffWithCap(t *testing.T) {
	engine, jobs := newEngine(t)
	engine.WithMaxBackoff(4 * time.Millisecond)
	ctx := context.Background()

	fail := func(j job.Job) (job.Data, bool, error) { return j.Data(), false, assert.AnError }
	ex := &scriptedExecutor{results: []func(j job.Job) (job.Data, bool, error){
		fail, fail, fail,
		func(j job.Job) (job.Data, bool, error) { return j.Data(), true, nil },
	}}
	engine.Register(job.TypeThreadIngest, ex)

	_, _, err := jobs.Enqueue(ctx, job.New(job.TypeThreadIngest, "acme/widgets#7", job.Data{}))
	require.NoError(t, err)

	// Failure 1: 2ms cooldown. Failure 2: 4ms. Failure 3 would double to
	// 8ms but is capped at 4ms, so a 6ms wait is always enough.
	for i := 0; i < 3; i++ {
		claimed, err := engine.ProcessOne(ctx, job.TypeThreadIngest)
		require.NoError(t, err)
		require.True(t, claimed, "attempt %d", i+1)

		claimed, err = engine.ProcessOne(ctx, job.TypeThreadIngest)
		require.NoError(t, err)
		assert.False(t, claimed, "cooldown after failure %d", i+1)

		time.Sleep(6 * time.Millisecond)
	}

	claimed, err := engine.ProcessOne(ctx, job.TypeThreadIngest)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, 4, ex.ticks)

	count, err := jobs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEngine_HTTPTimeoutKeepsJobQueued(t *testing.T) {
	engine, jobs := newEngine(t)
	ctx := context.Background()

	// The HTTP client surfaces request timeouts as a url.Error wrapping
	// context.DeadlineExceeded. One slow forge call must not kill a
	// repository backfill.
	ex := &scriptedExecutor{results: []func(j job.Job) (job.Data, bool, error){
		func(j job.Job) (job.Data, bool, error) {
			return j.Data(), false, fmt.Errorf("list threads of acme/widgets: %w",
				&url.Error{Op: "Get", URL: "https://api.github.com", Err: context.DeadlineExceeded})
		},
		func(j job.Job) (job.Data, bool, error) { return j.Data(), true, nil },
	}}
	engine.Register(job.TypeIssueIndexation, ex)

	_, _, err := jobs.Enqueue(ctx, job.New(job.TypeIssueIndexation, "acme/widgets", job.Data{}))
	require.NoError(t, err)

	claimed, err := engine.ProcessOne(ctx, job.TypeIssueIndexation)
	require.NoError(t, err)
	assert.True(t, claimed)

	reclaimed, ok, err := jobs.Claim(ctx, job.TypeIssueIndexation)
	require.NoError(t, err)
	require.True(t, ok, "backfill survives a single timeout")
	assert.Equal(t, "acme/widgets", reclaimed.Scope())

	time.Sleep(10 * time.Millisecond)
	_, err = engine.ProcessOne(ctx, job.TypeIssueIndexation)
	require.NoError(t, err)
	count, err := jobs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEngine_PermanentFailureDeletesJob(t *testing.T) {
	engine, jobs := newEngine(t)
	ctx := context.Background()

	ex := &scriptedExecutor{results: []func(j job.Job) (job.Data, bool, error){
		func(j job.Job) (job.Data, bool, error) {
			return j.Data(), false, &forge.PermanentError{StatusCode: 422, Message: "poisoned"}
		},
	}}
	engine.Register(job.TypeThreadIngest, ex)

	_, _, err := jobs.Enqueue(ctx, job.New(job.TypeThreadIngest, "acme/widgets#7", job.Data{Number: 7}))
	require.NoError(t, err)

	claimed, err := engine.ProcessOne(ctx, job.TypeThreadIngest)
	require.NoError(t, err)
	assert.True(t, claimed)

	count, err := jobs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "a poisoned job must not wedge the queue")
}

func TestEngine_PanicIsPermanent(t *testing.T) {
	engine, jobs := newEngine(t)
	ctx := context.Background()

	ex := &scriptedExecutor{results: []func(j job.Job) (job.Data, bool, error){
		func(job.Job) (job.Data, bool, error) { panic("boom") },
	}}
	engine.Register(job.TypeThreadIngest, ex)

	_, _, err := jobs.Enqueue(ctx, job.New(job.TypeThreadIngest, "acme/widgets#7", job.Data{}))
	require.NoError(t, err)

	claimed, err := engine.ProcessOne(ctx, job.TypeThreadIngest)
	require.NoError(t, err)
	assert.True(t, claimed)

	count, err := jobs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEngine_NoJobNoClaim(t *testing.T) {
	engine, _ := newEngine(t)
	engine.Register(job.TypeThreadIngest, &scriptedExecutor{})

	claimed, err := engine.ProcessOne(context.Background(), job.TypeThreadIngest)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestEngine_UnregisteredTypeErrors(t *testing.T) {
	engine, _ := newEngine(t)
	_, err := engine.ProcessOne(context.Background(), job.TypeEmbeddingsRegeneration)
	assert.Error(t, err)
}
