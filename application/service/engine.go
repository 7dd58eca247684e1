package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dupbot/dupbot/domain/job"
	"github.com/dupbot/dupbot/infrastructure/forge"
	"github.com/dupbot/dupbot/infrastructure/provider"
	"github.com/dupbot/dupbot/internal/metrics"
)

var errExecutorPanic = errors.New("executor panicked")

// retryableTick classifies a tick error. Forge and provider failures carry
// their own taxonomies; a panic is always final.
func retryableTick(err error) bool {
	if errors.Is(err, errExecutorPanic) {
		return false
	}
	var provErr *provider.ProviderError
	if errors.As(err, &provErr) {
		code := provErr.StatusCode()
		return code == 0 || code == http.StatusTooManyRequests || code >= 500
	}
	return forge.IsRetryable(err)
}

// Executor performs one bounded slice of a job. The returned data is the
// cursor to persist; done reports that the job is drained. A returned error
// leaves the job queued when transient, and fails the job when permanent.
type Executor interface {
	Tick(ctx context.Context, j job.Job) (job.Data, bool, error)
}

// Engine drives background jobs: it claims the oldest job of each
// registered type, runs one executor tick, persists the cursor, and deletes
// drained jobs. Webhook handlers hold an open HTTP request, so the engine
// paces itself with a poll period instead of spinning on the pool. Transient
// tick failures put the job type on a cooldown that doubles per consecutive
// failure up to maxBackoff, so a flapping upstream is not hammered once a
// second.
type Engine struct {
	jobs       job.Store
	executors  map[job.Type]Executor
	metrics    *metrics.Metrics
	logger     *slog.Logger
	pollPeriod time.Duration
	maxBackoff time.Duration

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	cooldowns map[job.Type]cooldown
}

// cooldown delays the next claim of a job type after a transient failure.
type cooldown struct {
	delay time.Duration
	until time.Time
}

// NewEngine creates an Engine.
func NewEngine(jobs job.Store, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		jobs:       jobs,
		executors:  make(map[job.Type]Executor),
		metrics:    m,
		logger:     logger,
		pollPeriod: time.Second,
		maxBackoff: 2 * time.Minute,
		cooldowns:  make(map[job.Type]cooldown),
	}
}

// WithPollPeriod sets the idle poll period.
func (e *Engine) WithPollPeriod(d time.Duration) *Engine {
	e.pollPeriod = d
	return e
}

// WithMaxBackoff caps the transient-failure cooldown.
func (e *Engine) WithMaxBackoff(d time.Duration) *Engine {
	e.maxBackoff = d
	return e
}

// Register adds an executor for a job type.
func (e *Engine) Register(jobType job.Type, ex Executor) {
	e.executors[jobType] = ex
}

// Start begins processing jobs in a goroutine. Stop shuts it down.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		e.run(ctx)
	}()

	e.logger.Info("job engine started")
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	e.logger.Info("job engine stopped")
}

func (e *Engine) run(ctx context.Context) {
	ticker := time.NewTicker(e.pollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for jobType := range e.executors {
				if ctx.Err() != nil {
					return
				}
				if _, err := e.ProcessOne(ctx, jobType); err != nil {
					if ctx.Err() != nil {
						return
					}
					e.logger.Error("job tick failed",
						slog.String("job_type", string(jobType)),
						slog.String("error", err.Error()))
				}
			}
			e.observeQueueDepth(ctx)
		}
	}
}

// ProcessOne claims and ticks at most one job of the given type. It returns
// whether a job was claimed. Transient tick errors leave the job queued and
// put the type on an exponential cooldown; permanent ones delete the job so
// the queue cannot wedge.
func (e *Engine) ProcessOne(ctx context.Context, jobType job.Type) (bool, error) {
	ex, ok := e.executors[jobType]
	if !ok {
		return false, fmt.Errorf("no executor for job type %q", jobType)
	}
	if e.coolingDown(jobType) {
		return false, nil
	}

	j, ok, err := e.jobs.Claim(ctx, jobType)
	if err != nil {
		return false, err
	}
	if !ok {
		e.clearCooldown(jobType)
		return false, nil
	}

	start := time.Now()
	data, done, err := e.tickWithRecovery(ctx, ex, j)
	if err != nil {
		if retryableTick(err) {
			delay := e.extendCooldown(jobType)
			e.logger.Warn("job tick hit transient failure, will retry",
				slog.Int64("job_id", j.ID()),
				slog.String("job_type", string(jobType)),
				slog.Duration("retry_in", delay),
				slog.String("error", err.Error()))
			return true, nil
		}
		e.clearCooldown(jobType)
		e.metrics.JobProcessed(string(jobType), "failed")
		e.logger.Error("job failed permanently",
			slog.Int64("job_id", j.ID()),
			slog.String("job_type", string(jobType)),
			slog.String("error", err.Error()))
		return true, e.jobs.Delete(ctx, j.ID())
	}
	e.clearCooldown(jobType)

	if done {
		e.metrics.JobProcessed(string(jobType), "done")
		e.logger.Info("job completed",
			slog.Int64("job_id", j.ID()),
			slog.String("job_type", string(jobType)),
			slog.Duration("duration", time.Since(start)))
		return true, e.jobs.Delete(ctx, j.ID())
	}
	return true, e.jobs.UpdateData(ctx, j.ID(), data)
}

func (e *Engine) coolingDown(jobType job.Type) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.cooldowns[jobType]
	return ok && time.Now().Before(c.until)
}

// extendCooldown doubles the cooldown for a job type, starting from the poll
// period and capped at maxBackoff. It returns the applied delay.
func (e *Engine) extendCooldown(jobType job.Type) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.cooldowns[jobType]
	if c.delay == 0 {
		c.delay = e.pollPeriod
	}
	c.delay *= 2
	if c.delay > e.maxBackoff {
		c.delay = e.maxBackoff
	}
	c.until = time.Now().Add(c.delay)
	e.cooldowns[jobType] = c
	return c.delay
}

func (e *Engine) clearCooldown(jobType job.Type) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cooldowns, jobType)
}

func (e *Engine) tickWithRecovery(ctx context.Context, ex Executor, j job.Job) (data job.Data, done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errExecutorPanic, r)
		}
	}()
	return ex.Tick(ctx, j)
}

func (e *Engine) observeQueueDepth(ctx context.Context) {
	n, err := e.jobs.Count(ctx)
	if err != nil {
		return
	}
	e.metrics.SetJobsQueued(n)
}
