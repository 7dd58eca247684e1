// Package job models durable background work: repository backfills,
// single-thread ingestion, and the global embeddings regeneration.
package job

import (
	"fmt"
	"time"
)

// Type classifies a job.
type Type string

// Type values.
const (
	// TypeIssueIndexation backfills every thread of one repository.
	TypeIssueIndexation Type = "issue_indexation"
	// TypeThreadIngest fetches and indexes a single thread. Used when a
	// webhook cannot finish inline before its response deadline, and by the
	// single-thread management endpoint.
	TypeThreadIngest Type = "thread_ingest"
	// TypeEmbeddingsRegeneration re-embeds every stored thread with the
	// current model. Singleton.
	TypeEmbeddingsRegeneration Type = "embeddings_regeneration"
)

// Data is the resumable cursor persisted after every tick.
type Data struct {
	// PageCursor is the next forge listing page for a backfill.
	PageCursor string `json:"page_cursor,omitempty"`
	// AfterThreadID is the regeneration cursor: the last re-embedded
	// thread's database ID.
	AfterThreadID int64 `json:"after_thread_id,omitempty"`
	// Source names the forge for backfill and single-thread jobs.
	Source string `json:"source,omitempty"`
	// Kind is the thread kind for single-thread jobs.
	Kind string `json:"kind,omitempty"`
	// Number is the thread number for single-thread jobs.
	Number int `json:"number,omitempty"`
}

// Job is one row of durable work. At most one job exists per scope: the
// scope is the repository for backfills, repository plus thread number for
// single-thread ingestion, and empty for the regeneration singleton.
type Job struct {
	id        int64
	jobType   Type
	scope     string
	data      Data
	createdAt time.Time
	updatedAt time.Time
}

// New creates a Job.
func New(jobType Type, scope string, data Data, opts ...Option) Job {
	j := Job{jobType: jobType, scope: scope, data: data}
	for _, opt := range opts {
		opt(&j)
	}
	return j
}

// Option is a functional option for Job.
type Option func(*Job)

// WithID sets the database identifier.
func WithID(id int64) Option {
	return func(j *Job) { j.id = id }
}

// WithTimestamps sets creation and update times.
func WithTimestamps(createdAt, updatedAt time.Time) Option {
	return func(j *Job) { j.createdAt = createdAt; j.updatedAt = updatedAt }
}

// ID returns the database identifier.
func (j Job) ID() int64 { return j.id }

// Type returns the job type.
func (j Job) Type() Type { return j.jobType }

// Scope returns the dedup scope.
func (j Job) Scope() string { return j.scope }

// Data returns the resumable cursor.
func (j Job) Data() Data { return j.data }

// CreatedAt returns the creation time.
func (j Job) CreatedAt() time.Time { return j.createdAt }

// UpdatedAt returns the last update time.
func (j Job) UpdatedAt() time.Time { return j.updatedAt }

// WithData returns a copy carrying a new cursor.
func (j Job) WithData(data Data) Job {
	j.data = data
	return j
}

// IndexationScope returns the dedup scope of a repository backfill.
func IndexationScope(repository string) string {
	return repository
}

// ThreadIngestScope returns the dedup scope of a single-thread job.
func ThreadIngestScope(repository string, number int) string {
	return fmt.Sprintf("%s#%d", repository, number)
}

// RegenerationScope returns the dedup scope of the regeneration singleton.
func RegenerationScope() string {
	return ""
}
