// Package persistence implements the thread and job stores on GORM, with
// pgvector-backed nearest-neighbor search on PostgreSQL and an in-process
// fallback on SQLite.
package persistence

import (
	"time"

	"github.com/dupbot/dupbot/internal/database"
)

// threadRow is the database model for threads. The embedding column is
// managed by Migrate rather than AutoMigrate because its SQL type depends
// on the backend and the configured dimensionality.
type threadRow struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	SourceID      string `gorm:"uniqueIndex;not null"`
	Source        string `gorm:"index;not null"`
	Repository    string `gorm:"index;not null"`
	Kind          string `gorm:"not null"`
	Number        int    `gorm:"not null"`
	Title         string
	Body          string
	HTMLURL       string
	APIURL        string
	AuthorLogin   string
	IsPullRequest bool
	Embedding     *database.HalfVector `gorm:"-:migration"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (threadRow) TableName() string { return "threads" }

// commentRow is the database model for comments. The thread foreign key
// cascades so deleting a thread removes its comments.
type commentRow struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	SourceID    string `gorm:"uniqueIndex;not null"`
	ThreadID    int64  `gorm:"index;not null"`
	Thread      threadRow `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE"`
	Body        string
	URL         string
	AuthorLogin string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (commentRow) TableName() string { return "comments" }

// jobRow is the database model for queued jobs. The (job_type, scope)
// unique index collapses duplicate enqueues; the regeneration singleton
// uses the empty scope.
type jobRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	JobType   string `gorm:"uniqueIndex:idx_jobs_type_scope;not null"`
	Scope     string `gorm:"uniqueIndex:idx_jobs_type_scope;not null"`
	Data      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (jobRow) TableName() string { return "jobs" }
