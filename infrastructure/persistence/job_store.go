package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dupbot/dupbot/domain/job"
	"github.com/dupbot/dupbot/internal/database"
)

// JobStore implements job.Store on the jobs table. The (job_type, scope)
// unique index makes Enqueue idempotent: a second enqueue of the same work
// collapses into the existing row.
type JobStore struct {
	db database.Database
}

// NewJobStore creates a JobStore.
func NewJobStore(db database.Database) *JobStore {
	return &JobStore{db: db}
}

var _ job.Store = (*JobStore)(nil)

// Enqueue implements job.Store.
func (s *JobStore) Enqueue(ctx context.Context, j job.Job) (job.Job, bool, error) {
	row, err := jobToRow(j)
	if err != nil {
		return job.Job{}, false, err
	}
	now := time.Now().UTC()
	row.ID = 0
	row.CreatedAt = now
	row.UpdatedAt = now

	created := false
	err = database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_type"}, {Name: "scope"}},
			DoNothing: true,
		}).Create(&row)
		if result.Error != nil {
			return fmt.Errorf("enqueue %s job: %w", j.Type(), result.Error)
		}
		created = result.RowsAffected > 0

		if !created {
			// Collapsed into the existing row; return it.
			if err := tx.Where("job_type = ? AND scope = ?", row.JobType, row.Scope).
				First(&row).Error; err != nil {
				return fmt.Errorf("load existing %s job: %w", j.Type(), err)
			}
		}
		return nil
	})
	if err != nil {
		return job.Job{}, false, err
	}

	stored, err := jobToDomain(row)
	if err != nil {
		return job.Job{}, false, err
	}
	return stored, created, nil
}

// locking returns a session holding a FOR UPDATE SKIP LOCKED clause on
// PostgreSQL, so concurrent instances never claim the same job. SQLite
// serializes writers on its single connection and needs no clause.
func (s *JobStore) locking(tx *gorm.DB) *gorm.DB {
	if s.db.IsPostgres() {
		return tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	return tx
}

// Claim implements job.Store. The oldest row of the type is selected under a
// row lock held for the duration of the transaction.
func (s *JobStore) Claim(ctx context.Context, jobType job.Type) (job.Job, bool, error) {
	var found bool
	var row jobRow
	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		err := s.locking(tx).
			Where("job_type = ?", string(jobType)).
			Order("created_at ASC, id ASC").
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim %s job: %w", jobType, err)
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return job.Job{}, false, err
	}
	claimed, err := jobToDomain(row)
	if err != nil {
		return job.Job{}, false, err
	}
	return claimed, true, nil
}

// UpdateData implements job.Store.
func (s *JobStore) UpdateData(ctx context.Context, id int64, data job.Data) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode job data: %w", err)
	}
	result := s.db.Session(ctx).Model(&jobRow{}).Where("id = ?", id).Updates(map[string]any{
		"data":       string(encoded),
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return fmt.Errorf("update job %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: job %d", database.ErrNotFound, id)
	}
	return nil
}

// Delete implements job.Store.
func (s *JobStore) Delete(ctx context.Context, id int64) error {
	if err := s.db.Session(ctx).Delete(&jobRow{}, id).Error; err != nil {
		return fmt.Errorf("delete job %d: %w", id, err)
	}
	return nil
}

// Count implements job.Store.
func (s *JobStore) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.Session(ctx).Model(&jobRow{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return int(count), nil
}
