package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dupbot/dupbot/domain/thread"
	"github.com/dupbot/dupbot/internal/database"
)

// ThreadStore implements thread.Store. Every mutation that changes a
// thread's canonical text recomputes the embedding inside the same
// transaction, under the thread's row lock, so the committed embedding is
// always the embedding of the committed text.
type ThreadStore struct {
	db       database.Database
	embedder thread.Embedder
}

// NewThreadStore creates a ThreadStore.
func NewThreadStore(db database.Database, embedder thread.Embedder) *ThreadStore {
	return &ThreadStore{db: db, embedder: embedder}
}

var _ thread.Store = (*ThreadStore)(nil)

// locking returns a session with a FOR UPDATE clause on PostgreSQL. SQLite
// serializes writers on its single connection, so no clause is needed (or
// supported) there.
func (s *ThreadStore) locking(tx *gorm.DB) *gorm.DB {
	if s.db.IsPostgres() {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// UpsertThread implements thread.Store.
func (s *ThreadStore) UpsertThread(ctx context.Context, t thread.Thread) (thread.Thread, error) {
	return database.WithTransactionResult(ctx, s.db, func(tx *gorm.DB) (thread.Thread, error) {
		now := time.Now().UTC()

		var existing threadRow
		err := s.locking(tx).Where("source_id = ?", t.SourceID()).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row := threadToRow(t)
			row.ID = 0
			row.Embedding = nil
			row.CreatedAt = now
			row.UpdatedAt = now
			if err := tx.Create(&row).Error; err != nil {
				return thread.Thread{}, fmt.Errorf("insert thread %s: %w", t.SourceID(), err)
			}
			existing = row
		case err != nil:
			return thread.Thread{}, fmt.Errorf("lock thread %s: %w", t.SourceID(), err)
		default:
			existing.Title = t.Title()
			existing.Body = t.Body()
			existing.HTMLURL = t.HTMLURL()
			existing.APIURL = t.APIURL()
			existing.AuthorLogin = t.AuthorLogin()
			existing.UpdatedAt = now
		}

		if err := s.refreshEmbeddingLocked(ctx, tx, &existing); err != nil {
			return thread.Thread{}, err
		}
		return threadToDomain(existing), nil
	})
}

// UpsertComment implements thread.Store.
func (s *ThreadStore) UpsertComment(ctx context.Context, parentSourceID string, c thread.Comment) error {
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		parent, err := s.lockBySourceID(tx, parentSourceID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var existing commentRow
		err = tx.Where("source_id = ?", c.SourceID()).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row := commentToRow(c)
			row.ID = 0
			row.ThreadID = parent.ID
			if row.CreatedAt.IsZero() {
				row.CreatedAt = now
			}
			row.UpdatedAt = now
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert comment %s: %w", c.SourceID(), err)
			}
		case err != nil:
			return fmt.Errorf("find comment %s: %w", c.SourceID(), err)
		default:
			existing.Body = c.Body()
			// Edit events carry only the new body; keep the stored URL and
			// author rather than wiping them. The author in particular feeds
			// later bot detection.
			if c.URL() != "" {
				existing.URL = c.URL()
			}
			if c.AuthorLogin() != "" {
				existing.AuthorLogin = c.AuthorLogin()
			}
			existing.UpdatedAt = now
			if err := tx.Save(&existing).Error; err != nil {
				return fmt.Errorf("update comment %s: %w", c.SourceID(), err)
			}
		}

		parent.UpdatedAt = now
		return s.refreshEmbeddingLocked(ctx, tx, &parent)
	})
}

// DeleteThread implements thread.Store.
func (s *ThreadStore) DeleteThread(ctx context.Context, sourceID string) error {
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		var row threadRow
		err := s.locking(tx).Where("source_id = ?", sourceID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock thread %s: %w", sourceID, err)
		}
		// The FK cascades too; the explicit delete keeps both backends
		// honest regardless of pragma state.
		if err := tx.Where("thread_id = ?", row.ID).Delete(&commentRow{}).Error; err != nil {
			return fmt.Errorf("delete comments of %s: %w", sourceID, err)
		}
		if err := tx.Delete(&threadRow{}, row.ID).Error; err != nil {
			return fmt.Errorf("delete thread %s: %w", sourceID, err)
		}
		return nil
	})
}

// DeleteComment implements thread.Store.
func (s *ThreadStore) DeleteComment(ctx context.Context, sourceID string) error {
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		var row commentRow
		err := tx.Where("source_id = ?", sourceID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find comment %s: %w", sourceID, err)
		}

		var parent threadRow
		if err := s.locking(tx).First(&parent, row.ThreadID).Error; err != nil {
			return fmt.Errorf("lock thread %d: %w", row.ThreadID, err)
		}
		if err := tx.Delete(&commentRow{}, row.ID).Error; err != nil {
			return fmt.Errorf("delete comment %s: %w", sourceID, err)
		}

		parent.UpdatedAt = time.Now().UTC()
		return s.refreshEmbeddingLocked(ctx, tx, &parent)
	})
}

// BySourceID implements thread.Store.
func (s *ThreadStore) BySourceID(ctx context.Context, sourceID string) (thread.Thread, error) {
	var row threadRow
	err := s.db.Session(ctx).Where("source_id = ?", sourceID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return thread.Thread{}, fmt.Errorf("%w: thread %s", database.ErrNotFound, sourceID)
	}
	if err != nil {
		return thread.Thread{}, fmt.Errorf("find thread %s: %w", sourceID, err)
	}
	return threadToDomain(row), nil
}

// Comments implements thread.Store.
func (s *ThreadStore) Comments(ctx context.Context, threadID int64) ([]thread.Comment, error) {
	rows, err := s.commentsOf(s.db.Session(ctx), threadID)
	if err != nil {
		return nil, err
	}
	comments := make([]thread.Comment, len(rows))
	for i, row := range rows {
		comments[i] = commentToDomain(row)
	}
	return comments, nil
}

func (s *ThreadStore) commentsOf(tx *gorm.DB, threadID int64) ([]commentRow, error) {
	var rows []commentRow
	q := database.NewQuery().Equal("thread_id", threadID).OrderAsc("created_at").OrderAsc("id")
	if err := q.Apply(tx.Model(&commentRow{})).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list comments of thread %d: %w", threadID, err)
	}
	return rows, nil
}

// refreshEmbeddingLocked recomputes the canonical text of a locked thread
// row, embeds it, and writes thread fields plus embedding in one update.
// Callers must hold the row lock.
func (s *ThreadStore) refreshEmbeddingLocked(ctx context.Context, tx *gorm.DB, row *threadRow) error {
	commentRows, err := s.commentsOf(tx, row.ID)
	if err != nil {
		return err
	}
	comments := make([]thread.Comment, len(commentRows))
	for i, cr := range commentRows {
		comments[i] = commentToDomain(cr)
	}

	canonical := thread.CanonicalText(row.Title, row.Body, comments)
	vector, err := s.embedder.Embed(ctx, canonical)
	if err != nil {
		return fmt.Errorf("embed thread %s: %w", row.SourceID, err)
	}
	v := database.NewHalfVector(vector)
	row.Embedding = &v

	if err := tx.Save(row).Error; err != nil {
		return fmt.Errorf("save thread %s: %w", row.SourceID, err)
	}
	return nil
}

func (s *ThreadStore) lockBySourceID(tx *gorm.DB, sourceID string) (threadRow, error) {
	var row threadRow
	err := s.locking(tx).Where("source_id = ?", sourceID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return threadRow{}, fmt.Errorf("%w: thread %s", database.ErrNotFound, sourceID)
	}
	if err != nil {
		return threadRow{}, fmt.Errorf("lock thread %s: %w", sourceID, err)
	}
	return row, nil
}

// Nearest implements thread.Store. On PostgreSQL the HNSW index answers the
// query; on SQLite candidates are ranked in process.
func (s *ThreadStore) Nearest(ctx context.Context, vector []float32, k int, excludeSourceID string) ([]thread.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	if s.db.IsPostgres() {
		return s.nearestPostgres(ctx, vector, k, excludeSourceID)
	}
	return s.nearestSQLite(ctx, vector, k, excludeSourceID)
}

func (s *ThreadStore) nearestPostgres(ctx context.Context, vector []float32, k int, excludeSourceID string) ([]thread.Match, error) {
	literal := database.NewHalfVector(vector).String()

	// The HNSW index orders the candidates; the exact score is recomputed
	// from the returned embedding so both backends report the same metric.
	var rows []threadRow
	err := s.db.Session(ctx).Raw(
		`SELECT * FROM threads
		 WHERE embedding IS NOT NULL AND source_id <> ?
		 ORDER BY embedding <=> ?::halfvec
		 LIMIT ?`,
		excludeSourceID, literal, k,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("nearest threads: %w", err)
	}

	matches := make([]thread.Match, len(rows))
	for i, row := range rows {
		var emb []float32
		if row.Embedding != nil {
			emb = row.Embedding.Floats()
		}
		matches[i] = thread.NewMatch(threadToDomain(row), cosineSimilarity(vector, emb))
	}
	return matches, nil
}

func (s *ThreadStore) nearestSQLite(ctx context.Context, vector []float32, k int, excludeSourceID string) ([]thread.Match, error) {
	var rows []threadRow
	err := s.db.Session(ctx).
		Where("embedding IS NOT NULL AND source_id <> ?", excludeSourceID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("nearest threads: %w", err)
	}

	candidates := make([][]float32, len(rows))
	for i, row := range rows {
		if row.Embedding != nil {
			candidates[i] = row.Embedding.Floats()
		}
	}

	ranked := topKSimilar(vector, candidates, k)
	matches := make([]thread.Match, len(ranked))
	for i, r := range ranked {
		matches[i] = thread.NewMatch(threadToDomain(rows[r.index]), r.score)
	}
	return matches, nil
}

// ThreadsAfter implements thread.Store.
func (s *ThreadStore) ThreadsAfter(ctx context.Context, afterID int64, limit int) ([]thread.Thread, error) {
	var rows []threadRow
	q := database.NewQuery().GreaterThan("id", afterID).OrderAsc("id").Limit(limit)
	if err := q.Apply(s.db.Session(ctx).Model(&threadRow{})).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list threads after %d: %w", afterID, err)
	}
	threads := make([]thread.Thread, len(rows))
	for i, row := range rows {
		threads[i] = threadToDomain(row)
	}
	return threads, nil
}

// RefreshEmbedding implements thread.Store.
func (s *ThreadStore) RefreshEmbedding(ctx context.Context, sourceID string) error {
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		row, err := s.lockBySourceID(tx, sourceID)
		if err != nil {
			return err
		}
		row.UpdatedAt = time.Now().UTC()
		return s.refreshEmbeddingLocked(ctx, tx, &row)
	})
}

// Dimension implements thread.Store.
func (s *ThreadStore) Dimension(ctx context.Context) (int, error) {
	var row threadRow
	err := s.db.Session(ctx).Where("embedding IS NOT NULL").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sample embedding: %w", err)
	}
	if row.Embedding == nil {
		return 0, nil
	}
	return row.Embedding.Dimension(), nil
}
