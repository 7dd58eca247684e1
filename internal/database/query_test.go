package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noteRow mirrors the shape the stores page over: a child row keyed by a
// parent id with a stable (created_at, id) order.
type noteRow struct {
	ID        int64 `gorm:"primaryKey"`
	ThreadID  int64
	Body      string
	CreatedAt time.Time
}

func openQueryDB(t *testing.T) Database {
	t.Helper()
	db, err := NewDatabase(context.Background(),
		"sqlite:///"+filepath.Join(t.TempDir(), "query.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Session(context.Background()).AutoMigrate(&noteRow{}))
	return db
}

func seedNotes(t *testing.T, db Database, rows ...noteRow) {
	t.Helper()
	require.NoError(t, db.Session(context.Background()).Create(&rows).Error)
}

func TestQuery_EqualFiltersAndOrdersWithTieBreak(t *testing.T) {
	db := openQueryDB(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedNotes(t, db,
		noteRow{ID: 3, ThreadID: 1, Body: "third", CreatedAt: at.Add(time.Minute)},
		noteRow{ID: 2, ThreadID: 1, Body: "second", CreatedAt: at},
		noteRow{ID: 1, ThreadID: 1, Body: "first", CreatedAt: at},
		noteRow{ID: 4, ThreadID: 2, Body: "other thread", CreatedAt: at},
	)

	var got []noteRow
	q := NewQuery().Equal("thread_id", int64(1)).OrderAsc("created_at").OrderAsc("id")
	require.NoError(t, q.Apply(db.Session(context.Background()).Model(&noteRow{})).Find(&got).Error)

	require.Len(t, got, 3)
	// Equal timestamps fall back to id order.
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{got[0].Body, got[1].Body, got[2].Body})
}

func TestQuery_GreaterThanWithLimitPages(t *testing.T) {
	db := openQueryDB(t)
	for i := int64(1); i <= 5; i++ {
		seedNotes(t, db, noteRow{ID: i, ThreadID: 1, Body: "n"})
	}

	var page []noteRow
	q := NewQuery().GreaterThan("id", int64(2)).OrderAsc("id").Limit(2)
	require.NoError(t, q.Apply(db.Session(context.Background()).Model(&noteRow{})).Find(&page).Error)

	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].ID)
	assert.Equal(t, int64(4), page[1].ID)
}

func TestQuery_OrderDesc(t *testing.T) {
	db := openQueryDB(t)
	seedNotes(t, db,
		noteRow{ID: 1, ThreadID: 1},
		noteRow{ID: 2, ThreadID: 1},
	)

	var got []noteRow
	q := NewQuery().OrderDesc("id")
	require.NoError(t, q.Apply(db.Session(context.Background()).Model(&noteRow{})).Find(&got).Error)

	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestQuery_EmptyReturnsEverything(t *testing.T) {
	db := openQueryDB(t)
	seedNotes(t, db,
		noteRow{ID: 1, ThreadID: 1},
		noteRow{ID: 2, ThreadID: 2},
	)

	// No predicates, no order, zero limit: the query is a no-op passthrough.
	var got []noteRow
	require.NoError(t, NewQuery().Apply(db.Session(context.Background()).Model(&noteRow{})).Find(&got).Error)
	assert.Len(t, got, 2)
}
