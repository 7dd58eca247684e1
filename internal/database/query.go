package database

import (
	"strings"

	"gorm.io/gorm"
)

// predicate is one WHERE clause with its bound argument.
type predicate struct {
	expr string
	arg  any
}

// Query accumulates predicates, ordering and a row cap for a GORM session.
// The stores use it for keyset pagination: filter on an indexed column,
// order by a stable key, limit the page size.
type Query struct {
	predicates []predicate
	orders     []string
	limit      int
}

// NewQuery returns an empty query.
func NewQuery() Query {
	return Query{}
}

// Equal keeps rows where column equals value.
func (q Query) Equal(column string, value any) Query {
	q.predicates = append(q.predicates, predicate{expr: column + " = ?", arg: value})
	return q
}

// GreaterThan keeps rows where column is strictly greater than value.
func (q Query) GreaterThan(column string, value any) Query {
	q.predicates = append(q.predicates, predicate{expr: column + " > ?", arg: value})
	return q
}

// OrderAsc appends an ascending sort on column. Later calls break ties
// left by earlier ones.
func (q Query) OrderAsc(column string) Query {
	q.orders = append(q.orders, column+" ASC")
	return q
}

// OrderDesc appends a descending sort on column.
func (q Query) OrderDesc(column string) Query {
	q.orders = append(q.orders, column+" DESC")
	return q
}

// Limit caps the number of returned rows. Zero or negative means no cap.
func (q Query) Limit(n int) Query {
	q.limit = n
	return q
}

// Apply attaches the accumulated clauses to db and returns the session.
func (q Query) Apply(db *gorm.DB) *gorm.DB {
	for _, p := range q.predicates {
		db = db.Where(p.expr, p.arg)
	}
	if len(q.orders) > 0 {
		db = db.Order(strings.Join(q.orders, ", "))
	}
	if q.limit > 0 {
		db = db.Limit(q.limit)
	}
	return db
}
