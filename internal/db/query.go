package db

import (
	"context"
	"fmt"

	"github.com/skshohagmiah/flindoc/internal/query"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

// QueryBuilder builds a filter and find options fluently:
//
//	filter, opts := db.NewQueryBuilder().
//		WhereGte("year", 1990).
//		WhereIn("genres", "Drama", "Crime").
//		OrderByDesc("imdb.rating").
//		Limit(5).
//		Build()
type QueryBuilder struct {
	conds *document.Document
	sort  query.SortSpec
	proj  *document.Document
	skip  int64
	limit int64
}

// NewQueryBuilder returns an empty query, which matches every document.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{conds: document.New()}
}

// Where adds {field: {op: value}}. Conditions on the same field are merged.
func (qb *QueryBuilder) Where(field, op string, value any) *QueryBuilder {
	existing := qb.conds.Get(field)
	ops := document.New()
	if existing.IsDocument() {
		ops = existing.Document()
	}
	ops.Set(op, document.MustFrom(value))
	qb.conds.Set(field, document.Doc(ops))
	return qb
}

// WhereEq adds an equality condition.
func (qb *QueryBuilder) WhereEq(field string, value any) *QueryBuilder {
	return qb.Where(field, query.OpEq, value)
}

// WhereNe adds a not-equal condition.
func (qb *QueryBuilder) WhereNe(field string, value any) *QueryBuilder {
	return qb.Where(field, query.OpNe, value)
}

func (qb *QueryBuilder) WhereGt(field string, value any) *QueryBuilder {
	return qb.Where(field, query.OpGt, value)
}

func (qb *QueryBuilder) WhereGte(field string, value any) *QueryBuilder {
	return qb.Where(field, query.OpGte, value)
}

func (qb *QueryBuilder) WhereLt(field string, value any) *QueryBuilder {
	return qb.Where(field, query.OpLt, value)
}

func (qb *QueryBuilder) WhereLte(field string, value any) *QueryBuilder {
	return qb.Where(field, query.OpLte, value)
}

// WhereIn matches any of values.
func (qb *QueryBuilder) WhereIn(field string, values ...any) *QueryBuilder {
	return qb.Where(field, query.OpIn, values)
}

// WhereAll requires an array holding every one of values.
func (qb *QueryBuilder) WhereAll(field string, values ...any) *QueryBuilder {
	return qb.Where(field, query.OpAll, values)
}

// WhereSize requires an array of exactly n elements.
func (qb *QueryBuilder) WhereSize(field string, n int) *QueryBuilder {
	return qb.Where(field, query.OpSize, n)
}

// WhereExists requires the field to be present (or absent).
func (qb *QueryBuilder) WhereExists(field string, exists bool) *QueryBuilder {
	return qb.Where(field, query.OpExists, exists)
}

// OrderByAsc appends an ascending sort key.
func (qb *QueryBuilder) OrderByAsc(field string) *QueryBuilder {
	qb.sort = append(qb.sort, query.Asc(field))
	return qb
}

// OrderByDesc appends a descending sort key.
func (qb *QueryBuilder) OrderByDesc(field string) *QueryBuilder {
	qb.sort = append(qb.sort, query.Desc(field))
	return qb
}

// Select includes only the given fields (and _id).
func (qb *QueryBuilder) Select(fields ...string) *QueryBuilder {
	if qb.proj == nil {
		qb.proj = document.New()
	}
	for _, f := range fields {
		qb.proj.Set(f, document.Int(1))
	}
	return qb
}

// Skip sets the number of documents to skip.
func (qb *QueryBuilder) Skip(n int64) *QueryBuilder {
	qb.skip = n
	return qb
}

// Limit sets the maximum number of documents to return.
func (qb *QueryBuilder) Limit(n int64) *QueryBuilder {
	qb.limit = n
	return qb
}

// Build returns the filter document and the matching find options.
func (qb *QueryBuilder) Build() (*document.Document, *FindOptions) {
	opts := NewFindOptions()
	if len(qb.sort) > 0 {
		opts.SetSort(qb.sort)
	}
	if qb.proj != nil {
		opts.SetProjection(qb.proj.Clone())
	}
	if qb.skip > 0 {
		opts.SetSkip(qb.skip)
	}
	if qb.limit > 0 {
		opts.SetLimit(qb.limit)
	}
	return qb.conds.Clone(), opts
}

// Find runs the built query against c.
func (qb *QueryBuilder) Find(ctx context.Context, c *Collection) (*Cursor, error) {
	filter, opts := qb.Build()
	return c.Find(ctx, filter, opts)
}

func (qb *QueryBuilder) String() string {
	return fmt.Sprintf("Query{filter=%s, sort=%d, skip=%d, limit=%d}", qb.conds, len(qb.sort), qb.skip, qb.limit)
}
