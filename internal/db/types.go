package db

import (
	"errors"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

var (
	// ErrClosed is returned by operations on a closed Database.
	ErrClosed = errors.New("database closed")
	// ErrNoCurrent is returned by Cursor.Decode before Next.
	ErrNoCurrent = errors.New("cursor has no current document")
)

// InsertOneResult reports the identifier of an inserted document.
type InsertOneResult struct {
	InsertedID document.Value
}

// InsertManyResult lists the identifiers inserted before any failure, in
// input order.
type InsertManyResult struct {
	InsertedIDs []document.Value
}

// UpdateResult summarises an update.
//
// Documents whose update failed are counted in neither MatchedCount nor
// ModifiedCount; their errors are collected in Failures.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64

	// UpsertedID is set when an upsert inserted a new document.
	UpsertedID document.Value
	Failures   []*dberr.OperationError
}

// DeleteResult reports how many documents were removed.
type DeleteResult struct {
	DeletedCount int64
}

// FindOptions shapes the result of Find. Projection and Sort accept anything
// the query package parses: bson.D, *document.Document, maps, query types.
type FindOptions struct {
	Projection any
	Sort       any
	Skip       *int64
	Limit      *int64
}

// NewFindOptions returns empty find options.
func NewFindOptions() *FindOptions { return &FindOptions{} }

func (o *FindOptions) SetProjection(p any) *FindOptions { o.Projection = p; return o }
func (o *FindOptions) SetSort(s any) *FindOptions       { o.Sort = s; return o }
func (o *FindOptions) SetSkip(n int64) *FindOptions     { o.Skip = &n; return o }

// SetLimit caps the number of results. Zero means no limit.
func (o *FindOptions) SetLimit(n int64) *FindOptions { o.Limit = &n; return o }

// mergeFindOptions folds opts left to right; later values win.
func mergeFindOptions(opts []*FindOptions) FindOptions {
	var out FindOptions
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.Projection != nil {
			out.Projection = o.Projection
		}
		if o.Sort != nil {
			out.Sort = o.Sort
		}
		if o.Skip != nil {
			out.Skip = o.Skip
		}
		if o.Limit != nil {
			out.Limit = o.Limit
		}
	}
	return out
}

// UpdateOptions modify UpdateOne and UpdateMany.
type UpdateOptions struct {
	Upsert *bool
}

// NewUpdateOptions returns empty update options.
func NewUpdateOptions() *UpdateOptions { return &UpdateOptions{} }

// SetUpsert makes an update insert a document when nothing matches.
func (o *UpdateOptions) SetUpsert(b bool) *UpdateOptions { o.Upsert = &b; return o }

func upsertRequested(opts []*UpdateOptions) bool {
	up := false
	for _, o := range opts {
		if o != nil && o.Upsert != nil {
			up = *o.Upsert
		}
	}
	return up
}
