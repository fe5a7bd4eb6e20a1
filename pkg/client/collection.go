package client

import (
	"context"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/pkg/document"
	"github.com/skshohagmiah/flindoc/pkg/protocol"
)

// Collection is a remote collection handle.
type Collection struct {
	client *Client
	name   string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// FindOptions shape a remote find.
type FindOptions struct {
	Projection any
	Sort       any
	Skip       int64
	Limit      int64
}

// UpdateResult summarises a remote update. Failures lists documents the
// update could not be applied to, keyed by _id.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedID    document.Value
	Failures      []protocol.Failure
}

// InsertOne inserts doc and returns its _id.
func (c *Collection) InsertOne(ctx context.Context, doc any) (document.Value, error) {
	ids, err := c.InsertMany(ctx, []any{doc})
	if len(ids) == 1 {
		return ids[0], err
	}
	return document.Value{}, err
}

// InsertMany inserts docs in order. On failure the ids inserted before the
// failing document are returned with the error.
func (c *Collection) InsertMany(ctx context.Context, docs []any) ([]document.Value, error) {
	body := protocol.InsertBody{Documents: make([]*document.Document, 0, len(docs))}
	for _, in := range docs {
		d, err := toDocument("insert", in)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, dberr.Invalid("insert", "document is nil")
		}
		body.Documents = append(body.Documents, d)
	}
	var out protocol.InsertResult
	if err := c.client.call(ctx, protocol.OpDocInsert, c.name, &body, &out, false); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return out.InsertedIDs, out.Error.Err()
	}
	return out.InsertedIDs, nil
}

// Find returns every document matching filter.
func (c *Collection) Find(ctx context.Context, filter any, opts ...FindOptions) ([]*document.Document, error) {
	body, err := findBody(filter, opts)
	if err != nil {
		return nil, err
	}
	var out protocol.DocumentsResult
	if err := c.client.call(ctx, protocol.OpDocFind, c.name, body, &out, true); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// FindOne returns the first match, or nil when there is none.
func (c *Collection) FindOne(ctx context.Context, filter any, opts ...FindOptions) (*document.Document, error) {
	docs, err := c.Find(ctx, filter, append(opts, FindOptions{Limit: 1})...)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func findBody(filter any, opts []FindOptions) (*protocol.FindBody, error) {
	f, err := toDocument("filter", filter)
	if err != nil {
		return nil, err
	}
	body := &protocol.FindBody{Filter: f}
	for _, o := range opts {
		if o.Projection != nil {
			if body.Projection, err = toDocument("projection", o.Projection); err != nil {
				return nil, err
			}
		}
		if o.Sort != nil {
			if body.Sort, err = toDocument("sort", o.Sort); err != nil {
				return nil, err
			}
		}
		if o.Skip != 0 {
			body.Skip = o.Skip
		}
		if o.Limit != 0 {
			body.Limit = o.Limit
		}
	}
	return body, nil
}

// CountDocuments counts the documents matching filter.
func (c *Collection) CountDocuments(ctx context.Context, filter any) (int64, error) {
	f, err := toDocument("filter", filter)
	if err != nil {
		return 0, err
	}
	var out protocol.CountResult
	if err := c.client.call(ctx, protocol.OpDocCount, c.name, &protocol.CountBody{Filter: f}, &out, true); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// UpdateOne updates the first matching document.
func (c *Collection) UpdateOne(ctx context.Context, filter, update any, upsert bool) (*UpdateResult, error) {
	return c.update(ctx, filter, update, false, upsert)
}

// UpdateMany updates every matching document.
func (c *Collection) UpdateMany(ctx context.Context, filter, update any, upsert bool) (*UpdateResult, error) {
	return c.update(ctx, filter, update, true, upsert)
}

func (c *Collection) update(ctx context.Context, filter, update any, multi, upsert bool) (*UpdateResult, error) {
	f, err := toDocument("filter", filter)
	if err != nil {
		return nil, err
	}
	u, err := toDocument("update", update)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, dberr.Invalid("update", "update document is nil")
	}
	var out protocol.UpdateResult
	body := &protocol.UpdateBody{Filter: f, Update: u, Multi: multi, Upsert: upsert}
	if err := c.client.call(ctx, protocol.OpDocUpdate, c.name, body, &out, false); err != nil {
		return nil, err
	}
	res := &UpdateResult{MatchedCount: out.Matched, ModifiedCount: out.Modified, Failures: out.Failures}
	if out.UpsertedID != nil {
		res.UpsertedID = *out.UpsertedID
	}
	return res, nil
}

// DeleteOne removes the first matching document and reports how many were
// removed.
func (c *Collection) DeleteOne(ctx context.Context, filter any) (int64, error) {
	return c.delete(ctx, filter, false)
}

// DeleteMany removes every matching document.
func (c *Collection) DeleteMany(ctx context.Context, filter any) (int64, error) {
	return c.delete(ctx, filter, true)
}

func (c *Collection) delete(ctx context.Context, filter any, multi bool) (int64, error) {
	f, err := toDocument("filter", filter)
	if err != nil {
		return 0, err
	}
	var out protocol.DeleteResult
	if err := c.client.call(ctx, protocol.OpDocDelete, c.name, &protocol.DeleteBody{Filter: f, Multi: multi}, &out, false); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// Aggregate runs pipeline, an array of stage documents.
func (c *Collection) Aggregate(ctx context.Context, pipeline any) ([]*document.Document, error) {
	v, err := document.From(pipeline)
	if err != nil {
		return nil, dberr.Invalid("pipeline", "%v", err)
	}
	if !v.IsArray() {
		return nil, dberr.Invalid("pipeline", "expected an array of stages, got %s", v.Kind())
	}
	body := &protocol.AggregateBody{Pipeline: make([]*document.Document, 0, len(v.Array()))}
	for i, st := range v.Array() {
		if !st.IsDocument() {
			return nil, dberr.Invalid("pipeline", "stage %d is not a document", i)
		}
		body.Pipeline = append(body.Pipeline, st.Document())
	}
	var out protocol.DocumentsResult
	if err := c.client.call(ctx, protocol.OpDocAggregate, c.name, body, &out, true); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// Drop removes the collection's documents.
func (c *Collection) Drop(ctx context.Context) error {
	return c.client.call(ctx, protocol.OpDocDrop, c.name, nil, nil, false)
}
