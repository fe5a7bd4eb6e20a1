package db

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/skshohagmiah/flindoc/internal/aggregate"
	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/internal/query"
	"github.com/skshohagmiah/flindoc/internal/storage"
	"github.com/skshohagmiah/flindoc/internal/update"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

// entry is a stored document. Stored documents are never modified in place:
// updates swap in a new document, which keeps cursor snapshots stable.
type entry struct {
	seq uint64
	doc *document.Document
}

// Collection is an insertion-ordered set of documents with unique _id values.
type Collection struct {
	name string
	db   *Database
	log  *zap.Logger

	mu      sync.RWMutex
	entries []entry
	ids     map[string]uint64 // _id key -> seq
	nextSeq uint64
	created bool
}

func newCollection(d *Database, name string) *Collection {
	return &Collection{
		name: name,
		db:   d,
		log:  d.log.With(zap.String("collection", name)),
		ids:  make(map[string]uint64),
	}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

func (c *Collection) check(ctx context.Context) error {
	if err := c.db.check(ctx); err != nil {
		return err
	}
	return validateCollectionName(c.name)
}

func (c *Collection) exists() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.created
}

func (c *Collection) restore(recs []storage.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range recs {
		c.entries = append(c.entries, entry{seq: r.Seq, doc: r.Doc})
		c.ids[r.Doc.ID().Key()] = r.Seq
		if r.Seq >= c.nextSeq {
			c.nextSeq = r.Seq + 1
		}
	}
	c.created = true
}

// prepare copies an input document, validates it and assigns an _id when it
// has none.
func (c *Collection) prepare(op string, in any) (*document.Document, error) {
	v, err := document.From(in)
	if err != nil {
		return nil, dberr.Invalid(op, "%v", err)
	}
	if !v.IsDocument() {
		return nil, dberr.Invalid(op, "expected a document, got %s", v.Kind())
	}
	doc := v.Document().Clone()
	for _, key := range doc.Keys() {
		if strings.HasPrefix(key, "$") {
			return nil, dberr.Invalid(op, "field name %q may not start with '$'", key)
		}
	}
	id := doc.ID()
	switch {
	case id.IsAbsent():
		doc.SetID(c.db.ids.NewID())
	case id.IsArray():
		return nil, dberr.Invalid(op, "_id cannot be an array")
	default:
		doc.SetID(id)
	}
	return doc, nil
}

// InsertOne stores a copy of doc.
func (c *Collection) InsertOne(ctx context.Context, doc any) (*InsertOneResult, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	d, err := c.prepare("insert", doc)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.ids[d.ID().Key()]; dup {
		return nil, fmt.Errorf("insert %s: %w", d.ID(), dberr.ErrDuplicateKey)
	}
	rec := storage.Record{Seq: c.nextSeq, Doc: d}
	if err := c.db.store.Put(ctx, c.name, rec); err != nil {
		return nil, dberr.Unavailable(err)
	}
	c.append(rec)
	c.log.Debug("inserted", zap.Stringer("id", d.ID()))
	return &InsertOneResult{InsertedID: d.ID().Clone()}, nil
}

// InsertMany stores copies of docs in order. It stops at the first invalid
// or duplicate document; the documents before it are inserted and reported
// together with the error.
func (c *Collection) InsertMany(ctx context.Context, docs []any) (*InsertManyResult, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		recs     []storage.Record
		batchIDs = map[string]bool{}
		firstErr error
	)
	for _, in := range docs {
		d, err := c.prepare("insert", in)
		if err != nil {
			firstErr = err
			break
		}
		key := d.ID().Key()
		if _, dup := c.ids[key]; dup || batchIDs[key] {
			firstErr = fmt.Errorf("insert %s: %w", d.ID(), dberr.ErrDuplicateKey)
			break
		}
		batchIDs[key] = true
		recs = append(recs, storage.Record{Seq: c.nextSeq + uint64(len(recs)), Doc: d})
	}

	res := &InsertManyResult{}
	if len(recs) > 0 {
		if err := c.db.store.PutBatch(ctx, c.name, recs); err != nil {
			return res, dberr.Unavailable(err)
		}
	}
	for _, r := range recs {
		c.append(r)
		res.InsertedIDs = append(res.InsertedIDs, r.Doc.ID().Clone())
	}
	c.log.Debug("inserted batch", zap.Int("documents", len(recs)))
	return res, firstErr
}

func (c *Collection) append(r storage.Record) {
	c.entries = append(c.entries, entry{seq: r.Seq, doc: r.Doc})
	c.ids[r.Doc.ID().Key()] = r.Seq
	c.nextSeq = r.Seq + 1
	c.created = true
}

func (c *Collection) snapshot() []*document.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	docs := make([]*document.Document, len(c.entries))
	for i, e := range c.entries {
		docs[i] = e.doc
	}
	return docs
}

// Find returns a cursor over the documents matching filter, shaped by opts.
// The stages run in a fixed order: filter, sort, skip, projection, limit.
func (c *Collection) Find(ctx context.Context, filter any, opts ...*FindOptions) (*Cursor, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	f, err := query.Parse(filter)
	if err != nil {
		return nil, err
	}
	o := mergeFindOptions(opts)
	spec, err := query.ParseSort(o.Sort)
	if err != nil {
		return nil, err
	}
	proj, err := query.ParseProjection(o.Projection, query.ProjectionOptions{Op: "projection", IncludeIDByDefault: true})
	if err != nil {
		return nil, err
	}
	var skip, limit int64
	if o.Skip != nil {
		if skip = *o.Skip; skip < 0 {
			return nil, dberr.Invalid("find", "skip must not be negative")
		}
	}
	if o.Limit != nil {
		if limit = *o.Limit; limit < 0 {
			return nil, dberr.Invalid("find", "limit must not be negative")
		}
	}

	var it iterator = &filterIterator{source: newSliceIterator(c.snapshot()), filter: f}
	if len(spec) > 0 {
		it = &sortIterator{source: it, spec: spec}
	}
	if skip > 0 {
		it = &skipIterator{source: it, n: skip}
	}
	it = &projectIterator{source: it, proj: proj}
	if limit > 0 {
		it = &limitIterator{source: it, remaining: limit}
	}
	return newCursor(it), nil
}

// FindOne returns the first document matching filter, or nil when there is
// none.
func (c *Collection) FindOne(ctx context.Context, filter any, opts ...*FindOptions) (*document.Document, error) {
	cur, err := c.Find(ctx, filter, append(opts, NewFindOptions().SetLimit(1))...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	if cur.Next(ctx) {
		return cur.Current(), nil
	}
	return nil, cur.Err()
}

// CountDocuments counts the documents matching filter.
func (c *Collection) CountDocuments(ctx context.Context, filter any) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	f, err := query.Parse(filter)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, d := range c.snapshot() {
		if f.Match(d) {
			n++
		}
	}
	return n, nil
}

// UpdateOne applies upd to the first matching document. If that document
// cannot be updated, its failure is returned as the error.
func (c *Collection) UpdateOne(ctx context.Context, filter, upd any, opts ...*UpdateOptions) (*UpdateResult, error) {
	res, err := c.update(ctx, filter, upd, true, upsertRequested(opts))
	if err != nil {
		return res, err
	}
	if len(res.Failures) > 0 {
		return res, res.Failures[0]
	}
	return res, nil
}

// UpdateMany applies upd to every matching document independently. Documents
// that cannot be updated are left unchanged and listed in Failures; the
// returned error is reserved for invalid input and store failures.
func (c *Collection) UpdateMany(ctx context.Context, filter, upd any, opts ...*UpdateOptions) (*UpdateResult, error) {
	return c.update(ctx, filter, upd, false, upsertRequested(opts))
}

func (c *Collection) update(ctx context.Context, filter, upd any, one, upsert bool) (*UpdateResult, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	f, err := query.Parse(filter)
	if err != nil {
		return nil, err
	}
	spec, err := update.Parse(upd)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	type change struct {
		index int
		doc   *document.Document
	}
	res := &UpdateResult{}
	var changes []change
	for i, e := range c.entries {
		if !f.Match(e.doc) {
			continue
		}
		updated, modified, err := spec.Apply(e.doc)
		if err != nil {
			res.Failures = append(res.Failures, &dberr.OperationError{ID: e.doc.ID().Clone(), Op: "update", Err: err})
			c.log.Debug("update skipped", zap.Stringer("id", e.doc.ID()), zap.Error(err))
		} else {
			res.MatchedCount++
			if modified {
				res.ModifiedCount++
				changes = append(changes, change{index: i, doc: updated})
			}
		}
		if one {
			break
		}
	}

	if len(changes) > 0 {
		recs := make([]storage.Record, len(changes))
		for i, ch := range changes {
			recs[i] = storage.Record{Seq: c.entries[ch.index].seq, Doc: ch.doc}
		}
		if err := c.db.store.PutBatch(ctx, c.name, recs); err != nil {
			return nil, dberr.Unavailable(err)
		}
		for _, ch := range changes {
			c.entries[ch.index].doc = ch.doc
		}
	}

	if upsert && res.MatchedCount == 0 && len(res.Failures) == 0 {
		id, err := c.upsertLocked(ctx, f, spec)
		if err != nil {
			return nil, err
		}
		res.UpsertedID = id
	}
	return res, nil
}

// upsertLocked inserts the document an upsert produces. c.mu must be held.
func (c *Collection) upsertLocked(ctx context.Context, f query.Filter, spec *update.Spec) (document.Value, error) {
	seed, err := query.EqualitySeed(f)
	if err != nil {
		return document.Value{}, err
	}
	d, err := spec.ApplyInsert(seed)
	if err != nil {
		return document.Value{}, &dberr.OperationError{ID: seed.ID(), Op: "upsert", Err: err}
	}
	if d.ID().IsAbsent() {
		d.SetID(c.db.ids.NewID())
	} else {
		d.SetID(d.ID())
	}
	if _, dup := c.ids[d.ID().Key()]; dup {
		return document.Value{}, fmt.Errorf("upsert %s: %w", d.ID(), dberr.ErrDuplicateKey)
	}
	rec := storage.Record{Seq: c.nextSeq, Doc: d}
	if err := c.db.store.Put(ctx, c.name, rec); err != nil {
		return document.Value{}, dberr.Unavailable(err)
	}
	c.append(rec)
	return d.ID().Clone(), nil
}

// DeleteOne removes the first matching document.
func (c *Collection) DeleteOne(ctx context.Context, filter any) (*DeleteResult, error) {
	return c.delete(ctx, filter, true)
}

// DeleteMany removes every matching document.
func (c *Collection) DeleteMany(ctx context.Context, filter any) (*DeleteResult, error) {
	return c.delete(ctx, filter, false)
}

func (c *Collection) delete(ctx context.Context, filter any, one bool) (*DeleteResult, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	f, err := query.Parse(filter)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		seqs    []uint64
		removed []*document.Document
	)
	kept := make([]entry, 0, len(c.entries))
	for _, e := range c.entries {
		if (!one || len(seqs) == 0) && f.Match(e.doc) {
			seqs = append(seqs, e.seq)
			removed = append(removed, e.doc)
			continue
		}
		kept = append(kept, e)
	}
	if len(seqs) == 0 {
		return &DeleteResult{}, nil
	}
	if err := c.db.store.DeleteBatch(ctx, c.name, seqs); err != nil {
		return nil, dberr.Unavailable(err)
	}
	for _, d := range removed {
		delete(c.ids, d.ID().Key())
	}
	c.entries = kept
	c.log.Debug("deleted", zap.Int("documents", len(seqs)))
	return &DeleteResult{DeletedCount: int64(len(seqs))}, nil
}

// Aggregate runs a pipeline over the collection. The pipeline is evaluated in
// full before the cursor is returned; on error there is no partial output.
func (c *Collection) Aggregate(ctx context.Context, pipeline any) (*Cursor, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	p, err := aggregate.Parse(pipeline)
	if err != nil {
		return nil, err
	}
	out, err := p.Run(ctx, c.snapshot())
	if err != nil {
		return nil, err
	}
	c.log.Debug("aggregated", zap.Strings("stages", p.StageNames()), zap.Int("results", len(out)))
	return newCursor(newSliceIterator(out)), nil
}

// Drop removes every document. The collection handle stays usable.
func (c *Collection) Drop(ctx context.Context) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.db.store.Drop(ctx, c.name); err != nil {
		return dberr.Unavailable(err)
	}
	c.entries = nil
	c.ids = make(map[string]uint64)
	c.created = false
	c.log.Info("collection dropped")
	return nil
}
