package db

import (
	"github.com/skshohagmiah/flindoc/internal/query"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

// iterator is a pull-based document stream. Cursors are built by stacking
// iterators over a snapshot: scan, filter, sort, skip, project, limit.
type iterator interface {
	// Next advances to the next document and reports whether there is one.
	Next() bool
	// Value returns the current document.
	Value() *document.Document
	// Close releases the stream. It is safe to call more than once.
	Close()
}

// sliceIterator walks a snapshot of documents.
type sliceIterator struct {
	docs []*document.Document
	pos  int
}

func newSliceIterator(docs []*document.Document) *sliceIterator {
	return &sliceIterator{docs: docs, pos: -1}
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.docs) {
		it.pos = len(it.docs)
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Value() *document.Document {
	if it.pos < 0 || it.pos >= len(it.docs) {
		return nil
	}
	return it.docs[it.pos]
}

func (it *sliceIterator) Close() { it.docs = nil }

// filterIterator yields the source documents accepted by a filter.
type filterIterator struct {
	source  iterator
	filter  query.Filter
	current *document.Document
}

func (it *filterIterator) Next() bool {
	for it.source.Next() {
		if doc := it.source.Value(); it.filter.Match(doc) {
			it.current = doc
			return true
		}
	}
	it.current = nil
	return false
}

func (it *filterIterator) Value() *document.Document { return it.current }
func (it *filterIterator) Close()                    { it.source.Close() }

// sortIterator drains its source on the first Next and replays it sorted.
type sortIterator struct {
	source iterator
	spec   query.SortSpec
	sorted *sliceIterator
}

func (it *sortIterator) Next() bool {
	if it.sorted == nil {
		var docs []*document.Document
		for it.source.Next() {
			docs = append(docs, it.source.Value())
		}
		it.spec.Sort(docs)
		it.sorted = newSliceIterator(docs)
	}
	return it.sorted.Next()
}

func (it *sortIterator) Value() *document.Document {
	if it.sorted == nil {
		return nil
	}
	return it.sorted.Value()
}

func (it *sortIterator) Close() {
	if it.sorted != nil {
		it.sorted.Close()
	}
	it.source.Close()
}

// skipIterator discards the first n documents.
type skipIterator struct {
	source iterator
	n      int64
}

func (it *skipIterator) Next() bool {
	for ; it.n > 0; it.n-- {
		if !it.source.Next() {
			return false
		}
	}
	return it.source.Next()
}

func (it *skipIterator) Value() *document.Document { return it.source.Value() }
func (it *skipIterator) Close()                    { it.source.Close() }

// projectIterator reshapes documents on the way out. A nil projection copies
// them, so callers never see stored documents.
type projectIterator struct {
	source  iterator
	proj    *query.Projection
	current *document.Document
}

func (it *projectIterator) Next() bool {
	if !it.source.Next() {
		it.current = nil
		return false
	}
	it.current = it.proj.Apply(it.source.Value())
	return true
}

func (it *projectIterator) Value() *document.Document { return it.current }
func (it *projectIterator) Close()                    { it.source.Close() }

// limitIterator stops after n documents.
type limitIterator struct {
	source    iterator
	remaining int64
}

func (it *limitIterator) Next() bool {
	if it.remaining <= 0 {
		return false
	}
	if !it.source.Next() {
		return false
	}
	it.remaining--
	return true
}

func (it *limitIterator) Value() *document.Document { return it.source.Value() }
func (it *limitIterator) Close()                    { it.source.Close() }
