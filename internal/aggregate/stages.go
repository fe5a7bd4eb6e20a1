package aggregate

import (
	"context"
	"strings"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/internal/query"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

// Match keeps the documents accepted by Filter.
type Match struct{ Filter query.Filter }

func (m *Match) Name() string { return StageMatch }

func parseMatch(arg document.Value) (Stage, error) {
	if !arg.IsDocument() {
		return nil, dberr.Invalid(StageMatch, "expected a document, got %s", arg.Kind())
	}
	f, err := query.Parse(arg)
	if err != nil {
		return nil, err
	}
	return &Match{Filter: f}, nil
}

func (m *Match) Run(_ context.Context, docs []*document.Document) ([]*document.Document, error) {
	out := docs[:0]
	for _, d := range docs {
		if m.Filter.Match(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Sort orders the stream; equal documents keep their order.
type Sort struct{ Spec query.SortSpec }

func (s *Sort) Name() string { return StageSort }

func parseSort(arg document.Value) (Stage, error) {
	if !arg.IsDocument() || arg.Document().Len() == 0 {
		return nil, dberr.Invalid(StageSort, "expected a non-empty document")
	}
	spec, err := query.ParseSort(arg)
	if err != nil {
		return nil, err
	}
	return &Sort{Spec: spec}, nil
}

func (s *Sort) Run(_ context.Context, docs []*document.Document) ([]*document.Document, error) {
	s.Spec.Sort(docs)
	return docs, nil
}

// Project reshapes each document. Unlike find projections, _id is dropped
// unless the stage asks for it.
type Project struct{ Projection *query.Projection }

func (p *Project) Name() string { return StageProject }

func parseProject(arg document.Value) (Stage, error) {
	if !arg.IsDocument() || arg.Document().Len() == 0 {
		return nil, dberr.Invalid(StageProject, "expected a non-empty document")
	}
	proj, err := query.ParseProjection(arg, query.ProjectionOptions{Op: StageProject})
	if err != nil {
		return nil, err
	}
	return &Project{Projection: proj}, nil
}

func (p *Project) Run(_ context.Context, docs []*document.Document) ([]*document.Document, error) {
	for i, d := range docs {
		docs[i] = p.Projection.Apply(d)
	}
	return docs, nil
}

// Skip drops the first N documents.
type Skip struct{ N int }

func (s *Skip) Name() string { return StageSkip }

func (s *Skip) Run(_ context.Context, docs []*document.Document) ([]*document.Document, error) {
	if s.N >= len(docs) {
		return docs[:0], nil
	}
	return docs[s.N:], nil
}

// Limit keeps at most N documents.
type Limit struct{ N int }

func (l *Limit) Name() string { return StageLimit }

func (l *Limit) Run(_ context.Context, docs []*document.Document) ([]*document.Document, error) {
	if l.N < len(docs) {
		return docs[:l.N], nil
	}
	return docs, nil
}

func parseCap(name string, arg document.Value) (Stage, error) {
	if !arg.IsInteger() || arg.Number() < 0 {
		return nil, dberr.Invalid(name, "expected a non-negative integer, got %s", arg)
	}
	n := int(arg.Number())
	if name == StageSkip {
		return &Skip{N: n}, nil
	}
	if n == 0 {
		return nil, dberr.Invalid(name, "the limit must be positive")
	}
	return &Limit{N: n}, nil
}

// Count replaces the stream with a single {Field: n} document. An empty
// stream stays empty.
type Count struct{ Field string }

func (c *Count) Name() string { return StageCount }

func parseCount(arg document.Value) (Stage, error) {
	name := arg.Str()
	if !arg.IsString() || name == "" || strings.HasPrefix(name, "$") || strings.Contains(name, ".") ||
		name == document.IDField {
		return nil, dberr.Invalid(StageCount, "expected a plain field name, got %s", arg)
	}
	return &Count{Field: name}, nil
}

func (c *Count) Run(_ context.Context, docs []*document.Document) ([]*document.Document, error) {
	if len(docs) == 0 {
		return docs, nil
	}
	return []*document.Document{
		document.FromFields(document.E(c.Field, document.Int(int64(len(docs))))),
	}, nil
}
