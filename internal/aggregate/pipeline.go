// Package aggregate evaluates aggregation pipelines over a stream of
// documents.
//
// A pipeline is an ordered list of single-key stage documents:
//
//	[
//	  {"$unwind": "$directors"},
//	  {"$group": {"_id": "$directors", "avgRating": {"$avg": "$imdb.rating"}}},
//	  {"$sort": {"avgRating": -1}},
//	  {"$project": {"director": "$_id", "avgRating": 1}}
//	]
//
// Stages run strictly in sequence, each over the full output of the previous
// one. Evaluation is all-or-nothing: a failing stage yields no output.
package aggregate

import (
	"context"
	"fmt"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

// Stage names.
const (
	StageMatch   = "$match"
	StageUnwind  = "$unwind"
	StageGroup   = "$group"
	StageSort    = "$sort"
	StageProject = "$project"
	StageSkip    = "$skip"
	StageLimit   = "$limit"
	StageCount   = "$count"
)

// Stage transforms a document stream. Stages own the slice they are given and
// may reuse it for their output.
type Stage interface {
	Name() string
	Run(ctx context.Context, docs []*document.Document) ([]*document.Document, error)
}

// Pipeline is a parsed, reusable sequence of stages.
type Pipeline struct {
	stages []Stage
}

// New assembles a pipeline from already-built stages.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Parse validates a pipeline expression: an array of stage documents.
func Parse(expr any) (*Pipeline, error) {
	if p, ok := expr.(*Pipeline); ok {
		return p, nil
	}
	if expr == nil {
		return New(), nil
	}
	v, err := document.From(expr)
	if err != nil {
		return nil, dberr.Invalid("pipeline", "%v", err)
	}
	if !v.IsArray() {
		return nil, dberr.Invalid("pipeline", "expected an array of stages, got %s", v.Kind())
	}
	p := &Pipeline{stages: make([]Stage, 0, len(v.Array()))}
	for i, sv := range v.Array() {
		if !sv.IsDocument() || sv.Document().Len() != 1 {
			return nil, dberr.Invalid("pipeline", "stage %d must be a document with exactly one field", i)
		}
		f := sv.Document().Fields()[0]
		stage, err := parseStage(f.Key, f.Value)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		p.stages = append(p.stages, stage)
	}
	return p, nil
}

func parseStage(name string, arg document.Value) (Stage, error) {
	switch name {
	case StageMatch:
		return parseMatch(arg)
	case StageUnwind:
		return parseUnwind(arg)
	case StageGroup:
		return parseGroup(arg)
	case StageSort:
		return parseSort(arg)
	case StageProject:
		return parseProject(arg)
	case StageSkip, StageLimit:
		return parseCap(name, arg)
	case StageCount:
		return parseCount(arg)
	}
	return nil, dberr.Invalid("pipeline", "unknown stage %q", name)
}

// Len returns the number of stages.
func (p *Pipeline) Len() int { return len(p.stages) }

// StageNames lists the stages in order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run evaluates the pipeline over docs. The input documents are not modified;
// every output document is a fresh copy.
func (p *Pipeline) Run(ctx context.Context, docs []*document.Document) ([]*document.Document, error) {
	stream := make([]*document.Document, len(docs))
	for i, d := range docs {
		stream[i] = d.Clone()
	}
	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := s.Run(ctx, stream)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
		stream = out
	}
	return stream, nil
}
