package aggregate

import (
	"context"
	"strings"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/internal/query"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

// Accumulator names.
const (
	AccSum      = "$sum"
	AccAvg      = "$avg"
	AccMin      = "$min"
	AccMax      = "$max"
	AccFirst    = "$first"
	AccLast     = "$last"
	AccPush     = "$push"
	AccAddToSet = "$addToSet"
	AccCount    = "$count"
)

// Group partitions the stream by Key and emits one document per distinct key,
// in the order keys were first seen. The key is stored under _id.
type Group struct {
	Key    query.Expr
	Fields []GroupField
}

// GroupField is one named accumulator of a Group.
type GroupField struct {
	Name string
	Op   string
	Expr query.Expr
}

func (g *Group) Name() string { return StageGroup }

func parseGroup(arg document.Value) (Stage, error) {
	if !arg.IsDocument() {
		return nil, dberr.Invalid(StageGroup, "expected a document, got %s", arg.Kind())
	}
	d := arg.Document()
	if !d.Has(document.IDField) {
		return nil, dberr.Invalid(StageGroup, "a group specification must include an _id")
	}
	g := &Group{}
	for _, f := range d.Fields() {
		if f.Key == document.IDField {
			key, err := query.ParseExpr(f.Value)
			if err != nil {
				return nil, err
			}
			g.Key = key
			continue
		}
		if strings.HasPrefix(f.Key, "$") || strings.Contains(f.Key, ".") {
			return nil, dberr.Invalid(StageGroup, "invalid output field name %q", f.Key)
		}
		if !f.Value.IsDocument() || f.Value.Document().Len() != 1 {
			return nil, dberr.Invalid(StageGroup, "field %q must be a single accumulator document", f.Key)
		}
		acc := f.Value.Document().Fields()[0]
		gf := GroupField{Name: f.Key, Op: acc.Key}
		switch acc.Key {
		case AccSum, AccAvg, AccMin, AccMax, AccFirst, AccLast, AccPush, AccAddToSet:
			expr, err := query.ParseExpr(acc.Value)
			if err != nil {
				return nil, err
			}
			gf.Expr = expr
		case AccCount:
			if !acc.Value.IsDocument() || acc.Value.Document().Len() != 0 {
				return nil, dberr.Invalid(StageGroup, "$count of %q takes an empty document", f.Key)
			}
		default:
			return nil, dberr.Invalid(StageGroup, "unknown accumulator %q for field %q", acc.Key, f.Key)
		}
		g.Fields = append(g.Fields, gf)
	}
	return g, nil
}

type groupState struct {
	key  document.Value
	accs []accumulator
}

func (g *Group) Run(ctx context.Context, docs []*document.Document) ([]*document.Document, error) {
	index := map[string]*groupState{}
	var order []*groupState
	for i, d := range docs {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		key := g.Key.Eval(d)
		if key.IsAbsent() {
			key = document.Null()
		}
		k := key.Key()
		st, ok := index[k]
		if !ok {
			st = &groupState{key: key, accs: make([]accumulator, len(g.Fields))}
			for j, f := range g.Fields {
				st.accs[j] = newAccumulator(f.Op)
			}
			index[k] = st
			order = append(order, st)
		}
		for j, f := range g.Fields {
			var v document.Value
			if f.Op != AccCount {
				v = f.Expr.Eval(d)
			}
			st.accs[j].add(v)
		}
	}

	out := make([]*document.Document, 0, len(order))
	for _, st := range order {
		doc := document.New()
		doc.Set(document.IDField, st.key)
		for j, f := range g.Fields {
			if v := st.accs[j].result(); !v.IsAbsent() {
				doc.Set(f.Name, v)
			}
		}
		out = append(out, doc)
	}
	return out, nil
}

type accumulator interface {
	add(v document.Value)
	result() document.Value
}

func newAccumulator(op string) accumulator {
	switch op {
	case AccSum:
		return &sumAcc{}
	case AccAvg:
		return &avgAcc{}
	case AccMin:
		return &extremeAcc{want: -1}
	case AccMax:
		return &extremeAcc{want: 1}
	case AccFirst:
		return &firstAcc{}
	case AccLast:
		return &lastAcc{}
	case AccPush:
		return &pushAcc{}
	case AccAddToSet:
		return &pushAcc{unique: true}
	default:
		return &countAcc{}
	}
}

// sumAcc adds numeric contributions and skips everything else, arrays
// included. The sum of nothing is 0.
type sumAcc struct{ total float64 }

func (a *sumAcc) add(v document.Value) {
	if v.IsNumber() {
		a.total += v.Number()
	}
}

func (a *sumAcc) result() document.Value { return document.Number(a.total) }

// avgAcc ignores non-numeric values and yields absent for an empty group.
type avgAcc struct {
	total float64
	n     int
}

func (a *avgAcc) add(v document.Value) {
	if v.IsNumber() {
		a.total += v.Number()
		a.n++
	}
}

func (a *avgAcc) result() document.Value {
	if a.n == 0 {
		return document.Absent()
	}
	return document.Number(a.total / float64(a.n))
}

// extremeAcc implements $min (want -1) and $max (want 1) over non-null
// values. A group of nothing but nulls yields null.
type extremeAcc struct {
	want int
	best document.Value
}

func (a *extremeAcc) add(v document.Value) {
	if v.IsAbsent() || v.IsNull() {
		return
	}
	if a.best.IsAbsent() || document.Compare(v, a.best)*a.want > 0 {
		a.best = v
	}
}

func (a *extremeAcc) result() document.Value {
	if a.best.IsAbsent() {
		return document.Null()
	}
	return a.best
}

type firstAcc struct {
	set bool
	v   document.Value
}

func (a *firstAcc) add(v document.Value) {
	if !a.set {
		a.set, a.v = true, v
	}
}

func (a *firstAcc) result() document.Value { return nullIfAbsent(a.v) }

type lastAcc struct{ v document.Value }

func (a *lastAcc) add(v document.Value) { a.v = v }

func (a *lastAcc) result() document.Value { return nullIfAbsent(a.v) }

type pushAcc struct {
	unique bool
	items  []document.Value
}

func (a *pushAcc) add(v document.Value) {
	if v.IsAbsent() {
		return
	}
	if a.unique && document.Array(a.items...).Contains(v) {
		return
	}
	a.items = append(a.items, v)
}

func (a *pushAcc) result() document.Value { return document.Array(a.items...) }

type countAcc struct{ n int64 }

func (a *countAcc) add(document.Value) { a.n++ }

func (a *countAcc) result() document.Value { return document.Int(a.n) }

func nullIfAbsent(v document.Value) document.Value {
	if v.IsAbsent() {
		return document.Null()
	}
	return v
}
