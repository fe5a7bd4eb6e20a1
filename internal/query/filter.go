// Package query parses and evaluates filters, projections and sort
// specifications.
//
// Filter expressions use the familiar document syntax, for example
//
//	{"imdb.rating": {"$gt": 8}, "genres": "Action"}
//	{"$or": [{"genres": {"$exists": false}}, {"genres": {"$size": 0}}]}
//
// which Parse turns into a tree of Filter nodes. Evaluating a Filter never
// modifies the document.
package query

import (
	"strings"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

// Operator names accepted in filters.
const (
	OpEq     = "$eq"
	OpNe     = "$ne"
	OpGt     = "$gt"
	OpGte    = "$gte"
	OpLt     = "$lt"
	OpLte    = "$lte"
	OpIn     = "$in"
	OpNin    = "$nin"
	OpAll    = "$all"
	OpSize   = "$size"
	OpExists = "$exists"

	OpAnd = "$and"
	OpOr  = "$or"
	OpNor = "$nor"
)

// Filter is a predicate over documents.
type Filter interface {
	Match(doc *document.Document) bool
}

// Condition is a predicate over the value found at a path. The value may be
// absent.
type Condition interface {
	MatchValue(v document.Value) bool
}

// All matches every document.
var All Filter = andFilter(nil)

type andFilter []Filter

func (f andFilter) Match(doc *document.Document) bool {
	for _, sub := range f {
		if !sub.Match(doc) {
			return false
		}
	}
	return true
}

type orFilter []Filter

func (f orFilter) Match(doc *document.Document) bool {
	for _, sub := range f {
		if sub.Match(doc) {
			return true
		}
	}
	return false
}

type norFilter []Filter

func (f norFilter) Match(doc *document.Document) bool {
	return !orFilter(f).Match(doc)
}

type fieldFilter struct {
	path  string
	segs  []string
	conds []Condition
}

func (f *fieldFilter) Match(doc *document.Document) bool {
	v := document.LookupSegments(document.Doc(doc), f.segs)
	for _, c := range f.conds {
		if !c.MatchValue(v) {
			return false
		}
	}
	return true
}

// Parse builds a Filter from an expression. A nil expression or an empty
// document matches everything.
func Parse(expr any) (Filter, error) {
	if expr == nil {
		return All, nil
	}
	if f, ok := expr.(Filter); ok {
		return f, nil
	}
	v, err := document.From(expr)
	if err != nil {
		return nil, dberr.Invalid("filter", "%v", err)
	}
	if v.IsNull() {
		return All, nil
	}
	if !v.IsDocument() {
		return nil, dberr.Invalid("filter", "expected a document, got %s", v.Kind())
	}
	return parseDocument(v.Document())
}

func parseDocument(d *document.Document) (Filter, error) {
	nodes := make(andFilter, 0, d.Len())
	for _, f := range d.Fields() {
		switch f.Key {
		case OpAnd, OpOr, OpNor:
			children, err := parseClauses(f.Key, f.Value)
			if err != nil {
				return nil, err
			}
			switch f.Key {
			case OpAnd:
				nodes = append(nodes, andFilter(children))
			case OpOr:
				nodes = append(nodes, orFilter(children))
			default:
				nodes = append(nodes, norFilter(children))
			}
			continue
		}
		if strings.HasPrefix(f.Key, "$") {
			return nil, dberr.Invalid("filter", "unknown top-level operator %q", f.Key)
		}
		if err := document.ValidatePath(f.Key); err != nil {
			return nil, dberr.Invalid("filter", "%v", err)
		}
		conds, err := parseConditions(f.Value)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &fieldFilter{path: f.Key, segs: document.SplitPath(f.Key), conds: conds})
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return nodes, nil
}

func parseClauses(op string, v document.Value) ([]Filter, error) {
	if !v.IsArray() || len(v.Array()) == 0 {
		return nil, dberr.Invalid("filter", "%s expects a non-empty array of documents", op)
	}
	children := make([]Filter, 0, len(v.Array()))
	for i, item := range v.Array() {
		if !item.IsDocument() {
			return nil, dberr.Invalid("filter", "%s element %d is a %s, not a document", op, i, item.Kind())
		}
		child, err := parseDocument(item.Document())
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// isOperatorDocument reports whether v is {"$op": ...}. Mixing operator and
// plain keys is rejected.
func isOperatorDocument(v document.Value) (bool, error) {
	if !v.IsDocument() || v.Document().Len() == 0 {
		return false, nil
	}
	keys := v.Document().Keys()
	ops := 0
	for _, k := range keys {
		if strings.HasPrefix(k, "$") {
			ops++
		}
	}
	switch ops {
	case 0:
		return false, nil
	case len(keys):
		return true, nil
	}
	return false, dberr.Invalid("filter", "cannot mix operators and field names in %s", v)
}

// parseConditions turns the value side of {field: value} into conditions.
func parseConditions(v document.Value) ([]Condition, error) {
	isOps, err := isOperatorDocument(v)
	if err != nil {
		return nil, err
	}
	if !isOps {
		return []Condition{eqCond{v}}, nil
	}
	var conds []Condition
	for _, f := range v.Document().Fields() {
		c, err := parseOperator(f.Key, f.Value)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func parseOperator(op string, arg document.Value) (Condition, error) {
	switch op {
	case OpEq:
		return eqCond{arg}, nil
	case OpNe:
		return notCond{eqCond{arg}}, nil
	case OpGt, OpGte, OpLt, OpLte:
		return cmpCond{op: op, rhs: arg}, nil
	case OpIn, OpNin:
		if !arg.IsArray() {
			return nil, dberr.Invalid("filter", "%s expects an array, got %s", op, arg.Kind())
		}
		c := inCond{values: arg.Array()}
		if op == OpNin {
			return notCond{c}, nil
		}
		return c, nil
	case OpAll:
		if !arg.IsArray() {
			return nil, dberr.Invalid("filter", "$all expects an array, got %s", arg.Kind())
		}
		return allCond{values: arg.Array()}, nil
	case OpSize:
		if !arg.IsInteger() || arg.Number() < 0 {
			return nil, dberr.Invalid("filter", "$size expects a non-negative integer, got %s", arg)
		}
		return sizeCond{n: int(arg.Number())}, nil
	case OpExists:
		switch arg.Kind() {
		case document.KindBool, document.KindNumber:
			return existsCond{want: arg.Truthy()}, nil
		}
		return nil, dberr.Invalid("filter", "$exists expects a boolean, got %s", arg.Kind())
	}
	return nil, dberr.Invalid("filter", "unknown operator %q", op)
}

// ParseCondition parses a condition on a single value, as used by $pull.
// Operator documents become their conditions; anything else is an exact
// equality test.
func ParseCondition(v document.Value) (Condition, error) {
	isOps, err := isOperatorDocument(v)
	if err != nil {
		return nil, err
	}
	if !isOps {
		return exactCond{v}, nil
	}
	conds, err := parseConditions(v)
	if err != nil {
		return nil, err
	}
	return allOf(conds), nil
}

type allOf []Condition

func (c allOf) MatchValue(v document.Value) bool {
	for _, sub := range c {
		if !sub.MatchValue(v) {
			return false
		}
	}
	return true
}

type exactCond struct{ want document.Value }

func (c exactCond) MatchValue(v document.Value) bool { return document.Equal(v, c.want) }

// eqCond matches an equal value, or an array holding an equal element.
type eqCond struct{ want document.Value }

func (c eqCond) MatchValue(v document.Value) bool {
	if v.IsAbsent() {
		return false
	}
	if document.Equal(v, c.want) {
		return true
	}
	return v.IsArray() && v.Contains(c.want)
}

type notCond struct{ inner Condition }

func (c notCond) MatchValue(v document.Value) bool { return !c.inner.MatchValue(v) }

// cmpCond only matches number/number or string/string pairs. An array field
// matches when any element does.
type cmpCond struct {
	op  string
	rhs document.Value
}

func (c cmpCond) MatchValue(v document.Value) bool {
	if c.matchScalar(v) {
		return true
	}
	for _, e := range v.Array() {
		if c.matchScalar(e) {
			return true
		}
	}
	return false
}

func (c cmpCond) matchScalar(v document.Value) bool {
	if !document.Comparable(v, c.rhs) {
		return false
	}
	r := document.Compare(v, c.rhs)
	switch c.op {
	case OpGt:
		return r > 0
	case OpGte:
		return r >= 0
	case OpLt:
		return r < 0
	default:
		return r <= 0
	}
}

type inCond struct{ values []document.Value }

func (c inCond) MatchValue(v document.Value) bool {
	for _, want := range c.values {
		if (eqCond{want}).MatchValue(v) {
			return true
		}
	}
	return false
}

// allCond requires an array holding every listed value. An empty list
// matches nothing.
type allCond struct{ values []document.Value }

func (c allCond) MatchValue(v document.Value) bool {
	if !v.IsArray() || len(c.values) == 0 {
		return false
	}
	for _, want := range c.values {
		if !v.Contains(want) {
			return false
		}
	}
	return true
}

type sizeCond struct{ n int }

func (c sizeCond) MatchValue(v document.Value) bool {
	return v.IsArray() && len(v.Array()) == c.n
}

// existsCond treats null and empty arrays as present.
type existsCond struct{ want bool }

func (c existsCond) MatchValue(v document.Value) bool { return !v.IsAbsent() == c.want }

// EqualitySeed collects the top-level equality conditions of f into a
// document, for seeding upserts. Two conditions on the same or overlapping
// paths, such as "a" and "a.b", are a validation error.
func EqualitySeed(f Filter) (*document.Document, error) {
	seed := document.New()
	if err := collectSeed(f, seed); err != nil {
		return nil, err
	}
	return seed, nil
}

func collectSeed(f Filter, seed *document.Document) error {
	switch n := f.(type) {
	case andFilter:
		for _, sub := range n {
			if err := collectSeed(sub, seed); err != nil {
				return err
			}
		}
	case *fieldFilter:
		for _, c := range n.conds {
			eq, ok := c.(eqCond)
			if !ok {
				continue
			}
			if !seed.Lookup(n.path).IsAbsent() {
				return dberr.Invalid("upsert", "path %q is matched more than once", n.path)
			}
			if err := seed.SetPath(n.path, eq.want.Clone()); err != nil {
				return dberr.Invalid("upsert", "%v", err)
			}
		}
	}
	return nil
}
