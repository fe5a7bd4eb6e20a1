package query

import (
	"strings"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

type exprKind uint8

const (
	exprLiteral exprKind = iota
	exprField
	exprRoot
	exprObject
	exprArray
)

// Expr is a value expression used by projections and aggregation stages:
// a field reference ("$imdb.rating"), the current document ("$$ROOT"), a
// literal, or an object/array whose members are expressions.
type Expr struct {
	kind    exprKind
	path    string
	segs    []string
	literal document.Value
	fields  []namedExpr
	items   []Expr
}

type namedExpr struct {
	name string
	expr Expr
}

// Literal returns an expression that always evaluates to v.
func Literal(v document.Value) Expr { return Expr{kind: exprLiteral, literal: v} }

// FieldRef returns an expression that resolves path against the document.
func FieldRef(path string) Expr {
	return Expr{kind: exprField, path: path, segs: document.SplitPath(path)}
}

// ParseExpr parses an expression value.
func ParseExpr(v document.Value) (Expr, error) {
	switch v.Kind() {
	case document.KindString:
		s := v.Str()
		if !strings.HasPrefix(s, "$") {
			return Literal(v), nil
		}
		if s == "$$ROOT" || s == "$$CURRENT" {
			return Expr{kind: exprRoot}, nil
		}
		path := s[1:]
		if strings.HasPrefix(path, "$") {
			return Expr{}, dberr.Invalid("expression", "unknown variable %q", s)
		}
		if err := document.ValidatePath(path); err != nil {
			return Expr{}, dberr.Invalid("expression", "field reference %q: %v", s, err)
		}
		return FieldRef(path), nil
	case document.KindDocument:
		d := v.Document()
		keys := d.Keys()
		if len(keys) > 0 && strings.HasPrefix(keys[0], "$") {
			if len(keys) == 1 && keys[0] == "$literal" {
				return Literal(d.Get("$literal")), nil
			}
			return Expr{}, dberr.Invalid("expression", "unsupported operator %q", keys[0])
		}
		e := Expr{kind: exprObject}
		for _, f := range d.Fields() {
			if strings.HasPrefix(f.Key, "$") {
				return Expr{}, dberr.Invalid("expression", "field name %q may not start with '$'", f.Key)
			}
			sub, err := ParseExpr(f.Value)
			if err != nil {
				return Expr{}, err
			}
			e.fields = append(e.fields, namedExpr{name: f.Key, expr: sub})
		}
		return e, nil
	case document.KindArray:
		e := Expr{kind: exprArray}
		for _, item := range v.Array() {
			sub, err := ParseExpr(item)
			if err != nil {
				return Expr{}, err
			}
			e.items = append(e.items, sub)
		}
		return e, nil
	}
	return Literal(v), nil
}

// IsFieldRef reports whether e is a plain field reference.
func (e Expr) IsFieldRef() bool { return e.kind == exprField }

// Path returns the referenced path of a field reference.
func (e Expr) Path() string { return e.path }

// IsLiteral reports whether e is constant.
func (e Expr) IsLiteral() bool { return e.kind == exprLiteral }

// LiteralValue returns the constant of a literal expression.
func (e Expr) LiteralValue() document.Value { return e.literal }

// Eval evaluates e against doc. Field references that do not resolve yield
// absent. The result never aliases doc.
func (e Expr) Eval(doc *document.Document) document.Value {
	switch e.kind {
	case exprField:
		return document.LookupSegments(document.Doc(doc), e.segs).Clone()
	case exprRoot:
		return document.Doc(doc.Clone())
	case exprObject:
		out := document.New()
		for _, f := range e.fields {
			out.Set(f.name, f.expr.Eval(doc))
		}
		return document.Doc(out)
	case exprArray:
		items := make([]document.Value, 0, len(e.items))
		for _, it := range e.items {
			v := it.Eval(doc)
			if v.IsAbsent() {
				v = document.Null()
			}
			items = append(items, v)
		}
		return document.Array(items...)
	}
	return e.literal.Clone()
}
