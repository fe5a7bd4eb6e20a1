// Package update parses update specifications such as
//
//	{"$set": {"imdb.rating": 9}, "$inc": {"views": 1}, "$addToSet": {"genres": "GenZ"}}
//
// and applies them to documents. Apply works on a copy, so a document is
// either fully updated or left untouched.
package update

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/internal/query"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

// Operator names.
const (
	OpSet      = "$set"
	OpUnset    = "$unset"
	OpInc      = "$inc"
	OpAddToSet = "$addToSet"
	OpPush     = "$push"
	OpPull     = "$pull"

	modEach = "$each"
)

// ErrNotNumeric is reported when $inc meets a non-numeric value.
var ErrNotNumeric = errors.New("cannot increment a non-numeric value")

// ErrNotArray is reported when an array operator meets a non-array value.
var ErrNotArray = errors.New("value is not an array")

type action struct {
	op    string
	path  string
	value document.Value
	each  []document.Value
	cond  query.Condition
}

// Spec is a parsed update specification.
type Spec struct {
	actions []action
}

// Parse validates expr and returns the update it describes.
func Parse(expr any) (*Spec, error) {
	if s, ok := expr.(*Spec); ok {
		return s, nil
	}
	v, err := document.From(expr)
	if err != nil {
		return nil, dberr.Invalid("update", "%v", err)
	}
	if !v.IsDocument() {
		return nil, dberr.Invalid("update", "expected a document, got %s", v.Kind())
	}
	d := v.Document()
	if d.Len() == 0 {
		return nil, dberr.Invalid("update", "update document is empty")
	}

	spec := &Spec{}
	var seen []string
	for _, f := range d.Fields() {
		if !strings.HasPrefix(f.Key, "$") {
			return nil, dberr.Invalid("update", "%q is not an update operator", f.Key)
		}
		if !f.Value.IsDocument() {
			return nil, dberr.Invalid("update", "%s expects a document, got %s", f.Key, f.Value.Kind())
		}
		for _, pf := range f.Value.Document().Fields() {
			path := pf.Key
			if err := document.ValidatePath(path); err != nil {
				return nil, dberr.Invalid("update", "%s: %v", f.Key, err)
			}
			if path == document.IDField || strings.HasPrefix(path, document.IDField+".") {
				return nil, dberr.Invalid("update", "%s may not modify _id", f.Key)
			}
			for _, prev := range seen {
				if conflicts(prev, path) {
					return nil, dberr.Invalid("update", "updating %q would conflict with %q", path, prev)
				}
			}
			seen = append(seen, path)

			a, err := parseAction(f.Key, path, pf.Value)
			if err != nil {
				return nil, err
			}
			spec.actions = append(spec.actions, a)
		}
	}
	return spec, nil
}

func parseAction(op, path string, v document.Value) (action, error) {
	a := action{op: op, path: path, value: v}
	switch op {
	case OpSet, OpUnset:
	case OpInc:
		if !v.IsNumber() {
			return a, dberr.Invalid("update", "$inc of %q needs a number, got %s", path, v.Kind())
		}
	case OpAddToSet, OpPush:
		a.each = []document.Value{v}
		if v.IsDocument() && v.Document().Has(modEach) {
			if v.Document().Len() != 1 {
				return a, dberr.Invalid("update", "%s of %q: unsupported modifiers with $each", op, path)
			}
			each := v.Document().Get(modEach)
			if !each.IsArray() {
				return a, dberr.Invalid("update", "$each of %q needs an array, got %s", path, each.Kind())
			}
			a.each = each.Array()
		}
	case OpPull:
		cond, err := query.ParseCondition(v)
		if err != nil {
			return a, err
		}
		a.cond = cond
	default:
		return a, dberr.Invalid("update", "unknown update operator %q", op)
	}
	return a, nil
}

// conflicts reports whether one path is equal to or a prefix of the other.
func conflicts(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	return strings.HasPrefix(b, a+".")
}

// Apply computes the updated form of doc. It returns the new document, whether
// it differs from doc, and an error when the update cannot be applied to this
// particular document. doc itself is never modified.
func (s *Spec) Apply(doc *document.Document) (*document.Document, bool, error) {
	out := doc.Clone()
	for _, a := range s.actions {
		if err := a.apply(out); err != nil {
			return nil, false, err
		}
	}
	return out, !out.Equal(doc), nil
}

// ApplyInsert applies the update to a freshly seeded document, as upserts do.
func (s *Spec) ApplyInsert(seed *document.Document) (*document.Document, error) {
	out, _, err := s.Apply(seed)
	return out, err
}

func (a action) apply(doc *document.Document) error {
	current := doc.Lookup(a.path)
	switch a.op {
	case OpSet:
		return wrapPath(a, doc.SetPath(a.path, a.value.Clone()))
	case OpUnset:
		doc.UnsetPath(a.path)
		return nil
	case OpInc:
		switch {
		case current.IsAbsent():
			return wrapPath(a, doc.SetPath(a.path, a.value))
		case !current.IsNumber():
			return fmt.Errorf("%s of %q (%s): %w", a.op, a.path, current.Kind(), ErrNotNumeric)
		}
		return wrapPath(a, doc.SetPath(a.path, document.Number(current.Number()+a.value.Number())))
	case OpAddToSet, OpPush:
		var items []document.Value
		switch {
		case current.IsAbsent():
		case current.IsArray():
			items = append(items, current.Array()...)
		default:
			return fmt.Errorf("%s of %q (%s): %w", a.op, a.path, current.Kind(), ErrNotArray)
		}
		for _, e := range a.each {
			if a.op == OpAddToSet && document.Array(items...).Contains(e) {
				continue
			}
			items = append(items, e.Clone())
		}
		return wrapPath(a, doc.SetPath(a.path, document.Array(items...)))
	case OpPull:
		if current.IsAbsent() {
			return nil
		}
		if !current.IsArray() {
			return fmt.Errorf("%s of %q (%s): %w", a.op, a.path, current.Kind(), ErrNotArray)
		}
		kept := make([]document.Value, 0, len(current.Array()))
		for _, e := range current.Array() {
			if !a.cond.MatchValue(e) {
				kept = append(kept, e)
			}
		}
		if len(kept) == len(current.Array()) {
			return nil
		}
		return wrapPath(a, doc.SetPath(a.path, document.Array(kept...)))
	}
	return nil
}

func wrapPath(a action, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s of %q: %w", a.op, a.path, err)
}
