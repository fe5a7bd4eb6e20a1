package aggregate

import (
	"context"
	"strings"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

// Unwind emits one document per element of an array field.
//
// Documents whose field is absent, null or an empty array are dropped unless
// PreserveNullAndEmpty is set. A non-array value passes through unchanged.
type Unwind struct {
	Path                 string
	PreserveNullAndEmpty bool

	// IncludeArrayIndex, when set, names a field receiving the element index.
	IncludeArrayIndex string
}

func (u *Unwind) Name() string { return StageUnwind }

func parseUnwind(arg document.Value) (Stage, error) {
	u := &Unwind{}
	switch {
	case arg.IsString():
		u.Path = arg.Str()
	case arg.IsDocument():
		for _, f := range arg.Document().Fields() {
			switch f.Key {
			case "path":
				if !f.Value.IsString() {
					return nil, dberr.Invalid(StageUnwind, "path must be a string")
				}
				u.Path = f.Value.Str()
			case "preserveNullAndEmptyArrays":
				if f.Value.Kind() != document.KindBool {
					return nil, dberr.Invalid(StageUnwind, "preserveNullAndEmptyArrays must be a boolean")
				}
				u.PreserveNullAndEmpty = f.Value.Bool()
			case "includeArrayIndex":
				if !f.Value.IsString() || f.Value.Str() == "" || strings.HasPrefix(f.Value.Str(), "$") {
					return nil, dberr.Invalid(StageUnwind, "includeArrayIndex must be a field name")
				}
				u.IncludeArrayIndex = f.Value.Str()
			default:
				return nil, dberr.Invalid(StageUnwind, "unknown option %q", f.Key)
			}
		}
	default:
		return nil, dberr.Invalid(StageUnwind, "expected a field path or a document, got %s", arg.Kind())
	}
	if !strings.HasPrefix(u.Path, "$") {
		return nil, dberr.Invalid(StageUnwind, "path %q must start with '$'", u.Path)
	}
	u.Path = u.Path[1:]
	if err := document.ValidatePath(u.Path); err != nil {
		return nil, dberr.Invalid(StageUnwind, "%v", err)
	}
	return u, nil
}

func (u *Unwind) Run(_ context.Context, docs []*document.Document) ([]*document.Document, error) {
	out := make([]*document.Document, 0, len(docs))
	for _, d := range docs {
		v := d.Lookup(u.Path)
		switch {
		case v.IsArray() && len(v.Array()) > 0:
			for i, e := range v.Array() {
				cp := d.Clone()
				if err := cp.SetPath(u.Path, e.Clone()); err != nil {
					return nil, err
				}
				if err := u.setIndex(cp, document.Int(int64(i))); err != nil {
					return nil, err
				}
				out = append(out, cp)
			}
		case v.IsAbsent() || v.IsNull() || v.IsArray():
			if !u.PreserveNullAndEmpty {
				continue
			}
			if v.IsArray() {
				d.UnsetPath(u.Path)
			}
			if err := u.setIndex(d, document.Null()); err != nil {
				return nil, err
			}
			out = append(out, d)
		default:
			if err := u.setIndex(d, document.Null()); err != nil {
				return nil, err
			}
			out = append(out, d)
		}
	}
	return out, nil
}

func (u *Unwind) setIndex(d *document.Document, idx document.Value) error {
	if u.IncludeArrayIndex == "" {
		return nil
	}
	return d.SetPath(u.IncludeArrayIndex, idx)
}
