package query

import (
	"sort"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/pkg/document"
	"go.mongodb.org/mongo-driver/bson"
)

// SortKey orders documents on one field.
type SortKey struct {
	Path string
	Desc bool
	segs []string
}

// SortSpec is an ordered list of sort keys. Earlier keys take precedence.
type SortSpec []SortKey

// Asc and Desc build sort keys in code.
func Asc(path string) SortKey { return SortKey{Path: path, segs: document.SplitPath(path)} }

func Desc(path string) SortKey {
	return SortKey{Path: path, Desc: true, segs: document.SplitPath(path)}
}

// ParseSort builds a SortSpec from {field: 1|-1, ...}. Unordered maps with
// more than one key are rejected since their order is undefined.
func ParseSort(expr any) (SortSpec, error) {
	switch x := expr.(type) {
	case nil:
		return nil, nil
	case SortSpec:
		return x, nil
	case bson.M:
		if len(x) > 1 {
			return nil, dberr.Invalid("sort", "multi-key sort needs an ordered document")
		}
	case map[string]any:
		if len(x) > 1 {
			return nil, dberr.Invalid("sort", "multi-key sort needs an ordered document")
		}
	}
	v, err := document.From(expr)
	if err != nil {
		return nil, dberr.Invalid("sort", "%v", err)
	}
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsDocument() {
		return nil, dberr.Invalid("sort", "expected a document, got %s", v.Kind())
	}
	spec := make(SortSpec, 0, v.Document().Len())
	for _, f := range v.Document().Fields() {
		if err := document.ValidatePath(f.Key); err != nil {
			return nil, dberr.Invalid("sort", "%v", err)
		}
		if !f.Value.IsNumber() || (f.Value.Number() != 1 && f.Value.Number() != -1) {
			return nil, dberr.Invalid("sort", "direction for %q must be 1 or -1, got %s", f.Key, f.Value)
		}
		if f.Value.Number() < 0 {
			spec = append(spec, Desc(f.Key))
		} else {
			spec = append(spec, Asc(f.Key))
		}
	}
	return spec, nil
}

// Compare orders a before b (<0), after b (>0) or as equal (0). Missing
// fields sort before every present value.
func (s SortSpec) Compare(a, b *document.Document) int {
	for _, k := range s {
		segs := k.segs
		if segs == nil {
			segs = document.SplitPath(k.Path)
		}
		r := document.Compare(
			document.LookupSegments(document.Doc(a), segs),
			document.LookupSegments(document.Doc(b), segs),
		)
		if r == 0 {
			continue
		}
		if k.Desc {
			return -r
		}
		return r
	}
	return 0
}

// Sort orders docs in place. Equal documents keep their relative order.
func (s SortSpec) Sort(docs []*document.Document) {
	if len(s) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return s.Compare(docs[i], docs[j]) < 0
	})
}
