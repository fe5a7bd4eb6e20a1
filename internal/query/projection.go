package query

import (
	"strings"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

type projectionMode uint8

const (
	modeNone projectionMode = iota
	modeInclude
	modeExclude
)

type idRule uint8

const (
	idDefault idRule = iota
	idInclude
	idExclude
)

// ProjectionOptions tune defaults that differ between find and $project.
type ProjectionOptions struct {
	// Op names the expression in validation errors.
	Op string

	// IncludeIDByDefault keeps _id unless the projection excludes it.
	IncludeIDByDefault bool
}

// Projection reshapes documents with an inclusion or exclusion mask plus
// computed fields. The _id field may be excluded under an inclusion mask.
type Projection struct {
	mode     projectionMode
	id       idRule
	idExpr   *Expr
	tree     *projNode
	computed []computedField
	opts     ProjectionOptions
}

type computedField struct {
	path string
	expr Expr
}

// projNode is one level of the mask. A selected node takes the whole value
// at its path; a computed node only reserves the path.
type projNode struct {
	children map[string]*projNode
	selected bool
	computed bool
}

// ParseProjection builds a Projection. A nil or empty spec yields nil, which
// Apply treats as "keep everything".
func ParseProjection(spec any, opts ProjectionOptions) (*Projection, error) {
	if opts.Op == "" {
		opts.Op = "projection"
	}
	if spec == nil {
		if opts.IncludeIDByDefault {
			return nil, nil
		}
		return &Projection{tree: &projNode{}, opts: opts}, nil
	}
	v, err := document.From(spec)
	if err != nil {
		return nil, dberr.Invalid(opts.Op, "%v", err)
	}
	if !v.IsDocument() {
		return nil, dberr.Invalid(opts.Op, "expected a document, got %s", v.Kind())
	}
	p := &Projection{tree: &projNode{}, opts: opts}
	if err := p.addFields("", v.Document()); err != nil {
		return nil, err
	}
	if p.mode == modeNone && p.id == idDefault && p.idExpr == nil && opts.IncludeIDByDefault {
		return nil, nil
	}
	if p.mode == modeNone && (p.id == idInclude || p.idExpr != nil) {
		// {_id: 1} alone keeps only the identifier.
		p.mode = modeInclude
	}
	return p, nil
}

func (p *Projection) addFields(prefix string, d *document.Document) error {
	for _, f := range d.Fields() {
		if strings.HasPrefix(f.Key, "$") {
			return dberr.Invalid(p.opts.Op, "field name %q may not start with '$'", f.Key)
		}
		path := f.Key
		if prefix != "" {
			path = prefix + "." + f.Key
		}
		if err := document.ValidatePath(path); err != nil {
			return dberr.Invalid(p.opts.Op, "%v", err)
		}
		if err := p.addField(path, f.Value); err != nil {
			return err
		}
	}
	return nil
}

func (p *Projection) addField(path string, v document.Value) error {
	switch v.Kind() {
	case document.KindBool, document.KindNumber:
		include := v.Truthy()
		if path == document.IDField {
			if include {
				p.id = idInclude
			} else {
				p.id = idExclude
			}
			return nil
		}
		return p.addFlag(path, include)
	case document.KindDocument:
		isOps, err := isOperatorDocument(v)
		if err != nil {
			return err
		}
		if !isOps && v.Document().Len() > 0 {
			// Nested form: {imdb: {rating: 1}} is "imdb.rating": 1.
			return p.addFields(path, v.Document())
		}
	}
	expr, err := ParseExpr(v)
	if err != nil {
		return err
	}
	if path == document.IDField {
		p.idExpr = &expr
		return nil
	}
	if p.mode == modeExclude {
		return dberr.Invalid(p.opts.Op, "cannot add computed field %q to an exclusion projection", path)
	}
	p.mode = modeInclude
	if err := p.reserve(path, true); err != nil {
		return err
	}
	p.computed = append(p.computed, computedField{path: path, expr: expr})
	return nil
}

func (p *Projection) addFlag(path string, include bool) error {
	want := modeExclude
	if include {
		want = modeInclude
	}
	if p.mode != modeNone && p.mode != want {
		return dberr.Invalid(p.opts.Op, "cannot mix inclusion and exclusion (field %q)", path)
	}
	p.mode = want
	return p.reserve(path, false)
}

// reserve records path in the mask and rejects prefix collisions such as
// "imdb" together with "imdb.rating".
func (p *Projection) reserve(path string, computed bool) error {
	node := p.tree
	segs := document.SplitPath(path)
	for i, seg := range segs {
		if node.selected || node.computed {
			return dberr.Invalid(p.opts.Op, "path collision at %q", path)
		}
		if node.children == nil {
			node.children = map[string]*projNode{}
		}
		child, ok := node.children[seg]
		if ok && i == len(segs)-1 {
			return dberr.Invalid(p.opts.Op, "path collision at %q", path)
		}
		if !ok {
			child = &projNode{}
			node.children[seg] = child
		}
		node = child
	}
	node.selected = !computed
	node.computed = computed
	return nil
}

// Apply returns a reshaped copy of doc. A nil Projection returns a plain
// copy.
func (p *Projection) Apply(doc *document.Document) *document.Document {
	if p == nil {
		return doc.Clone()
	}
	var out *document.Document
	switch p.mode {
	case modeInclude:
		out = includeFields(doc, p.tree, true)
	default:
		out = excludeFields(doc, p.tree)
	}

	keepID := p.id == idInclude || (p.id == idDefault && p.opts.IncludeIDByDefault)
	switch {
	case p.idExpr != nil:
		out.Delete(document.IDField)
		if v := p.idExpr.Eval(doc); !v.IsAbsent() {
			out.SetID(v)
		}
	case keepID:
		if id := doc.ID(); !id.IsAbsent() {
			out.SetID(id.Clone())
		}
	default:
		out.Delete(document.IDField)
	}

	for _, c := range p.computed {
		if v := c.expr.Eval(doc); !v.IsAbsent() {
			_ = out.SetPath(c.path, v)
		}
	}
	return out
}

// includeFields copies the selected paths of doc in document order.
func includeFields(doc *document.Document, node *projNode, top bool) *document.Document {
	out := document.New()
	for _, f := range doc.Fields() {
		if top && f.Key == document.IDField {
			continue
		}
		child, ok := node.children[f.Key]
		if !ok || child.computed {
			continue
		}
		if child.selected {
			out.Set(f.Key, f.Value.Clone())
			continue
		}
		if v, ok := includeNested(f.Value, child); ok {
			out.Set(f.Key, v)
		}
	}
	return out
}

func includeNested(v document.Value, node *projNode) (document.Value, bool) {
	switch v.Kind() {
	case document.KindDocument:
		return document.Doc(includeFields(v.Document(), node, false)), true
	case document.KindArray:
		items := make([]document.Value, 0, len(v.Array()))
		for _, e := range v.Array() {
			if sub, ok := includeNested(e, node); ok {
				items = append(items, sub)
			}
		}
		return document.Array(items...), true
	}
	return document.Value{}, false
}

func excludeFields(doc *document.Document, node *projNode) *document.Document {
	out := document.New()
	for _, f := range doc.Fields() {
		child, ok := node.children[f.Key]
		if !ok || child.computed {
			out.Set(f.Key, f.Value.Clone())
			continue
		}
		if child.selected {
			continue
		}
		out.Set(f.Key, excludeNested(f.Value, child))
	}
	return out
}

func excludeNested(v document.Value, node *projNode) document.Value {
	switch v.Kind() {
	case document.KindDocument:
		return document.Doc(excludeFields(v.Document(), node))
	case document.KindArray:
		items := make([]document.Value, len(v.Array()))
		for i, e := range v.Array() {
			items[i] = excludeNested(e, node)
		}
		return document.Array(items...)
	}
	return v.Clone()
}
