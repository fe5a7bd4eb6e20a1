package document

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrEmptyPath is returned for an empty field path or an empty segment.
	ErrEmptyPath = errors.New("empty field path")
	// ErrPathConflict is returned when a write has to pass through a value
	// that cannot hold children.
	ErrPathConflict = errors.New("path traverses a non-container value")
)

// SplitPath splits a dotted field path into segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// ValidatePath checks that path has no empty segments.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	for _, seg := range SplitPath(path) {
		if seg == "" {
			return fmt.Errorf("%w: %q", ErrEmptyPath, path)
		}
	}
	return nil
}

func arrayIndex(seg string) (int, bool) {
	if seg == "" || (len(seg) > 1 && seg[0] == '0') {
		return 0, false
	}
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// Lookup resolves a dotted path. Embedded documents are entered by key and
// arrays by numeric segment; anything else resolves to absent.
func (d *Document) Lookup(path string) Value {
	return LookupSegments(Doc(d), SplitPath(path))
}

// LookupSegments resolves pre-split path segments against v.
func LookupSegments(v Value, segs []string) Value {
	for _, seg := range segs {
		switch v.kind {
		case KindDocument:
			v = v.doc.Get(seg)
		case KindArray:
			i, ok := arrayIndex(seg)
			if !ok || i >= len(v.arr) {
				return Absent()
			}
			v = v.arr[i]
		default:
			return Absent()
		}
		if v.IsAbsent() {
			return v
		}
	}
	return v
}

// SetPath assigns v at a dotted path, creating intermediate documents for
// missing segments. Arrays addressed past their end are padded with nulls.
func (d *Document) SetPath(path string, v Value) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	_, err := setSegments(Doc(d), SplitPath(path), v, path)
	return err
}

func setSegments(container Value, segs []string, v Value, path string) (Value, error) {
	head, rest := segs[0], segs[1:]
	switch container.kind {
	case KindDocument:
		d := container.doc
		if len(rest) == 0 {
			d.Set(head, v)
			return container, nil
		}
		child := d.Get(head)
		if child.IsAbsent() {
			child = Doc(New())
		}
		updated, err := setSegments(child, rest, v, path)
		if err != nil {
			return container, err
		}
		d.Set(head, updated)
		return container, nil
	case KindArray:
		i, ok := arrayIndex(head)
		if !ok {
			return container, fmt.Errorf("cannot create field %q in array at %q: %w", head, path, ErrPathConflict)
		}
		arr := make([]Value, len(container.arr), max(len(container.arr), i+1))
		copy(arr, container.arr)
		padded := false
		for len(arr) <= i {
			arr = append(arr, Null())
			padded = true
		}
		if len(rest) == 0 {
			arr[i] = v
			return Array(arr...), nil
		}
		child := arr[i]
		if padded {
			child = Doc(New())
		}
		updated, err := setSegments(child, rest, v, path)
		if err != nil {
			return container, err
		}
		arr[i] = updated
		return Array(arr...), nil
	default:
		return container, fmt.Errorf("cannot create field %q in %s value at %q: %w", head, container.kind, path, ErrPathConflict)
	}
}

// UnsetPath removes the value at a dotted path and reports whether anything
// changed. Array elements are replaced by null rather than removed so that
// sibling positions stay stable.
func (d *Document) UnsetPath(path string) bool {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return false
	}
	_, changed := unsetSegments(Doc(d), segs)
	return changed
}

func unsetSegments(container Value, segs []string) (Value, bool) {
	head, rest := segs[0], segs[1:]
	switch container.kind {
	case KindDocument:
		if len(rest) == 0 {
			return container, container.doc.Delete(head)
		}
		child := container.doc.Get(head)
		updated, changed := unsetSegments(child, rest)
		if changed {
			container.doc.Set(head, updated)
		}
		return container, changed
	case KindArray:
		i, ok := arrayIndex(head)
		if !ok || i >= len(container.arr) {
			return container, false
		}
		arr := make([]Value, len(container.arr))
		copy(arr, container.arr)
		if len(rest) == 0 {
			if arr[i].IsNull() {
				return container, false
			}
			arr[i] = Null()
			return Array(arr...), true
		}
		updated, changed := unsetSegments(arr[i], rest)
		if !changed {
			return container, false
		}
		arr[i] = updated
		return Array(arr...), true
	}
	return container, false
}
