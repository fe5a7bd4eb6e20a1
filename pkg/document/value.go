// Package document is the value model shared by the flindoc engine and its client.
//
// A Value is a tagged variant over absent, null, boolean, number, string,
// array, embedded document and ObjectID. The zero Value is absent: it is what a
// path lookup yields when the path does not resolve, and it never appears as a
// stored field.
package document

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindDocument
	KindObjectID
)

var kindNames = [...]string{
	KindAbsent:   "absent",
	KindNull:     "null",
	KindBool:     "bool",
	KindNumber:   "number",
	KindString:   "string",
	KindArray:    "array",
	KindDocument: "document",
	KindObjectID: "objectId",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is an immutable-by-convention document value.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	doc  *Document
	oid  ObjectID
}

// Absent returns the value of a path that does not resolve.
func Absent() Value { return Value{} }

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int wraps an integer as a number.
func Int(i int64) Value { return Value{kind: KindNumber, n: float64(i)} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array wraps a sequence of values. The slice is retained, not copied.
func Array(vs ...Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{kind: KindArray, arr: vs}
}

// Doc wraps an embedded document. A nil document becomes an empty one.
func Doc(d *Document) Value {
	if d == nil {
		d = New()
	}
	return Value{kind: KindDocument, doc: d}
}

// OID wraps an ObjectID.
func OID(id ObjectID) Value { return Value{kind: KindObjectID, oid: id} }

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsAbsent() bool   { return v.kind == KindAbsent }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) IsNumber() bool   { return v.kind == KindNumber }
func (v Value) IsString() bool   { return v.kind == KindString }
func (v Value) IsArray() bool    { return v.kind == KindArray }
func (v Value) IsDocument() bool { return v.kind == KindDocument }

// Bool returns the boolean payload, false for other kinds.
func (v Value) Bool() bool { return v.kind == KindBool && v.b }

// Number returns the numeric payload, 0 for other kinds.
func (v Value) Number() float64 {
	if v.kind != KindNumber {
		return 0
	}
	return v.n
}

// Str returns the string payload, "" for other kinds.
func (v Value) Str() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// Array returns the elements of an array value, nil for other kinds.
// Callers must not modify the returned slice.
func (v Value) Array() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// Document returns the embedded document, nil for other kinds.
func (v Value) Document() *Document {
	if v.kind != KindDocument {
		return nil
	}
	return v.doc
}

// ObjectID returns the identifier payload, the zero ObjectID for other kinds.
func (v Value) ObjectID() ObjectID {
	if v.kind != KindObjectID {
		return NilObjectID
	}
	return v.oid
}

// IsInteger reports whether v is a finite number with no fractional part.
func (v Value) IsInteger() bool {
	return v.kind == KindNumber && !math.IsInf(v.n, 0) && v.n == math.Trunc(v.n)
}

// Truthy follows the flag conventions used by projections and $exists:
// booleans are themselves, numbers are true when non-zero, null and absent are
// false and anything else is true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindAbsent, KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0
	default:
		return true
	}
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		out := make([]Value, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Clone()
		}
		return Value{kind: KindArray, arr: out}
	case KindDocument:
		return Value{kind: KindDocument, doc: v.doc.Clone()}
	default:
		return v
	}
}

// Contains reports whether v is an array holding an element equal to e.
func (v Value) Contains(e Value) bool {
	for _, x := range v.Array() {
		if Equal(x, e) {
			return true
		}
	}
	return false
}

// Key returns a canonical encoding of v such that Key(a) == Key(b) exactly
// when Equal(a, b). It is used to hash values into groups.
func (v Value) Key() string {
	var b strings.Builder
	v.writeKey(&b)
	return b.String()
}

func (v Value) writeKey(b *strings.Builder) {
	b.WriteByte(byte('a' + v.kind))
	switch v.kind {
	case KindBool:
		if v.b {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	case KindNumber:
		n := v.n
		if n == 0 {
			n = 0 // folds -0
		}
		b.WriteString(strconv.FormatFloat(n, 'g', -1, 64))
		b.WriteByte(';')
	case KindString:
		b.WriteString(strconv.Itoa(len(v.s)))
		b.WriteByte(':')
		b.WriteString(v.s)
	case KindObjectID:
		b.WriteString(v.oid.Hex())
	case KindArray:
		b.WriteString(strconv.Itoa(len(v.arr)))
		b.WriteByte('[')
		for _, e := range v.arr {
			e.writeKey(b)
		}
	case KindDocument:
		b.WriteString(strconv.Itoa(v.doc.Len()))
		b.WriteByte('{')
		for _, f := range v.doc.fields {
			b.WriteString(strconv.Itoa(len(f.Key)))
			b.WriteByte(':')
			b.WriteString(f.Key)
			f.Value.writeKey(b)
		}
	}
}

// String renders v as relaxed extended JSON.
func (v Value) String() string {
	if v.kind == KindAbsent {
		return "<absent>"
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return string(data)
}

// typeRank orders kinds for cross-type comparison. Absent sorts before every
// present value.
func typeRank(k Kind) int {
	switch k {
	case KindAbsent:
		return 0
	case KindNull:
		return 1
	case KindNumber:
		return 2
	case KindString:
		return 3
	case KindDocument:
		return 4
	case KindArray:
		return 5
	case KindObjectID:
		return 6
	case KindBool:
		return 7
	}
	return 8
}

// Compare defines the total order used by sorting. It returns -1, 0 or 1.
func Compare(a, b Value) int {
	ra, rb := typeRank(a.kind), typeRank(b.kind)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNumber:
		return compareFloat(a.n, b.n)
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	case KindObjectID:
		return bytes.Compare(a.oid[:], b.oid[:])
	case KindArray:
		for i := 0; i < len(a.arr) && i < len(b.arr); i++ {
			if c := Compare(a.arr[i], b.arr[i]); c != 0 {
				return c
			}
		}
		return compareInt(len(a.arr), len(b.arr))
	case KindDocument:
		af, bf := a.doc.fields, b.doc.fields
		for i := 0; i < len(af) && i < len(bf); i++ {
			if c := strings.Compare(af[i].Key, bf[i].Key); c != 0 {
				return c
			}
			if c := Compare(af[i].Value, bf[i].Value); c != 0 {
				return c
			}
		}
		return compareInt(len(af), len(bf))
	}
	return 0
}

// Comparable reports whether a and b are mutually ordered for range
// operators: both numbers or both strings.
func Comparable(a, b Value) bool {
	return (a.kind == KindNumber && b.kind == KindNumber) ||
		(a.kind == KindString && b.kind == KindString)
}

// Equal reports deep equality. Embedded documents compare field by field in
// order.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindAbsent, KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindObjectID:
		return a.oid == b.oid
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindDocument:
		return a.doc.Equal(b.doc)
	}
	return false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	// NaN sorts below every other number.
	case math.IsNaN(a) && !math.IsNaN(b):
		return -1
	case !math.IsNaN(a) && math.IsNaN(b):
		return 1
	}
	return 0
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
