package document

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrUnsupportedType is returned by From for Go values with no document
// representation.
var ErrUnsupportedType = errors.New("unsupported value type")

// From converts a Go value into a Value.
//
// Accepted inputs are nil, Value, *Document, Field slices, bool, every integer
// and float type, string, ObjectID, bson.D/bson.M/bson.A, slices and
// string-keyed maps of any accepted type, and structs (through their bson
// encoding). Unordered maps are converted with their keys sorted so the result
// is deterministic.
func From(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case *Document:
		if x == nil {
			return Null(), nil
		}
		return Doc(x), nil
	case []Field:
		return Doc(FromFields(x...)), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case float32:
		return Number(float64(x)), nil
	case float64:
		return Number(x), nil
	case string:
		return String(x), nil
	case ObjectID:
		return OID(x), nil
	case primitive.DateTime:
		return Int(int64(x)), nil
	case primitive.Null:
		return Null(), nil
	case bson.D:
		d := New()
		for _, e := range x {
			ev, err := From(e.Value)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", e.Key, err)
			}
			d.Set(e.Key, ev)
		}
		return Doc(d), nil
	case bson.M:
		return fromMap(x)
	case map[string]any:
		return fromMap(x)
	case bson.A:
		return fromSlice(x)
	case []any:
		return fromSlice(x)
	case []string:
		out := make([]Value, len(x))
		for i, s := range x {
			out[i] = String(s)
		}
		return Array(out...), nil
	case []Value:
		return Array(x...), nil
	}
	return fromReflect(v)
}

// MustFrom is From for values known to be convertible.
func MustFrom(v any) Value {
	out, err := From(v)
	if err != nil {
		panic(err)
	}
	return out
}

// ToDocument converts a Go value that must represent a document.
func ToDocument(v any) (*Document, error) {
	val, err := From(v)
	if err != nil {
		return nil, err
	}
	if !val.IsDocument() {
		return nil, fmt.Errorf("expected a document, got %s", val.Kind())
	}
	return val.Document(), nil
}

// D builds a document from alternating key/value pairs and panics on
// malformed input. It is meant for literals in code and tests.
func D(pairs ...any) *Document {
	if len(pairs)%2 != 0 {
		panic("document.D: odd number of arguments")
	}
	d := New()
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("document.D: key %v is not a string", pairs[i]))
		}
		d.Set(key, MustFrom(pairs[i+1]))
	}
	return d
}

// A builds an array value from Go values and panics on malformed input.
func A(items ...any) Value {
	out := make([]Value, len(items))
	for i, it := range items {
		out[i] = MustFrom(it)
	}
	return Array(out...)
}

func fromMap[M ~map[string]any](m M) (Value, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := New()
	for _, k := range keys {
		ev, err := From(m[k])
		if err != nil {
			return Value{}, fmt.Errorf("field %q: %w", k, err)
		}
		d.Set(k, ev)
	}
	return Doc(d), nil
}

func fromSlice[S ~[]any](s S) (Value, error) {
	out := make([]Value, len(s))
	for i, e := range s {
		ev, err := From(e)
		if err != nil {
			return Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = ev
	}
	return Array(out...), nil
}

func fromReflect(v any) (Value, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		return From(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]Value, rv.Len())
		for i := range out {
			ev, err := From(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = ev
		}
		return Array(out...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return fromMap(m)
	case reflect.Struct:
		data, err := bson.Marshal(v)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %T: %v", ErrUnsupportedType, v, err)
		}
		d := New()
		if err := d.UnmarshalBSON(data); err != nil {
			return Value{}, err
		}
		return Doc(d), nil
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

// maxExactInt is the largest magnitude at which every integer is exactly
// representable as a float64.
const maxExactInt = 1 << 53

// Interface converts v into plain bson-compatible Go values: nil, bool,
// int64 for integral numbers, float64, string, ObjectID, bson.A and bson.D.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if v.IsInteger() && math.Abs(v.n) <= maxExactInt {
			return int64(v.n)
		}
		return v.n
	case KindString:
		return v.s
	case KindObjectID:
		return v.oid
	case KindArray:
		out := make(bson.A, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case KindDocument:
		return v.doc.BSON()
	}
	return nil
}

// BSON converts the document into an ordered bson.D.
func (d *Document) BSON() bson.D {
	out := make(bson.D, 0, d.Len())
	if d == nil {
		return out
	}
	for _, f := range d.fields {
		out = append(out, bson.E{Key: f.Key, Value: f.Value.Interface()})
	}
	return out
}

// MarshalBSON implements bson.Marshaler.
func (d *Document) MarshalBSON() ([]byte, error) {
	return bson.Marshal(d.BSON())
}

// UnmarshalBSON implements bson.Unmarshaler. It replaces the receiver's
// fields.
func (d *Document) UnmarshalBSON(data []byte) error {
	var raw bson.D
	if err := bson.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode bson document: %w", err)
	}
	v, err := From(raw)
	if err != nil {
		return err
	}
	d.fields = v.Document().fields
	return nil
}

// Decode copies the document into a Go value through its bson encoding, the
// way a driver cursor decodes into structs.
func (d *Document) Decode(out any) error {
	data, err := d.MarshalBSON()
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, out)
}
