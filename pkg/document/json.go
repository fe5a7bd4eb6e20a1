package document

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	json "github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
)

// MarshalJSON renders v as relaxed extended JSON: ObjectIDs become
// {"$oid": "..."} and non-finite numbers {"$numberDouble": "..."}. Field
// order is preserved.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON parses extended JSON into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalJSON renders the document as relaxed extended JSON.
func (d *Document) MarshalJSON() ([]byte, error) {
	return Doc(d).MarshalJSON()
}

// UnmarshalJSON parses an extended JSON object, keeping key order.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw bson.D
	if err := bson.UnmarshalExtJSON(data, false, &raw); err != nil {
		return fmt.Errorf("decode json document: %w", err)
	}
	v, err := From(raw)
	if err != nil {
		return err
	}
	d.fields = v.Document().fields
	return nil
}

// ParseJSON parses any extended JSON value (object, array or scalar).
func ParseJSON(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Value{}, fmt.Errorf("decode json: empty input")
	}
	wrapped := make([]byte, 0, len(data)+6)
	wrapped = append(wrapped, `{"v":`...)
	wrapped = append(wrapped, data...)
	wrapped = append(wrapped, '}')

	var raw bson.D
	if err := bson.UnmarshalExtJSON(wrapped, false, &raw); err != nil {
		return Value{}, fmt.Errorf("decode json: %w", err)
	}
	if len(raw) != 1 {
		return Value{}, fmt.Errorf("decode json: malformed input")
	}
	return From(raw[0].Value)
}

// ParseDocumentJSON parses an extended JSON object.
func ParseDocumentJSON(data []byte) (*Document, error) {
	d := New()
	if err := d.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return d, nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindAbsent, KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		writeNumber(buf, v.n)
	case KindString:
		s, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(s)
	case KindObjectID:
		buf.WriteString(`{"$oid":"`)
		buf.WriteString(v.oid.Hex())
		buf.WriteString(`"}`)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindDocument:
		buf.WriteByte('{')
		for i, f := range v.doc.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(f.Key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := f.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("%w: kind %s", ErrUnsupportedType, v.kind)
	}
	return nil
}

func writeNumber(buf *bytes.Buffer, n float64) {
	switch {
	case math.IsNaN(n):
		buf.WriteString(`{"$numberDouble":"NaN"}`)
	case math.IsInf(n, 1):
		buf.WriteString(`{"$numberDouble":"Infinity"}`)
	case math.IsInf(n, -1):
		buf.WriteString(`{"$numberDouble":"-Infinity"}`)
	case n == math.Trunc(n) && math.Abs(n) <= maxExactInt:
		buf.WriteString(strconv.FormatInt(int64(n), 10))
	default:
		buf.WriteString(strconv.FormatFloat(n, 'g', -1, 64))
	}
}
