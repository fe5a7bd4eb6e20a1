package document

// IDField is the reserved identifier field.
const IDField = "_id"

// Field is one key/value pair of a Document.
type Field struct {
	Key   string
	Value Value
}

// E builds a Field.
func E(key string, v Value) Field { return Field{Key: key, Value: v} }

// Document is an ordered mapping from field name to Value. Field order is
// preserved as inserted; setting an existing key keeps its position.
type Document struct {
	fields []Field
}

// New returns an empty document.
func New() *Document { return &Document{} }

// FromFields builds a document from fields. Later duplicates overwrite
// earlier ones in place.
func FromFields(fields ...Field) *Document {
	d := &Document{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		d.Set(f.Key, f.Value)
	}
	return d
}

// Len returns the number of fields.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}

// Fields returns a copy of the document's fields in order.
func (d *Document) Fields() []Field {
	if d == nil {
		return nil
	}
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// Keys returns the field names in order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.fields))
	for i, f := range d.fields {
		keys[i] = f.Key
	}
	return keys
}

func (d *Document) index(key string) int {
	if d == nil {
		return -1
	}
	for i, f := range d.fields {
		if f.Key == key {
			return i
		}
	}
	return -1
}

// Get returns the value of a top-level field, or absent.
func (d *Document) Get(key string) Value {
	if i := d.index(key); i >= 0 {
		return d.fields[i].Value
	}
	return Absent()
}

// Has reports whether a top-level field is present.
func (d *Document) Has(key string) bool { return d.index(key) >= 0 }

// Set assigns a top-level field. Setting an absent value deletes the field.
func (d *Document) Set(key string, v Value) {
	if v.IsAbsent() {
		d.Delete(key)
		return
	}
	if i := d.index(key); i >= 0 {
		d.fields[i].Value = v
		return
	}
	d.fields = append(d.fields, Field{Key: key, Value: v})
}

// Delete removes a top-level field and reports whether it existed.
func (d *Document) Delete(key string) bool {
	i := d.index(key)
	if i < 0 {
		return false
	}
	d.fields = append(d.fields[:i], d.fields[i+1:]...)
	return true
}

// ID returns the identifier field, or absent.
func (d *Document) ID() Value { return d.Get(IDField) }

// SetID assigns the identifier and moves it to the front.
func (d *Document) SetID(id Value) {
	d.Delete(IDField)
	d.fields = append([]Field{{Key: IDField, Value: id}}, d.fields...)
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{fields: make([]Field, len(d.fields))}
	for i, f := range d.fields {
		out.fields[i] = Field{Key: f.Key, Value: f.Value.Clone()}
	}
	return out
}

// Equal reports whether both documents hold equal fields in the same order.
func (d *Document) Equal(o *Document) bool {
	if d.Len() != o.Len() {
		return false
	}
	if d.Len() == 0 {
		return true
	}
	for i := range d.fields {
		a, b := d.fields[i], o.fields[i]
		if a.Key != b.Key || !Equal(a.Value, b.Value) {
			return false
		}
	}
	return true
}

// String renders the document as relaxed extended JSON.
func (d *Document) String() string { return Doc(d).String() }
