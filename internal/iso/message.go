package iso

import (
	"bytes"
	"fmt"
	"sort"
)

// Value is one element of a message: a leaf byte value or a nested composite.
// The two variants are Leaf and *Message.
type Value interface {
	cloneValue() Value
	equalValue(Value) bool
}

// Leaf is a terminal field value as it appears to the application: text and
// numeric-as-text fields hold their characters, binary fields hold raw bytes.
type Leaf []byte

func (l Leaf) cloneValue() Value {
	out := make(Leaf, len(l))
	copy(out, l)
	return out
}

func (l Leaf) equalValue(other Value) bool {
	o, ok := other.(Leaf)
	return ok && bytes.Equal(l, o)
}

// Message is the in-memory composite: an MTI plus field-id keyed values.
// Wire ordering is always ascending field id, independent of insertion order.
// A Message owns its tree exclusively; it must not be mutated while a pack
// is in progress, and fan-out callers must Clone first.
type Message struct {
	mti    string
	fields map[int]Value
}

func NewMessage() *Message {
	return &Message{fields: make(map[int]Value)}
}

func (m *Message) SetMTI(mti string) {
	m.mti = mti
}

func (m *Message) MTI() string {
	return m.mti
}

// Set stores a leaf value for id, replacing any previous value.
func (m *Message) Set(id int, value []byte) {
	v := make(Leaf, len(value))
	copy(v, value)
	m.fields[id] = v
}

// SetString stores a leaf value from its text form.
func (m *Message) SetString(id int, value string) {
	m.fields[id] = Leaf(value)
}

// SetComposite stores a nested message for id. The Message takes ownership
// of sub; the caller must not keep mutating it.
func (m *Message) SetComposite(id int, sub *Message) {
	m.fields[id] = sub
}

func (m *Message) Unset(id int) {
	delete(m.fields, id)
}

func (m *Message) Has(id int) bool {
	_, ok := m.fields[id]
	return ok
}

// Get returns the leaf bytes for id. Composite fields report false.
func (m *Message) Get(id int) ([]byte, bool) {
	v, ok := m.fields[id].(Leaf)
	if !ok {
		return nil, false
	}
	return v, true
}

// GetString returns the leaf value for id as text, or "" when absent.
func (m *Message) GetString(id int) string {
	v, _ := m.Get(id)
	return string(v)
}

// Composite returns the nested message stored at id.
func (m *Message) Composite(id int) (*Message, error) {
	v, ok := m.fields[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoFieldCodec, id)
	}
	sub, ok := v.(*Message)
	if !ok {
		return nil, fmt.Errorf("%w: field %d", ErrNotComposite, id)
	}
	return sub, nil
}

// FieldIDs returns the present field ids in ascending order. The MTI is not
// a field and never appears here.
func (m *Message) FieldIDs() []int {
	ids := make([]int, 0, len(m.fields))
	for id := range m.fields {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (m *Message) Len() int {
	return len(m.fields)
}

// Clone deep-copies the message and its owned tree.
func (m *Message) Clone() *Message {
	out := &Message{
		mti:    m.mti,
		fields: make(map[int]Value, len(m.fields)),
	}
	for id, v := range m.fields {
		out.fields[id] = v.cloneValue()
	}
	return out
}

func (m *Message) cloneValue() Value {
	return m.Clone()
}

// Equal reports field-for-field equality including MTI and nested messages.
// Derived state (the wire bitmap) does not participate.
func (m *Message) Equal(other *Message) bool {
	if other == nil || m.mti != other.mti || len(m.fields) != len(other.fields) {
		return false
	}
	for id, v := range m.fields {
		ov, ok := other.fields[id]
		if !ok || !v.equalValue(ov) {
			return false
		}
	}
	return true
}

func (m *Message) equalValue(other Value) bool {
	o, ok := other.(*Message)
	return ok && m.Equal(o)
}
