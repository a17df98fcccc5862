// Package amf0 encodes and decodes the subset of Action Message Format 0 used by
// RTMP command and data messages.
//
// Encoders write into caller-supplied buffers sized with the matching Reserve
// helpers and never allocate. Decoders return the decoded value, the number of
// bytes consumed and an error; ErrNeedMore means the input ended before the
// value did.
package amf0

import "sort"

const (
	TypeNumber      byte = 0x00
	TypeBoolean     byte = 0x01
	TypeString      byte = 0x02
	TypeObject      byte = 0x03
	TypeMovieClip   byte = 0x04 // reserved, not supported
	TypeNull        byte = 0x05
	TypeUndefined   byte = 0x06
	TypeReference   byte = 0x07
	TypeECMAArray   byte = 0x08
	TypeObjectEnd   byte = 0x09
	TypeStrictArray byte = 0x0A
	TypeDate        byte = 0x0B
	TypeLongString  byte = 0x0C
	TypeUnsupported byte = 0x0D
	TypeRecordSet   byte = 0x0E // reserved, not supported
	TypeXMLDocument byte = 0x0F
	TypeTypedObject byte = 0x10
)

// Value is one of Boolean, Number or String.
type Value interface {
	amf0Value()
}

type Boolean bool
type Number float64
type String string

func (Boolean) amf0Value() {}
func (Number) amf0Value()  {}
func (String) amf0Value()  {}

// ObjectMap is the property bag of an AMF0 object or ECMA array. Keys are
// unique and iterate in sorted order.
type ObjectMap struct {
	values map[string]Value
}

func NewObjectMap() *ObjectMap {
	return &ObjectMap{values: make(map[string]Value)}
}

// Put stores v under key, replacing any previous value of any type. It
// returns true if key was not present before.
func (m *ObjectMap) Put(key string, v Value) bool {
	if m.values == nil {
		m.values = make(map[string]Value)
	}
	_, exists := m.values[key]
	m.values[key] = v
	return !exists
}

func (m *ObjectMap) Get(key string) (Value, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

func (m *ObjectMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.values)
}

// Keys returns the property names in sorted order.
func (m *ObjectMap) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the string stored under key, if the key holds a string.
func (m *ObjectMap) String(key string) (string, bool) {
	v, _ := m.Get(key)
	s, ok := v.(String)
	return string(s), ok
}

func (m *ObjectMap) Number(key string) (float64, bool) {
	v, _ := m.Get(key)
	n, ok := v.(Number)
	return float64(n), ok
}

func (m *ObjectMap) Boolean(key string) (bool, bool) {
	v, _ := m.Get(key)
	b, ok := v.(Boolean)
	return bool(b), ok
}
