package amf0

import (
	"encoding/binary"
	"math"

	"github.com/livehub/rtmp/internal/binary24"
)

// Sizes of fixed-length encodings, marker included.
const (
	ReserveNumber         = 9
	ReserveBoolean        = 2
	ReserveNull           = 1
	ReserveObjectBegin    = 1
	ReserveObjectEnd      = 3
	ReserveEcmaArrayBegin = 5
	ReserveEcmaArrayEnd   = 3
)

const maxShortStringLength = 0xFFFF

// ReserveString returns the encoded size of s, marker included.
func ReserveString(s string) int {
	if len(s) <= maxShortStringLength {
		return len(s) + 3
	}
	return len(s) + 5
}

func reserveName(name string) int {
	return 2 + len(name)
}

func ReserveNamedNumber(name string) int {
	return reserveName(name) + ReserveNumber
}

func ReserveNamedBoolean(name string) int {
	return reserveName(name) + ReserveBoolean
}

func ReserveNamedString(name string, value string) int {
	return reserveName(name) + ReserveString(value)
}

func ReserveValue(v Value) int {
	switch v := v.(type) {
	case Boolean:
		return ReserveBoolean
	case Number:
		return ReserveNumber
	case String:
		return ReserveString(string(v))
	default:
		return ReserveNull
	}
}

func ReserveNamedValue(name string, v Value) int {
	return reserveName(name) + ReserveValue(v)
}

// ReserveObject returns the encoded size of m written as an anonymous object.
func ReserveObject(m *ObjectMap) int {
	n := ReserveObjectBegin + ReserveObjectEnd
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		n += ReserveNamedValue(k, v)
	}
	return n
}

func PutInt16(b []byte, v uint16) int {
	binary.BigEndian.PutUint16(b, v)
	return 2
}

func PutInt24(b []byte, v uint32) int {
	binary24.PutUint24(b, v)
	return 3
}

func PutInt32(b []byte, v uint32) int {
	binary.BigEndian.PutUint32(b, v)
	return 4
}

// PutInt32LE writes v little-endian, the byte order of the RTMP message stream id.
func PutInt32LE(b []byte, v uint32) int {
	binary.LittleEndian.PutUint32(b, v)
	return 4
}

func EncodeNumber(b []byte, f float64) int {
	b[0] = TypeNumber
	binary.BigEndian.PutUint64(b[1:9], math.Float64bits(f))
	return ReserveNumber
}

func EncodeBoolean(b []byte, v bool) int {
	b[0] = TypeBoolean
	if v {
		b[1] = 1
	} else {
		b[1] = 0
	}
	return ReserveBoolean
}

func EncodeNull(b []byte) int {
	b[0] = TypeNull
	return ReserveNull
}

// EncodeString writes s as a String, or as a Long String when it does not fit
// a 16-bit length.
func EncodeString(b []byte, s string) int {
	if len(s) <= maxShortStringLength {
		b[0] = TypeString
		binary.BigEndian.PutUint16(b[1:3], uint16(len(s)))
		return 3 + copy(b[3:], s)
	}
	b[0] = TypeLongString
	binary.BigEndian.PutUint32(b[1:5], uint32(len(s)))
	return 5 + copy(b[5:], s)
}

// Property names never carry a type marker.
func encodeName(b []byte, name string) int {
	binary.BigEndian.PutUint16(b[:2], uint16(len(name)))
	return 2 + copy(b[2:], name)
}

func EncodeObjectBegin(b []byte) int {
	b[0] = TypeObject
	return ReserveObjectBegin
}

func EncodeObjectEnd(b []byte) int {
	b[0] = 0x00
	b[1] = 0x00
	b[2] = TypeObjectEnd
	return ReserveObjectEnd
}

func EncodeEcmaArrayBegin(b []byte, count uint32) int {
	b[0] = TypeECMAArray
	binary.BigEndian.PutUint32(b[1:5], count)
	return ReserveEcmaArrayBegin
}

// EncodeEcmaArrayEnd writes the same terminator as an object.
func EncodeEcmaArrayEnd(b []byte) int {
	return EncodeObjectEnd(b)
}

func EncodeNamedNumber(b []byte, name string, f float64) int {
	n := encodeName(b, name)
	return n + EncodeNumber(b[n:], f)
}

func EncodeNamedBoolean(b []byte, name string, v bool) int {
	n := encodeName(b, name)
	return n + EncodeBoolean(b[n:], v)
}

func EncodeNamedString(b []byte, name string, value string) int {
	n := encodeName(b, name)
	return n + EncodeString(b[n:], value)
}

// EncodeValue writes v; a nil Value is written as Null.
func EncodeValue(b []byte, v Value) int {
	switch v := v.(type) {
	case Boolean:
		return EncodeBoolean(b, bool(v))
	case Number:
		return EncodeNumber(b, float64(v))
	case String:
		return EncodeString(b, string(v))
	default:
		return EncodeNull(b)
	}
}

func EncodeNamedValue(b []byte, name string, v Value) int {
	n := encodeName(b, name)
	return n + EncodeValue(b[n:], v)
}

// EncodeObject writes m as an anonymous object, properties in key order.
func EncodeObject(b []byte, m *ObjectMap) int {
	n := EncodeObjectBegin(b)
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		n += EncodeNamedValue(b[n:], k, v)
	}
	return n + EncodeObjectEnd(b[n:])
}
