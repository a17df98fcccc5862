package amf0

import (
	"encoding/binary"
	"math"

	"github.com/livehub/rtmp/internal/binary24"
	"github.com/pkg/errors"
)

// ErrNeedMore is returned when the input ends before the encoded value does.
// In an incremental reader it means "wait for more bytes"; inside a complete
// message it means the message is corrupt.
var ErrNeedMore = errors.New("amf0: need more bytes")

var ErrUnexpectedMarker = errors.New("amf0: unexpected type marker")
var ErrUnsupportedType = errors.New("amf0: unsupported type")

// Maximum nesting accepted by Skip. Deeper input is treated as corrupt.
const maxDepth = 32

func Int16(b []byte) (uint16, int, error) {
	if len(b) < 2 {
		return 0, 0, ErrNeedMore
	}
	return binary.BigEndian.Uint16(b), 2, nil
}

func Int24(b []byte) (uint32, int, error) {
	if len(b) < 3 {
		return 0, 0, ErrNeedMore
	}
	return binary24.Uint24(b), 3, nil
}

func Int32(b []byte) (uint32, int, error) {
	if len(b) < 4 {
		return 0, 0, ErrNeedMore
	}
	return binary.BigEndian.Uint32(b), 4, nil
}

func Int32LE(b []byte) (uint32, int, error) {
	if len(b) < 4 {
		return 0, 0, ErrNeedMore
	}
	return binary.LittleEndian.Uint32(b), 4, nil
}

func expectMarker(b []byte, marker byte) error {
	if len(b) < 1 {
		return ErrNeedMore
	}
	if b[0] != marker {
		return errors.Wrapf(ErrUnexpectedMarker, "want 0x%02x, got 0x%02x", marker, b[0])
	}
	return nil
}

func DecodeNumber(b []byte) (float64, int, error) {
	if err := expectMarker(b, TypeNumber); err != nil {
		return 0, 0, err
	}
	if len(b) < ReserveNumber {
		return 0, 0, ErrNeedMore
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b[1:9])), ReserveNumber, nil
}

func DecodeBoolean(b []byte) (bool, int, error) {
	if err := expectMarker(b, TypeBoolean); err != nil {
		return false, 0, err
	}
	if len(b) < ReserveBoolean {
		return false, 0, ErrNeedMore
	}
	return b[1] != 0, ReserveBoolean, nil
}

// DecodeNull consumes a Null or Undefined marker.
func DecodeNull(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, ErrNeedMore
	}
	if b[0] != TypeNull && b[0] != TypeUndefined {
		return 0, errors.Wrapf(ErrUnexpectedMarker, "want null, got 0x%02x", b[0])
	}
	return ReserveNull, nil
}

// DecodeString decodes a String or Long String. The returned slice points
// into b; it is only valid as long as b is.
func DecodeString(b []byte) ([]byte, int, error) {
	if len(b) < 1 {
		return nil, 0, ErrNeedMore
	}
	switch b[0] {
	case TypeString:
		s, n, err := decodeName(b[1:])
		return s, n + 1, err
	case TypeLongString:
		length, _, err := Int32(b[1:])
		if err != nil {
			return nil, 0, err
		}
		if uint64(len(b)-5) < uint64(length) {
			return nil, 0, ErrNeedMore
		}
		return b[5 : 5+length], 5 + int(length), nil
	default:
		return nil, 0, errors.Wrapf(ErrUnexpectedMarker, "want string, got 0x%02x", b[0])
	}
}

// decodeName reads a 16-bit length-prefixed UTF-8 string without marker.
func decodeName(b []byte) ([]byte, int, error) {
	length, _, err := Int16(b)
	if err != nil {
		return nil, 0, err
	}
	if len(b)-2 < int(length) {
		return nil, 0, ErrNeedMore
	}
	return b[2 : 2+int(length)], 2 + int(length), nil
}

// DecodeValue decodes a Boolean, Number or String.
func DecodeValue(b []byte) (Value, int, error) {
	if len(b) < 1 {
		return nil, 0, ErrNeedMore
	}
	switch b[0] {
	case TypeNumber:
		f, n, err := DecodeNumber(b)
		return Number(f), n, err
	case TypeBoolean:
		v, n, err := DecodeBoolean(b)
		return Boolean(v), n, err
	case TypeString, TypeLongString:
		s, n, err := DecodeString(b)
		return String(s), n, err
	default:
		return nil, 0, errors.Wrapf(ErrUnsupportedType, "marker 0x%02x", b[0])
	}
}

func isObjectEnd(b []byte) bool {
	return len(b) >= 3 && b[0] == 0x00 && b[1] == 0x00 && b[2] == TypeObjectEnd
}

// DecodeObject decodes an Object or an ECMA array into an ObjectMap.
// Properties whose values are not Boolean, Number or String are skipped.
func DecodeObject(b []byte) (*ObjectMap, int, error) {
	if len(b) < 1 {
		return nil, 0, ErrNeedMore
	}
	switch b[0] {
	case TypeObject:
		m, n, err := decodeProperties(b[1:], 0)
		return m, n + 1, err
	case TypeECMAArray:
		return DecodeEcmaArray(b)
	default:
		return nil, 0, errors.Wrapf(ErrUnexpectedMarker, "want object, got 0x%02x", b[0])
	}
}

// DecodeEcmaArray decodes an ECMA array. The associative count is advisory;
// the array ends at the object-end marker.
func DecodeEcmaArray(b []byte) (*ObjectMap, int, error) {
	if err := expectMarker(b, TypeECMAArray); err != nil {
		return nil, 0, err
	}
	if len(b) < ReserveEcmaArrayBegin {
		return nil, 0, ErrNeedMore
	}
	m, n, err := decodeProperties(b[ReserveEcmaArrayBegin:], 0)
	return m, n + ReserveEcmaArrayBegin, err
}

func decodeProperties(b []byte, depth int) (*ObjectMap, int, error) {
	m := NewObjectMap()
	used := 0
	for {
		if len(b)-used < 3 {
			return nil, 0, ErrNeedMore
		}
		if isObjectEnd(b[used:]) {
			return m, used + ReserveObjectEnd, nil
		}
		key, n, err := decodeName(b[used:])
		if err != nil {
			return nil, 0, err
		}
		used += n
		if len(b) == used {
			return nil, 0, ErrNeedMore
		}
		switch b[used] {
		case TypeNumber, TypeBoolean, TypeString, TypeLongString:
			v, n, err := DecodeValue(b[used:])
			if err != nil {
				return nil, 0, err
			}
			m.Put(string(key), v)
			used += n
		default:
			n, err := skip(b[used:], depth+1)
			if err != nil {
				return nil, 0, err
			}
			used += n
		}
	}
}

// Skip returns the encoded size of the AMF0 value at the start of b without
// decoding it.
func Skip(b []byte) (int, error) {
	return skip(b, 0)
}

func skip(b []byte, depth int) (int, error) {
	if depth > maxDepth {
		return 0, errors.New("amf0: nesting too deep")
	}
	if len(b) < 1 {
		return 0, ErrNeedMore
	}
	switch b[0] {
	case TypeNumber:
		_, n, err := DecodeNumber(b)
		return n, err
	case TypeBoolean:
		_, n, err := DecodeBoolean(b)
		return n, err
	case TypeString, TypeLongString:
		_, n, err := DecodeString(b)
		return n, err
	case TypeNull, TypeUndefined:
		return 1, nil
	case TypeReference:
		if len(b) < 3 {
			return 0, ErrNeedMore
		}
		return 3, nil
	case TypeDate:
		if len(b) < 11 {
			return 0, ErrNeedMore
		}
		return 11, nil
	case TypeObject:
		n, err := skipProperties(b[1:], depth)
		return n + 1, err
	case TypeECMAArray:
		if len(b) < ReserveEcmaArrayBegin {
			return 0, ErrNeedMore
		}
		n, err := skipProperties(b[ReserveEcmaArrayBegin:], depth)
		return n + ReserveEcmaArrayBegin, err
	case TypeStrictArray:
		count, _, err := Int32(b[1:])
		if err != nil {
			return 0, err
		}
		used := 5
		for i := uint32(0); i < count; i++ {
			n, err := skip(b[used:], depth+1)
			if err != nil {
				return 0, err
			}
			used += n
		}
		return used, nil
	case TypeTypedObject:
		_, n, err := decodeName(b[1:])
		if err != nil {
			return 0, err
		}
		m, err := skipProperties(b[1+n:], depth)
		return 1 + n + m, err
	default:
		return 0, errors.Wrapf(ErrUnsupportedType, "marker 0x%02x", b[0])
	}
}

func skipProperties(b []byte, depth int) (int, error) {
	used := 0
	for {
		if len(b)-used < 3 {
			return 0, ErrNeedMore
		}
		if isObjectEnd(b[used:]) {
			return used + ReserveObjectEnd, nil
		}
		_, n, err := decodeName(b[used:])
		if err != nil {
			return 0, err
		}
		used += n
		n, err = skip(b[used:], depth+1)
		if err != nil {
			return 0, err
		}
		used += n
	}
}
