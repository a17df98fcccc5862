// Package binary24 reads and writes the 24-bit big-endian fields used by RTMP
// chunk headers and AMF0 values.
package binary24

// MaxUint24 is the largest value a 24-bit field can hold. RTMP reuses it as
// the extended timestamp marker.
const MaxUint24 = 0xFFFFFF

func Uint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[2]) | uint32(b[1])<<8 | uint32(b[0])<<16
}

func PutUint24(b []byte, v uint32) {
	_ = b[2] // early bounds check to guarantee safety of writes below
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}
