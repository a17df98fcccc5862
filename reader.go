package rtmp

import (
	"io"
	"sync/atomic"
)

type ByteCounter interface {
	ReadBytes() uint64
}

// ReadCounter is the interface that groups Reader and ByteCounter interfaces.
type ReadCounter interface {
	io.Reader
	ByteCounter
}

// Reader counts the bytes read from the connection, which is what acknowledgements report.
type Reader struct {
	reader io.Reader
	n      uint64
}

func NewReader(reader io.Reader) (*Reader, error) {
	if reader == nil {
		return nil, ErrNilReader
	}
	return &Reader{reader: reader}, nil
}

// Read reads up to len(p) bytes from the underlying reader. Unlike io.ReadFull it returns as soon as
// some data is available, since chunks are parsed incrementally.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	atomic.AddUint64(&r.n, uint64(n))
	return n, err
}

// Returns the number of bytes read so far from the underlying reader since the instantiation of the Reader.
func (r *Reader) ReadBytes() uint64 {
	return atomic.LoadUint64(&r.n)
}
