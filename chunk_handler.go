package rtmp

import (
	"encoding/binary"

	"github.com/livehub/rtmp/config"
	"github.com/livehub/rtmp/internal/binary24"
	"github.com/pkg/errors"
)

// Initial capacity cap for a message buffer, so a bogus length doesn't make us allocate 16MB upfront.
const maxInitialPayloadCapacity = 64 * 1024

// MessageHandler is called with every complete message. The payload is owned by the callee.
type MessageHandler func(header Header, payload []byte) error

// ChunkHandler reassembles messages out of an incoming chunk stream. Bytes are fed as they arrive from
// the socket, in pieces of any size; a chunk is only consumed once it's complete, so partial chunks
// stay buffered until the next Feed.
type ChunkHandler struct {
	// The key is the chunk stream ID
	streams       map[uint32]*chunkStream
	readChunkSize uint32
	pending       []byte
}

func NewChunkHandler() *ChunkHandler {
	return &ChunkHandler{
		streams:       make(map[uint32]*chunkStream),
		readChunkSize: DefaultMaximumChunkSize,
	}
}

func (chunkHandler *ChunkHandler) ReadChunkSize() uint32 {
	return chunkHandler.readChunkSize
}

// SetReadChunkSize applies a Set Chunk Size received from the peer. It affects the next chunk parsed,
// including chunks already buffered.
func (chunkHandler *ChunkHandler) SetReadChunkSize(size uint32) error {
	if size < 1 || size > config.MaxChunkSize {
		return errors.Wrapf(ErrInvalidChunkSize, "got %d", size)
	}
	chunkHandler.readChunkSize = size
	return nil
}

// Abort discards the partially assembled message of a chunk stream.
func (chunkHandler *ChunkHandler) Abort(chunkStreamID uint32) {
	if stream, ok := chunkHandler.streams[chunkStreamID]; ok {
		stream.payload = nil
	}
}

// Feed parses as many complete chunks as possible out of the buffered bytes plus p, calling onMessage
// every time a message is complete. p is not retained.
func (chunkHandler *ChunkHandler) Feed(p []byte, onMessage MessageHandler) error {
	data := p
	if len(chunkHandler.pending) > 0 {
		chunkHandler.pending = append(chunkHandler.pending, p...)
		data = chunkHandler.pending
	}

	for len(data) > 0 {
		n, err := chunkHandler.readChunk(data, onMessage)
		data = data[n:]
		if err != nil {
			chunkHandler.pending = chunkHandler.pending[:0]
			return err
		}
		if n == 0 {
			break
		}
	}

	// Keep the unconsumed tail (possibly overlapping pending itself) for the next call.
	chunkHandler.pending = append(chunkHandler.pending[:0], data...)
	return nil
}

// readChunk parses one chunk at the start of b. It returns 0 without touching any state when b doesn't
// hold the whole chunk yet.
func (chunkHandler *ChunkHandler) readChunk(b []byte, onMessage MessageHandler) (int, error) {
	chunkType := ChunkType(b[0] >> 6)
	chunkStreamID := uint32(b[0] & 0x3F)
	offset := 1
	switch chunkStreamID {
	case 0:
		if len(b) < 2 {
			return 0, nil
		}
		chunkStreamID = uint32(b[1]) + 64
		offset = 2
	case 1:
		if len(b) < 3 {
			return 0, nil
		}
		chunkStreamID = uint32(b[2])*256 + uint32(b[1]) + 64
		offset = 3
	}

	headerLength := messageHeaderLength[chunkType]
	if len(b) < offset+headerLength {
		return 0, nil
	}

	stream, ok := chunkHandler.streams[chunkStreamID]
	if chunkType != ChunkType0 && !ok {
		return 0, errors.Wrapf(ErrNoPreviousChunk, "chunk stream %d, chunk type %d", chunkStreamID, chunkType)
	}
	inProgress := ok && stream.inProgress()
	if chunkType != ChunkType3 && inProgress {
		return 0, errors.Wrapf(ErrChunkTypeMidMessage, "chunk stream %d, chunk type %d", chunkStreamID, chunkType)
	}

	header := Header{ChunkStreamID: chunkStreamID}
	var delta uint32
	var extended bool
	if ok {
		header, delta, extended = stream.header, stream.delta, stream.extended
	}

	messageHeader := b[offset : offset+headerLength]
	var timestampField uint32
	switch chunkType {
	case ChunkType0:
		timestampField = binary24.Uint24(messageHeader)
		header.MessageLength = binary24.Uint24(messageHeader[3:])
		header.MessageType = MessageType(messageHeader[6])
		header.MessageStreamID = binary.LittleEndian.Uint32(messageHeader[7:])
	case ChunkType1:
		timestampField = binary24.Uint24(messageHeader)
		header.MessageLength = binary24.Uint24(messageHeader[3:])
		header.MessageType = MessageType(messageHeader[6])
	case ChunkType2:
		timestampField = binary24.Uint24(messageHeader)
	}
	offset += headerLength

	if chunkType != ChunkType3 {
		extended = timestampField == extendedTimestamp
	}
	if extended {
		if len(b) < offset+4 {
			return 0, nil
		}
		// On type 3 chunks the value repeats the one already known.
		if chunkType != ChunkType3 {
			timestampField = binary.BigEndian.Uint32(b[offset:])
		}
		offset += 4
	}

	switch chunkType {
	case ChunkType0:
		header.Timestamp = timestampField
		delta = timestampField
	case ChunkType1, ChunkType2:
		delta = timestampField
		header.Timestamp += delta
	case ChunkType3:
		if !inProgress {
			header.Timestamp += delta
		}
	}

	var received uint32
	if inProgress {
		received = uint32(len(stream.payload))
	}
	if received > header.MessageLength {
		return 0, errors.Wrapf(ErrMessageLengthOverflow, "chunk stream %d", chunkStreamID)
	}
	size := header.MessageLength - received
	if size > chunkHandler.readChunkSize {
		size = chunkHandler.readChunkSize
	}
	if uint64(len(b)-offset) < uint64(size) {
		return 0, nil
	}

	// The whole chunk is available, commit.
	if !ok {
		stream = &chunkStream{}
		chunkHandler.streams[chunkStreamID] = stream
	}
	stream.header = header
	stream.delta = delta
	stream.extended = extended
	if !inProgress && size > 0 {
		capacity := header.MessageLength
		if capacity > maxInitialPayloadCapacity {
			capacity = maxInitialPayloadCapacity
		}
		stream.payload = make([]byte, 0, capacity)
	}
	stream.payload = append(stream.payload, b[offset:offset+int(size)]...)
	offset += int(size)

	if uint32(len(stream.payload)) == header.MessageLength {
		payload := stream.payload
		stream.payload = nil
		if payload == nil {
			payload = []byte{}
		}
		if err := onMessage(header, payload); err != nil {
			return offset, err
		}
	}
	return offset, nil
}
