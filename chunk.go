package rtmp

import "github.com/livehub/rtmp/internal/binary24"

type ChunkType uint8

const (
	ChunkType0 ChunkType = iota
	ChunkType1
	ChunkType2
	ChunkType3
)

// Message header length by chunk type.
var messageHeaderLength = [4]int{11, 7, 3, 0}

const (
	// Only the protocol channel (csid = 2) is fixed by the protocol. The others are
	// our own convention so the same kind of data always goes through the same chunk stream id.
	ProtocolChannel uint32 = 2
	CommandChannel  uint32 = 3
	AudioChannel    uint32 = 4
	DataChannel     uint32 = 5
	VideoChannel    uint32 = 7
)

const DefaultMaximumChunkSize = 128

// Largest chunk stream id the 3-byte basic header can carry.
const maxChunkStreamID = 65599

const (
	LimitHard    uint8 = 0
	LimitSoft    uint8 = 1
	LimitDynamic uint8 = 2
)

const extendedTimestamp = binary24.MaxUint24

// Basic header (3) + type 0 message header (11) + extended timestamp (4).
const maxChunkHeaderLength = 18

// chunkStream is the reassembly state of one chunk stream id.
type chunkStream struct {
	// header of the message being assembled, or of the last complete one.
	header Header
	// delta re-applied when a type 3 chunk starts a new message.
	delta uint32
	// extended is true when the last type 0-2 header used an extended timestamp;
	// type 3 chunks on the stream then carry one too.
	extended bool
	payload  []byte
}

func (cs *chunkStream) inProgress() bool {
	return len(cs.payload) > 0
}
