package rtmp

type MessageType uint8

const (
	SetChunkSize              MessageType = 1
	AbortMessage              MessageType = 2
	Acknowledgement           MessageType = 3
	UserControlMessage        MessageType = 4
	WindowAcknowledgementSize MessageType = 5
	SetPeerBandwidth          MessageType = 6

	AudioMessage MessageType = 8
	VideoMessage MessageType = 9

	DataMessageAMF3         MessageType = 15
	SharedObjectMessageAMF3 MessageType = 16
	CommandMessageAMF3      MessageType = 17

	DataMessageAMF0         MessageType = 18
	SharedObjectMessageAMF0 MessageType = 19
	CommandMessageAMF0      MessageType = 20

	AggregateMessage MessageType = 22
)

// User control event types
const (
	EventStreamBegin      uint16 = 0
	EventStreamEOF        uint16 = 1
	EventStreamDry        uint16 = 2
	EventSetBufferLength  uint16 = 3
	EventStreamIsRecorded uint16 = 4
	EventPingRequest      uint16 = 6
	EventPingResponse     uint16 = 7
)

// Header describes one complete message reassembled from (or split into) chunks.
// Timestamp is always absolute; deltas are resolved by the chunk handler.
type Header struct {
	ChunkStreamID   uint32
	Timestamp       uint32
	MessageLength   uint32
	MessageType     MessageType
	MessageStreamID uint32
}

// Message is a header together with its payload.
type Message struct {
	Header  Header
	Payload []byte
}
