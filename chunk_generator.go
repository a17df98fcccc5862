package rtmp

import (
	"encoding/binary"

	"github.com/livehub/rtmp/amf/amf0"
	"github.com/livehub/rtmp/config"
	"github.com/livehub/rtmp/internal/binary24"
)

// putBasicHeader writes a chunk basic header into b and returns its length (1, 2 or 3 bytes).
func putBasicHeader(b []byte, chunkType ChunkType, chunkStreamID uint32) int {
	fmtBits := byte(chunkType) << 6
	switch {
	case chunkStreamID < 64:
		b[0] = fmtBits | byte(chunkStreamID)
		return 1
	case chunkStreamID < 320:
		b[0] = fmtBits
		b[1] = byte(chunkStreamID - 64)
		return 2
	default:
		id := chunkStreamID - 64
		b[0] = fmtBits | 1
		b[1] = byte(id)
		b[2] = byte(id >> 8)
		return 3
	}
}

// AppendMessage splits a message into chunks of at most chunkSize payload bytes and appends them to dst:
// one type 0 chunk followed by type 3 chunks. header.MessageLength is ignored, len(payload) is used instead.
func AppendMessage(dst []byte, header Header, payload []byte, chunkSize uint32) []byte {
	if chunkSize == 0 {
		chunkSize = DefaultMaximumChunkSize
	}
	chunkStreamID := header.ChunkStreamID
	if chunkStreamID < 2 || chunkStreamID > maxChunkStreamID {
		chunkStreamID = CommandChannel
	}
	isExtended := header.Timestamp >= extendedTimestamp

	var first [maxChunkHeaderLength]byte
	n := putBasicHeader(first[:], ChunkType0, chunkStreamID)
	if isExtended {
		binary24.PutUint24(first[n:], extendedTimestamp)
	} else {
		binary24.PutUint24(first[n:], header.Timestamp)
	}
	binary24.PutUint24(first[n+3:], uint32(len(payload)))
	first[n+6] = byte(header.MessageType)
	binary.LittleEndian.PutUint32(first[n+7:], header.MessageStreamID)
	n += 11
	if isExtended {
		binary.BigEndian.PutUint32(first[n:], header.Timestamp)
		n += 4
	}

	var continuation [7]byte
	c := putBasicHeader(continuation[:], ChunkType3, chunkStreamID)
	if isExtended {
		binary.BigEndian.PutUint32(continuation[c:], header.Timestamp)
		c += 4
	}

	dst = append(dst, first[:n]...)
	for i := 0; ; i++ {
		if i > 0 {
			dst = append(dst, continuation[:c]...)
		}
		size := len(payload)
		if uint32(size) > chunkSize {
			size = int(chunkSize)
		}
		dst = append(dst, payload[:size]...)
		payload = payload[size:]
		if len(payload) == 0 {
			return dst
		}
	}
}

func protocolControlMessage(messageType MessageType, payload []byte) Message {
	return Message{
		Header: Header{
			ChunkStreamID:   ProtocolChannel,
			MessageType:     messageType,
			MessageLength:   uint32(len(payload)),
			MessageStreamID: 0,
		},
		Payload: payload,
	}
}

func generateWindowAckSizeMessage(size uint32) Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, size)
	return protocolControlMessage(WindowAcknowledgementSize, payload)
}

func generateSetPeerBandwidthMessage(size uint32, limitType uint8) Message {
	payload := make([]byte, 5)
	binary.BigEndian.PutUint32(payload, size)
	payload[4] = limitType
	return protocolControlMessage(SetPeerBandwidth, payload)
}

func generateSetChunkSizeMessage(chunkSize uint32) Message {
	payload := make([]byte, 4)
	// First bit must be 0
	binary.BigEndian.PutUint32(payload, chunkSize&0x7FFFFFFF)
	return protocolControlMessage(SetChunkSize, payload)
}

func generateAckMessage(sequenceNumber uint32) Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, sequenceNumber)
	return protocolControlMessage(Acknowledgement, payload)
}

func generateUserControlMessage(eventType uint16, value uint32) Message {
	payload := make([]byte, 6)
	binary.BigEndian.PutUint16(payload, eventType)
	binary.BigEndian.PutUint32(payload[2:], value)
	return protocolControlMessage(UserControlMessage, payload)
}

func generateStreamBeginMessage(streamID uint32) Message {
	return generateUserControlMessage(EventStreamBegin, streamID)
}

func generatePingResponseMessage(timestamp uint32) Message {
	return generateUserControlMessage(EventPingResponse, timestamp)
}

func commandMessage(messageStreamID uint32, payload []byte) Message {
	return Message{
		Header: Header{
			ChunkStreamID:   CommandChannel,
			MessageType:     CommandMessageAMF0,
			MessageLength:   uint32(len(payload)),
			MessageStreamID: messageStreamID,
		},
		Payload: payload,
	}
}

func generateConnectResponseSuccess(transactionID float64, objectEncoding float64) Message {
	properties := amf0.NewObjectMap()
	properties.Put("fmsVer", amf0.String(config.FlashMediaServerVersion))
	properties.Put("capabilities", amf0.Number(config.Capabilities))
	properties.Put("mode", amf0.Number(config.Mode))

	information := amf0.NewObjectMap()
	information.Put("level", amf0.String("status"))
	information.Put("code", amf0.String(NetConnectionConnectSuccess))
	information.Put("description", amf0.String("Connection succeeded."))
	information.Put("objectEncoding", amf0.Number(objectEncoding))

	payload := make([]byte, amf0.ReserveString("_result")+amf0.ReserveNumber+
		amf0.ReserveObject(properties)+amf0.ReserveObject(information))
	n := amf0.EncodeString(payload, "_result")
	n += amf0.EncodeNumber(payload[n:], transactionID)
	n += amf0.EncodeObject(payload[n:], properties)
	amf0.EncodeObject(payload[n:], information)
	return commandMessage(0, payload)
}

func generateCreateStreamResponse(transactionID float64, streamID uint32) Message {
	payload := make([]byte, amf0.ReserveString("_result")+amf0.ReserveNumber+amf0.ReserveNull+amf0.ReserveNumber)
	n := amf0.EncodeString(payload, "_result")
	n += amf0.EncodeNumber(payload[n:], transactionID)
	n += amf0.EncodeNull(payload[n:])
	amf0.EncodeNumber(payload[n:], float64(streamID))
	return commandMessage(0, payload)
}

func generateStatusMessage(streamID uint32, level string, code string, description string) Message {
	information := amf0.NewObjectMap()
	information.Put("level", amf0.String(level))
	information.Put("code", amf0.String(code))
	information.Put("description", amf0.String(description))

	payload := make([]byte, amf0.ReserveString("onStatus")+amf0.ReserveNumber+amf0.ReserveNull+amf0.ReserveObject(information))
	n := amf0.EncodeString(payload, "onStatus")
	n += amf0.EncodeNumber(payload[n:], 0)
	n += amf0.EncodeNull(payload[n:])
	amf0.EncodeObject(payload[n:], information)
	return commandMessage(streamID, payload)
}

func generateDataMessageRtmpSampleAccess(streamID uint32, audio bool, video bool) Message {
	payload := make([]byte, amf0.ReserveString("|RtmpSampleAccess")+2*amf0.ReserveBoolean)
	n := amf0.EncodeString(payload, "|RtmpSampleAccess")
	n += amf0.EncodeBoolean(payload[n:], audio)
	amf0.EncodeBoolean(payload[n:], video)
	return Message{
		Header: Header{
			ChunkStreamID:   DataChannel,
			MessageType:     DataMessageAMF0,
			MessageLength:   uint32(len(payload)),
			MessageStreamID: streamID,
		},
		Payload: payload,
	}
}
