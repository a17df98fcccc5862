package rtmp

import (
	"encoding/binary"

	"github.com/livehub/rtmp/amf/amf0"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// handleMessage interprets a complete message coming out of the chunk handler.
func (session *Session) handleMessage(header Header, payload []byte) error {
	if session.isClosed() {
		return ErrSessionClosed
	}
	switch header.MessageType {
	case SetChunkSize, AbortMessage, Acknowledgement, WindowAcknowledgementSize, SetPeerBandwidth:
		return session.handleControlMessage(header, payload)
	case UserControlMessage:
		return session.handleUserControlMessage(payload)
	case CommandMessageAMF0:
		return session.handleCommandMessage(header, payload)
	case CommandMessageAMF3:
		// Flash players wrap AMF0 commands in an AMF3 message whose body starts with a zero format byte.
		if len(payload) > 0 && payload[0] == 0 {
			return session.handleCommandMessage(header, payload[1:])
		}
		session.logger.Debug("[session] dropping AMF3 command")
		return nil
	case AudioMessage, VideoMessage, DataMessageAMF0:
		if session.observer != nil {
			session.observer.OnData(session, header, payload)
		}
		return nil
	default:
		session.logger.Debug("[session] dropping message", zap.Uint8("type", uint8(header.MessageType)))
		return nil
	}
}

func (session *Session) handleControlMessage(header Header, payload []byte) error {
	required := 4
	if header.MessageType == SetPeerBandwidth {
		required = 5
	}
	if len(payload) < required {
		return errors.Wrapf(ErrShortControlMessage, "type %d, %d bytes", header.MessageType, len(payload))
	}
	value := binary.BigEndian.Uint32(payload)

	switch header.MessageType {
	case SetChunkSize:
		// First bit is reserved
		return session.chunkHandler.SetReadChunkSize(value & 0x7FFFFFFF)
	case AbortMessage:
		session.chunkHandler.Abort(value)
	case Acknowledgement:
		session.logger.Debug("[session] acknowledgement", zap.Uint32("sequence", value))
	case WindowAcknowledgementSize:
		session.peerWindowAckSize = value
	case SetPeerBandwidth:
		session.logger.Debug("[session] peer bandwidth", zap.Uint32("size", value), zap.Uint8("limit", payload[4]))
	}
	return nil
}

func (session *Session) handleUserControlMessage(payload []byte) error {
	if len(payload) < 2 {
		return errors.Wrap(ErrShortControlMessage, "user control event")
	}
	eventType := binary.BigEndian.Uint16(payload)
	switch eventType {
	case EventPingRequest:
		if len(payload) < 6 {
			return errors.Wrap(ErrShortControlMessage, "ping request")
		}
		return session.send(generatePingResponseMessage(binary.BigEndian.Uint32(payload[2:])))
	default:
		// SetBufferLength and PingResponse need no answer
		return nil
	}
}

func (session *Session) handleCommandMessage(header Header, payload []byte) error {
	// Every command starts with its name, a transaction ID and a command object (which can be null)
	name, n, err := amf0.DecodeString(payload)
	if err != nil {
		return errors.Wrap(err, "decode command name")
	}
	commandName := string(name)
	payload = payload[n:]

	transactionID, n, err := amf0.DecodeNumber(payload)
	if err != nil {
		return errors.Wrapf(err, "decode transaction id of %s", commandName)
	}
	payload = payload[n:]

	var commandObject *amf0.ObjectMap
	if len(payload) > 0 {
		if payload[0] == amf0.TypeObject || payload[0] == amf0.TypeECMAArray {
			commandObject, n, err = amf0.DecodeObject(payload)
		} else {
			n, err = amf0.Skip(payload)
		}
		if err != nil {
			return errors.Wrapf(err, "decode command object of %s", commandName)
		}
		payload = payload[n:]
	}

	session.logger.Debug("[session] received command", zap.String("command", commandName), zap.Float64("transaction", transactionID))
	switch commandName {
	case "connect":
		return session.onConnect(transactionID, commandObject)
	case "createStream":
		return session.onCreateStream(transactionID)
	case "publish":
		// name with which the stream is published, then the publishing type ("live", "record" or "append")
		streamName, n, err := amf0.DecodeString(payload)
		if err != nil {
			return errors.Wrap(err, "decode publish name")
		}
		publishingType := "live"
		if t, _, err := amf0.DecodeString(payload[n:]); err == nil {
			publishingType = string(t)
		}
		return session.onPublish(header.MessageStreamID, string(streamName), publishingType)
	case "play":
		// start, duration and reset may follow the name; VLC doesn't send them
		streamName, _, err := amf0.DecodeString(payload)
		if err != nil {
			return errors.Wrap(err, "decode play name")
		}
		return session.onPlay(header.MessageStreamID, string(streamName))
	case "deleteStream", "closeStream":
		return session.onDeleteStream()
	case "releaseStream", "FCPublish", "FCUnpublish", "getStreamLength":
		return nil
	default:
		session.logger.Debug("[session] ignoring command", zap.String("command", commandName))
		return nil
	}
}
