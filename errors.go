package rtmp

import "github.com/pkg/errors"

var ErrNilWriter = errors.New("expected a non-nil writer")
var ErrNilReader = errors.New("expected a non-nil reader")

// Handshake errors
var ErrUnsupportedRTMPVersion = errors.New("the version of RTMP is not supported")
var ErrHandshakeIncomplete = errors.New("connection ended before the handshake completed")

// Chunk stream errors
var ErrNoPreviousChunk = errors.New("chunk references a chunk stream with no previous header")
var ErrChunkTypeMidMessage = errors.New("chunk type 0, 1 or 2 received while a message is being assembled")
var ErrMessageLengthOverflow = errors.New("chunk payload exceeds the declared message length")
var ErrInvalidChunkSize = errors.New("invalid chunk size")
var ErrShortControlMessage = errors.New("protocol control message is too short")

// Session errors
var ErrSessionClosed = errors.New("session is closed")
var ErrSendQueueFull = errors.New("send queue is full")
var ErrStreamActive = errors.New("session already publishes or plays a stream")

// Group errors
var ErrOriginExists = errors.New("stream already has an origin")
