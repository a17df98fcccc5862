package rtmp

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/livehub/rtmp/amf/amf0"
	"github.com/livehub/rtmp/config"
	"github.com/livehub/rtmp/rand"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Role uint8

const (
	RoleUnknown Role = iota
	RolePublisher
	RoleSubscriber
)

func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "publisher"
	case RoleSubscriber:
		return "subscriber"
	default:
		return "unknown"
	}
}

// SessionObserver receives the events of a session that concern the rest of the server. All callbacks
// except OnSessionClose run on the session's read goroutine.
type SessionObserver interface {
	// OnPublish is called when the peer asks to publish. Returning an error refuses the stream.
	OnPublish(session *Session) error
	OnPublishStop(session *Session)
	// CanPlay is called when the peer asks to play, before any play status is sent. Returning an error
	// refuses the stream.
	CanPlay(session *Session) error
	// OnPlay is called once the play statuses went out. Returning an error refuses the stream.
	OnPlay(session *Session) error
	// OnSessionClose is called exactly once, when the session closes.
	OnSessionClose(session *Session)
	// OnData is called with every audio, video and data message.
	OnData(session *Session, header Header, payload []byte)
}

type SessionOptions struct {
	// Outgoing chunk size, announced after connect.
	ChunkSize uint32
	// Window acknowledgement size requested from the peer.
	WindowAckSize uint32
	// Messages that may be waiting to be written before the session is closed. 0 means unbounded.
	MaxSendQueue int
}

func (o *SessionOptions) setDefaults() {
	if o.ChunkSize == 0 {
		o.ChunkSize = config.DefaultChunkSize
	}
	if o.WindowAckSize == 0 {
		o.WindowAckSize = config.DefaultClientWindowSize
	}
}

// Represents a connection made with the RTMP server where messages are exchanged between client/server.
type Session struct {
	logger    *zap.Logger
	sessionID string
	conn      net.Conn
	options   SessionOptions
	observer  SessionObserver

	reader       ReadCounter
	handshaker   Handshaker
	chunkHandler *ChunkHandler
	queue        *sendQueue

	// Set by the peer; 0 until a Window Acknowledgement Size arrives.
	peerWindowAckSize uint32
	lastAck           uint64

	mu             sync.Mutex
	app            string
	tcUrl          string
	streamName     string
	publishingType string
	role           Role

	closeOnce sync.Once
	closed    int32
	done      chan struct{}
}

func NewSession(logger *zap.Logger, conn net.Conn, observer SessionObserver, options SessionOptions) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	options.setDefaults()
	reader, err := NewReader(conn)
	if err != nil {
		return nil, err
	}
	writer, err := NewWriter(conn)
	if err != nil {
		return nil, err
	}
	sessionID := rand.SessionID()
	return &Session{
		logger:       logger.With(zap.String("session", sessionID)),
		sessionID:    sessionID,
		conn:         conn,
		options:      options,
		observer:     observer,
		reader:       reader,
		handshaker:   NewHandshake(),
		chunkHandler: NewChunkHandler(),
		queue:        newSendQueue(writer, options.MaxSendQueue),
		done:         make(chan struct{}),
	}, nil
}

func (session *Session) ID() string {
	return session.sessionID
}

func (session *Session) App() string {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.app
}

func (session *Session) TcUrl() string {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.tcUrl
}

func (session *Session) StreamName() string {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.streamName
}

// StreamKey returns "app/streamName", the key of the Group the session publishes or plays.
func (session *Session) StreamKey() string {
	session.mu.Lock()
	defer session.mu.Unlock()
	return StreamKey(session.app, session.streamName)
}

func (session *Session) Role() Role {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.role
}

func (session *Session) setRole(role Role) {
	session.mu.Lock()
	session.role = role
	session.mu.Unlock()
}

func (session *Session) RemoteAddr() net.Addr {
	return session.conn.RemoteAddr()
}

func (session *Session) isClosed() bool {
	return atomic.LoadInt32(&session.closed) == 1
}

// Run performs the handshake and reads messages until the connection ends, ctx is cancelled or
// a protocol error occurs. The session is closed when Run returns. A clean end of the connection, or
// a close requested locally, returns nil.
func (session *Session) Run(ctx context.Context) error {
	defer session.Close()

	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-session.done:
		}
	}()
	go func() {
		if err := session.queue.run(); err != nil {
			session.logger.Debug("[session] write failed", zap.Error(err))
			session.Close()
		}
	}()

	buf := make([]byte, config.ReadBufferSize)
	for {
		n, err := session.reader.Read(buf)
		if n > 0 {
			if feedErr := session.feed(buf[:n]); feedErr != nil {
				if errors.Cause(feedErr) == ErrSessionClosed {
					return nil
				}
				return feedErr
			}
		}
		if err != nil {
			if session.isClosed() {
				return nil
			}
			if !session.handshaker.Done() {
				return errors.Wrap(ErrHandshakeIncomplete, err.Error())
			}
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "read")
		}
	}
}

func (session *Session) feed(p []byte) error {
	if !session.handshaker.Done() {
		used, response, err := session.handshaker.Feed(p)
		if err != nil {
			return errors.Wrap(err, "handshake")
		}
		if response != nil {
			if err := session.queue.EnqueueRaw(response); err != nil {
				return err
			}
		}
		p = p[used:]
		if !session.handshaker.Done() {
			return nil
		}
		session.logger.Debug("[session] handshake completed")
	}
	if len(p) > 0 {
		if err := session.chunkHandler.Feed(p, session.handleMessage); err != nil {
			return err
		}
	}
	return session.acknowledge()
}

// acknowledge sends an Acknowledgement every time the peer's window size worth of bytes has been read.
func (session *Session) acknowledge() error {
	if session.peerWindowAckSize == 0 {
		return nil
	}
	received := session.reader.ReadBytes()
	if received-session.lastAck < uint64(session.peerWindowAckSize) {
		return nil
	}
	session.lastAck = received
	// The sequence number wraps around at 32 bits.
	return session.queue.Enqueue(generateAckMessage(uint32(received)))
}

func (session *Session) send(message Message) error {
	return session.queue.Enqueue(message)
}

// SendMessage queues an audio, video or data message for a subscriber; the chunk stream and message
// stream ids are filled in by the session. It never blocks. When the message can't be queued the
// session is closed and an error returned.
func (session *Session) SendMessage(header Header, payload []byte) error {
	switch header.MessageType {
	case AudioMessage:
		header.ChunkStreamID = AudioChannel
	case VideoMessage:
		header.ChunkStreamID = VideoChannel
	default:
		header.ChunkStreamID = DataChannel
	}
	header.MessageStreamID = config.DefaultStreamID
	header.MessageLength = uint32(len(payload))

	if err := session.queue.Enqueue(Message{Header: header, Payload: payload}); err != nil {
		if err != ErrSessionClosed {
			session.logger.Warn("[session] dropping subscriber", zap.Error(err))
			// The caller may hold locks that closing needs.
			go session.Close()
		}
		return err
	}
	return nil
}

// Close closes the connection and fails every pending send. The observer's OnSessionClose is called once,
// after which no other callback is delivered.
func (session *Session) Close() error {
	var err error
	session.closeOnce.Do(func() {
		atomic.StoreInt32(&session.closed, 1)
		close(session.done)
		session.queue.close(ErrSessionClosed)
		err = session.conn.Close()
		session.logger.Debug("[session] closed", zap.Stringer("role", session.Role()))
		if session.observer != nil {
			session.observer.OnSessionClose(session)
		}
	})
	return err
}

func (session *Session) onConnect(transactionID float64, commandObject *amf0.ObjectMap) error {
	var app, tcUrl string
	objectEncoding := 0.0
	if commandObject != nil {
		app, _ = commandObject.String("app")
		tcUrl, _ = commandObject.String("tcUrl")
		if encoding, ok := commandObject.Number("objectEncoding"); ok {
			objectEncoding = encoding
		}
	}
	session.mu.Lock()
	session.app = app
	session.tcUrl = tcUrl
	session.mu.Unlock()
	session.logger.Info("[session] connect", zap.String("app", app), zap.String("tcUrl", tcUrl))

	for _, message := range []Message{
		generateWindowAckSizeMessage(session.options.WindowAckSize),
		generateSetPeerBandwidthMessage(session.options.WindowAckSize, LimitDynamic),
		generateSetChunkSizeMessage(session.options.ChunkSize),
		generateConnectResponseSuccess(transactionID, objectEncoding),
	} {
		if err := session.send(message); err != nil {
			return err
		}
	}
	return nil
}

func (session *Session) onCreateStream(transactionID float64) error {
	return session.send(generateCreateStreamResponse(transactionID, config.DefaultStreamID))
}

func (session *Session) onPublish(streamID uint32, streamName string, publishingType string) error {
	if session.Role() != RoleUnknown {
		session.logger.Warn("[session] publish refused", zap.String("stream", session.StreamKey()), zap.Error(ErrStreamActive))
		return session.send(generateStatusMessage(streamID, "error", NetStreamPublishBadName, ErrStreamActive.Error()))
	}
	session.mu.Lock()
	session.streamName = trimStreamName(streamName)
	session.publishingType = publishingType
	session.role = RolePublisher
	session.mu.Unlock()

	if session.observer != nil {
		if err := session.observer.OnPublish(session); err != nil {
			session.setRole(RoleUnknown)
			session.logger.Warn("[session] publish refused", zap.String("stream", session.StreamKey()), zap.Error(err))
			return session.send(generateStatusMessage(streamID, "error", NetStreamPublishBadName, err.Error()))
		}
	}
	session.logger.Info("[session] publishing", zap.String("stream", session.StreamKey()), zap.String("type", publishingType))
	return session.send(generateStatusMessage(streamID, "status", NetStreamPublishStart, "Start publishing."))
}

func (session *Session) onPlay(streamID uint32, streamName string) error {
	if session.Role() != RoleUnknown {
		session.logger.Warn("[session] play refused", zap.String("stream", session.StreamKey()), zap.Error(ErrStreamActive))
		return session.send(generateStatusMessage(streamID, "error", NetStreamPlayFailed, ErrStreamActive.Error()))
	}
	session.mu.Lock()
	session.streamName = trimStreamName(streamName)
	session.role = RoleSubscriber
	session.mu.Unlock()

	if session.observer != nil {
		if err := session.observer.CanPlay(session); err != nil {
			return session.refusePlay(streamID, err)
		}
	}

	for _, message := range []Message{
		generateStreamBeginMessage(streamID),
		generateStatusMessage(streamID, "status", NetStreamPlayReset, "Playing and resetting stream."),
		generateStatusMessage(streamID, "status", NetStreamPlayStart, "Started playing stream."),
		generateDataMessageRtmpSampleAccess(streamID, true, true),
	} {
		if err := session.send(message); err != nil {
			return err
		}
	}

	// Joining replays the cached headers, so it has to come after the status messages.
	if session.observer != nil {
		if err := session.observer.OnPlay(session); err != nil {
			return session.refusePlay(streamID, err)
		}
	}
	session.logger.Info("[session] playing", zap.String("stream", session.StreamKey()))
	return nil
}

func (session *Session) refusePlay(streamID uint32, err error) error {
	session.setRole(RoleUnknown)
	session.logger.Warn("[session] play refused", zap.String("stream", session.StreamKey()), zap.Error(err))
	return session.send(generateStatusMessage(streamID, "error", NetStreamPlayFailed, err.Error()))
}

func (session *Session) onDeleteStream() error {
	if session.Role() == RolePublisher {
		session.logger.Info("[session] publish stopped", zap.String("stream", session.StreamKey()))
		if session.observer != nil {
			session.observer.OnPublishStop(session)
		}
		session.setRole(RoleUnknown)
		return nil
	}
	session.Close()
	return ErrSessionClosed
}
