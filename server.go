package rtmp

import (
	"context"
	"net"
	"sync"

	"github.com/livehub/rtmp/config"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// OriginStarter starts pulling a stream from elsewhere when it's played but nobody publishes it.
type OriginStarter interface {
	EnsureOrigin(key string, group *Group)
}

type membership struct {
	key   string
	group *Group
}

// Server represents the RTMP server, where a client/app can stream media to. The server listens for incoming connections.
// It observes its sessions and maps their events onto the Groups of its Registry.
type Server struct {
	Addr          string
	Logger        *zap.Logger
	Registry      *GroupRegistry
	ChunkSize     uint32
	WindowAckSize uint32
	// Optional
	OriginStarter OriginStarter

	mu sync.Mutex
	// The Group each session publishes or plays; a session holds one registry reference while it's there.
	memberships map[*Session]membership
	sessions    sync.WaitGroup
}

func (s *Server) init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Registry == nil {
		s.Registry = NewGroupRegistry(s.Logger)
	}
	if s.memberships == nil {
		s.memberships = make(map[*Session]membership)
	}
}

// ListenAndServe listens on Addr (":1935" when empty) and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Addr == "" {
		s.Addr = ":" + config.DefaultPort
	}
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return errors.Wrapf(err, "[server] listen on %s", s.Addr)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener, one session per connection, until ctx is cancelled. It closes
// the listener and waits for the sessions to end before returning.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.init()
	s.Logger.Info("[server] listening", zap.String("addr", listener.Addr().String()))

	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	defer s.sessions.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				s.Logger.Warn("[server] error accepting incoming connection", zap.Error(err))
				continue
			}
			return errors.Wrap(err, "[server] accept")
		}

		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	session, err := NewSession(s.Logger, conn, s, SessionOptions{
		ChunkSize:     s.ChunkSize,
		WindowAckSize: s.WindowAckSize,
		MaxSendQueue:  config.MaxSendQueueLength,
	})
	if err != nil {
		s.Logger.Error("[server] creating session", zap.Error(err))
		conn.Close()
		return
	}

	logger := s.Logger.With(zap.String("session", session.ID()))
	logger.Info("[server] accepted incoming connection", zap.String("remote", conn.RemoteAddr().String()))
	if err := session.Run(ctx); err != nil {
		logger.Warn("[server] session ended with an error", zap.Error(err))
		return
	}
	logger.Info("[server] session ended")
}

// join records that session holds a reference on the Group of key. It reports false for a closed
// session, whose OnSessionClose may already have run.
func (s *Server) join(session *Session, key string, group *Group) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.isClosed() {
		return false
	}
	if s.memberships == nil {
		s.memberships = make(map[*Session]membership)
	}
	s.memberships[session] = membership{key: key, group: group}
	return true
}

func (s *Server) leave(session *Session) (membership, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[session]
	if ok {
		delete(s.memberships, session)
	}
	return m, ok
}

func (s *Server) groupOf(session *Session) (*Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[session]
	return m.group, ok
}

// OnPublish makes the session the origin of its Group.
func (s *Server) OnPublish(session *Session) error {
	if _, ok := s.groupOf(session); ok {
		return ErrStreamActive
	}
	key := session.StreamKey()
	group := s.Registry.Acquire(key)
	if err := group.OnRtmpPublish(session); err != nil {
		s.Registry.Release(key)
		return err
	}
	if !s.join(session, key, group) {
		group.OnRtmpSessionClose(session)
		s.Registry.Release(key)
		return ErrSessionClosed
	}
	s.Logger.Info("[server] publisher joined", zap.String("session", session.ID()), zap.String("stream", key), zap.String("tcUrl", session.TcUrl()))
	return nil
}

func (s *Server) OnPublishStop(session *Session) {
	m, ok := s.leave(session)
	if !ok {
		return
	}
	m.group.OnRtmpPublishStop(session)
	s.Registry.Release(m.key)
}

// CanPlay refuses a session that already publishes or plays.
func (s *Server) CanPlay(session *Session) error {
	if _, ok := s.groupOf(session); ok {
		return ErrStreamActive
	}
	return nil
}

// OnPlay subscribes the session to its Group, asking the OriginStarter for an origin if there is none.
func (s *Server) OnPlay(session *Session) error {
	if err := s.CanPlay(session); err != nil {
		return err
	}
	key := session.StreamKey()
	group := s.Registry.Acquire(key)
	if err := group.AddRtmpSub(session); err != nil {
		s.Registry.Release(key)
		return err
	}
	if !s.join(session, key, group) {
		group.OnRtmpSessionClose(session)
		s.Registry.Release(key)
		return ErrSessionClosed
	}
	s.Logger.Info("[server] player joined", zap.String("session", session.ID()), zap.String("stream", key), zap.String("tcUrl", session.TcUrl()))
	if s.OriginStarter != nil && !group.HasOrigin() {
		s.OriginStarter.EnsureOrigin(key, group)
	}
	return nil
}

func (s *Server) OnData(session *Session, header Header, payload []byte) {
	group, ok := s.groupOf(session)
	if !ok {
		return
	}
	group.OnRtmpData(session, header, payload)
}

func (s *Server) OnSessionClose(session *Session) {
	m, ok := s.leave(session)
	if !ok {
		return
	}
	m.group.OnRtmpSessionClose(session)
	s.Registry.Release(m.key)
}
