package httpflv

import (
	"bytes"
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/livehub/rtmp"
	"github.com/livehub/rtmp/flv"
	"go.uber.org/zap"
)

const WebSocketPrefix = "/ws/"

// WSHandler serves GET /ws/{app}/{name}.flv over a WebSocket. The FLV file header and every tag are sent
// as separate binary messages.
type WSHandler struct {
	*Handler
	upgrader websocket.Upgrader
}

func NewWSHandler(handler *Handler) *WSHandler {
	return &WSHandler{
		Handler: handler,
		upgrader: websocket.Upgrader{
			// Players are usually served from another origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	app, name, ok := parseStreamPath(r.URL.Path, WebSocketPrefix)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// The client never sends anything we use, but reading is how a close gets noticed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	key := rtmp.StreamKey(app, name)
	logger := h.logger.With(zap.String("stream", key), zap.String("remote", r.RemoteAddr))
	logger.Info("[httpflv] websocket subscriber connected")
	writer, err := newMessageWriter(conn)
	if err != nil {
		logger.Warn("[httpflv] create flv writer", zap.Error(err))
		return
	}
	err = h.subscribe(ctx, key, writer)
	logger.Info("[httpflv] websocket subscriber ended", zap.Error(err))
}

// messageWriter muxes the header and each tag into a buffer of its own and sends it as one binary message.
type messageWriter struct {
	conn   *websocket.Conn
	buf    bytes.Buffer
	writer *flv.Writer
}

func newMessageWriter(conn *websocket.Conn) (*messageWriter, error) {
	mw := &messageWriter{conn: conn}
	writer, err := flv.NewWriter(&mw.buf)
	if err != nil {
		return nil, err
	}
	mw.writer = writer
	return mw, nil
}

func (mw *messageWriter) WriteHeader(hasAudio, hasVideo bool) error {
	mw.buf.Reset()
	if err := mw.writer.WriteHeader(hasAudio, hasVideo); err != nil {
		return err
	}
	return mw.conn.WriteMessage(websocket.BinaryMessage, mw.buf.Bytes())
}

func (mw *messageWriter) WriteTag(tag flv.Tag) error {
	mw.buf.Reset()
	if err := mw.writer.WriteTag(tag); err != nil {
		return err
	}
	return mw.conn.WriteMessage(websocket.BinaryMessage, mw.buf.Bytes())
}
