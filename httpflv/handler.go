package httpflv

import (
	"context"
	"net/http"
	"strings"

	"github.com/livehub/rtmp"
	"github.com/livehub/rtmp/config"
	"github.com/livehub/rtmp/flv"
	"go.uber.org/zap"
)

// Handler serves GET /{app}/{name}.flv as an endless FLV stream.
type Handler struct {
	logger      *zap.Logger
	registry    *rtmp.GroupRegistry
	origins     rtmp.OriginStarter
	queueLength int
}

// NewHandler creates an HTTP-FLV handler. origins may be nil.
func NewHandler(logger *zap.Logger, registry *rtmp.GroupRegistry, origins rtmp.OriginStarter, queueLength int) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueLength <= 0 {
		queueLength = config.DefaultSubscriberQueue
	}
	return &Handler{
		logger:      logger,
		registry:    registry,
		origins:     origins,
		queueLength: queueLength,
	}
}

// parseStreamPath splits "{prefix}{app}/{name}.flv" into app and name.
func parseStreamPath(urlPath string, prefix string) (string, string, bool) {
	if !strings.HasPrefix(urlPath, prefix) || !strings.HasSuffix(urlPath, ".flv") {
		return "", "", false
	}
	streamPath := strings.TrimSuffix(strings.TrimPrefix(urlPath, prefix), ".flv")
	parts := strings.SplitN(streamPath, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	app, name, ok := parseStreamPath(r.URL.Path, "/")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "video/x-flv")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	writer, err := newResponseWriter(w)
	if err != nil {
		h.logger.Warn("[httpflv] create flv writer", zap.Error(err))
		return
	}

	key := rtmp.StreamKey(app, name)
	logger := h.logger.With(zap.String("stream", key), zap.String("remote", r.RemoteAddr))
	logger.Info("[httpflv] subscriber connected")
	if err := h.subscribe(r.Context(), key, writer); err != nil {
		logger.Info("[httpflv] subscriber ended", zap.Error(err))
		return
	}
	logger.Info("[httpflv] subscriber ended")
}

// tagWriter takes a subscriber's stream: the FLV file header once, then tags.
type tagWriter interface {
	WriteHeader(hasAudio, hasVideo bool) error
	WriteTag(tag flv.Tag) error
}

// responseWriter writes FLV into an HTTP response, flushing after every write.
type responseWriter struct {
	writer  *flv.Writer
	flusher http.Flusher
}

func newResponseWriter(w http.ResponseWriter) (*responseWriter, error) {
	writer, err := flv.NewWriter(w)
	if err != nil {
		return nil, err
	}
	flusher, _ := w.(http.Flusher)
	return &responseWriter{writer: writer, flusher: flusher}, nil
}

func (rw *responseWriter) WriteHeader(hasAudio, hasVideo bool) error {
	if err := rw.writer.WriteHeader(hasAudio, hasVideo); err != nil {
		return err
	}
	rw.flush()
	return nil
}

func (rw *responseWriter) WriteTag(tag flv.Tag) error {
	if err := rw.writer.WriteTag(tag); err != nil {
		return err
	}
	rw.flush()
	return nil
}

func (rw *responseWriter) flush() {
	if rw.flusher != nil {
		rw.flusher.Flush()
	}
}

// subscribe writes the FLV file header and then every tag of the Group of key to w, until ctx is done or
// writing fails.
func (h *Handler) subscribe(ctx context.Context, key string, w tagWriter) error {
	if err := w.WriteHeader(true, true); err != nil {
		return err
	}

	group := h.registry.Acquire(key)
	defer h.registry.Release(key)

	sub := NewSubscriber(h.queueLength)
	defer sub.Close()
	if err := group.AddHttpFlvSub(sub); err != nil {
		return err
	}
	defer group.DelHttpFlvSub(sub)

	if h.origins != nil && !group.HasOrigin() {
		h.origins.EnsureOrigin(key, group)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.Done():
			return ErrSubscriberTooSlow
		case tag := <-sub.Tags():
			if err := w.WriteTag(tag); err != nil {
				return err
			}
		}
	}
}
