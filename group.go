package rtmp

import (
	"sync"

	"github.com/livehub/rtmp/amf/amf0"
	"github.com/livehub/rtmp/audio"
	"github.com/livehub/rtmp/flv"
	"github.com/livehub/rtmp/video"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type cachedMessage struct {
	timestamp uint32
	payload   []byte
}

func (c cachedMessage) ok() bool {
	return c.payload != nil
}

// Group is the hub of one stream ("app/name"). It has at most one origin, either an RTMP publisher or an
// HTTP-FLV pull, and fans its media out to RTMP and FLV subscribers. The metadata and the AVC and AAC
// sequence headers of the current origin are cached and replayed to subscribers joining late.
//
// Fan-out happens while holding the Group's lock, which is why subscribers must never block: every
// subscriber gets messages in the order the origin sent them and a join can't interleave with a live
// message.
type Group struct {
	logger *zap.Logger
	key    string

	mu       sync.Mutex
	rtmpPub  Origin
	pull     PullSource
	rtmpSubs map[RtmpSubscriber]struct{}
	flvSubs  map[FlvSubscriber]struct{}

	metadata     cachedMessage
	avcSeqHeader cachedMessage
	aacSeqHeader cachedMessage
}

func NewGroup(logger *zap.Logger, key string) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Group{
		logger:   logger.With(zap.String("stream", key)),
		key:      key,
		rtmpSubs: make(map[RtmpSubscriber]struct{}),
		flvSubs:  make(map[FlvSubscriber]struct{}),
	}
}

func (g *Group) Key() string {
	return g.key
}

func (g *Group) hasOrigin() bool {
	return g.rtmpPub != nil || g.pull != nil
}

// SetRtmpPub makes pub the origin of the Group. It fails with ErrOriginExists, changing nothing, when the
// Group already has one.
func (g *Group) SetRtmpPub(pub Origin) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hasOrigin() {
		return errors.Wrapf(ErrOriginExists, "stream %s", g.key)
	}
	g.rtmpPub = pub
	return nil
}

// ResetRtmpPub detaches pub if it's the origin and clears the caches. Subscribers stay.
func (g *Group) ResetRtmpPub(pub Origin) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rtmpPub == nil || g.rtmpPub != pub {
		return
	}
	g.rtmpPub = nil
	g.clearCaches()
}

func (g *Group) RtmpPub() Origin {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rtmpPub
}

// SetHttpFlvPull makes pull the origin of the Group. It fails with ErrOriginExists, changing nothing,
// when the Group already has one.
func (g *Group) SetHttpFlvPull(pull PullSource) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hasOrigin() {
		return errors.Wrapf(ErrOriginExists, "stream %s", g.key)
	}
	g.pull = pull
	return nil
}

// ResetHttpFlvPull detaches pull if it's the origin and clears the caches.
func (g *Group) ResetHttpFlvPull(pull PullSource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pull == nil || g.pull != pull {
		return
	}
	g.pull = nil
	g.clearCaches()
}

func (g *Group) HttpFlvPull() PullSource {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pull
}

// AddRtmpSub registers a subscriber and replays the cached metadata, AVC and AAC sequence headers, in
// that order, before any live message. When the replay fails the subscriber isn't kept.
func (g *Group) AddRtmpSub(sub RtmpSubscriber) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, cached := range []struct {
		messageType MessageType
		message     cachedMessage
	}{
		{DataMessageAMF0, g.metadata},
		{VideoMessage, g.avcSeqHeader},
		{AudioMessage, g.aacSeqHeader},
	} {
		if !cached.message.ok() {
			continue
		}
		header := Header{
			MessageType:   cached.messageType,
			Timestamp:     cached.message.timestamp,
			MessageLength: uint32(len(cached.message.payload)),
		}
		if err := sub.SendMessage(header, cached.message.payload); err != nil {
			return errors.Wrap(err, "replay sequence headers")
		}
	}
	g.rtmpSubs[sub] = struct{}{}
	g.logger.Debug("[group] rtmp subscriber added", zap.String("session", sub.ID()), zap.Int("subscribers", len(g.rtmpSubs)))
	return nil
}

func (g *Group) DelRtmpSub(sub RtmpSubscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rtmpSubs, sub)
}

// AddHttpFlvSub is AddRtmpSub for FLV subscribers.
func (g *Group) AddHttpFlvSub(sub FlvSubscriber) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, cached := range []struct {
		tagType uint8
		message cachedMessage
	}{
		{flv.TagTypeScript, g.metadata},
		{flv.TagTypeVideo, g.avcSeqHeader},
		{flv.TagTypeAudio, g.aacSeqHeader},
	} {
		if !cached.message.ok() {
			continue
		}
		tag := flv.Tag{Type: cached.tagType, Timestamp: cached.message.timestamp, Data: cached.message.payload}
		if err := sub.WriteTag(tag); err != nil {
			return errors.Wrap(err, "replay sequence headers")
		}
	}
	g.flvSubs[sub] = struct{}{}
	g.logger.Debug("[group] flv subscriber added", zap.String("subscriber", sub.ID()), zap.Int("subscribers", len(g.flvSubs)))
	return nil
}

func (g *Group) DelHttpFlvSub(sub FlvSubscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.flvSubs, sub)
}

// Metadata returns the cached onMetaData script payload, or nil. The returned slice must not be modified.
func (g *Group) Metadata() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metadata.payload
}

// VideoSeqHeader returns the cached AVC sequence header, or nil. The returned slice must not be modified.
func (g *Group) VideoSeqHeader() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.avcSeqHeader.payload
}

// AudioSeqHeader returns the cached AAC sequence header, or nil. The returned slice must not be modified.
func (g *Group) AudioSeqHeader() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.aacSeqHeader.payload
}

// OnRtmpPublish is called when an RTMP session starts publishing the stream.
func (g *Group) OnRtmpPublish(pub Origin) error {
	if err := g.SetRtmpPub(pub); err != nil {
		return err
	}
	g.logger.Info("[group] rtmp publish started", zap.String("session", pub.ID()))
	return nil
}

// OnRtmpPublishStop is called when the publisher stops. Subscribers stay and get media again from the
// next origin, starting with its own sequence headers.
func (g *Group) OnRtmpPublishStop(pub Origin) {
	g.ResetRtmpPub(pub)
	g.logger.Info("[group] rtmp publish stopped", zap.String("session", pub.ID()))
}

// OnHttpFlvPullConnected is called every time the pull (re)connects upstream. Headers cached from a
// previous connection don't apply to the new one.
func (g *Group) OnHttpFlvPullConnected() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clearCaches()
	g.logger.Info("[group] http-flv pull connected")
}

// OnHttpFlvData ingests tags pulled from upstream. Each TagInfo points into buf.
func (g *Group) OnHttpFlvData(buf []byte, tags []flv.TagInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pull == nil {
		return
	}
	for _, tag := range tags {
		g.ingest(MessageType(tag.Type), tag.Timestamp, tag.Data(buf))
	}
}

// OnRtmpData ingests a message from pub. Messages from anything but the current origin are dropped.
func (g *Group) OnRtmpData(pub Origin, header Header, payload []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rtmpPub == nil || g.rtmpPub != pub {
		return
	}
	g.ingest(header.MessageType, header.Timestamp, payload)
}

// OnRtmpSessionClose detaches a closed session, whatever its role in the Group.
func (g *Group) OnRtmpSessionClose(member Member) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rtmpPub != nil && g.rtmpPub == member {
		g.rtmpPub = nil
		g.clearCaches()
		g.logger.Info("[group] rtmp publisher closed", zap.String("session", member.ID()))
	}
	if sub, ok := member.(RtmpSubscriber); ok {
		delete(g.rtmpSubs, sub)
	}
}

func (g *Group) HasOrigin() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hasOrigin()
}

func (g *Group) HasSubscribers() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rtmpSubs)+len(g.flvSubs) > 0
}

// IsEmpty reports whether the Group has neither an origin nor subscribers.
func (g *Group) IsEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.hasOrigin() && len(g.rtmpSubs)+len(g.flvSubs) == 0
}

// Dispose drops every member and cached header.
func (g *Group) Dispose() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rtmpPub = nil
	g.pull = nil
	g.rtmpSubs = make(map[RtmpSubscriber]struct{})
	g.flvSubs = make(map[FlvSubscriber]struct{})
	g.clearCaches()
	g.logger.Debug("[group] disposed")
}

func (g *Group) clearCaches() {
	g.metadata = cachedMessage{}
	g.avcSeqHeader = cachedMessage{}
	g.aacSeqHeader = cachedMessage{}
}

// ingest updates the caches and fans a message out. It must be called with the lock held.
func (g *Group) ingest(messageType MessageType, timestamp uint32, payload []byte) {
	switch messageType {
	case DataMessageAMF0:
		if metadata, ok := metadataPayload(payload); ok {
			payload = metadata
			g.metadata = cachedMessage{timestamp: timestamp, payload: append([]byte(nil), payload...)}
			g.logMetadata(payload)
		}
	case VideoMessage:
		if video.IsAVCSequenceHeader(payload) {
			g.avcSeqHeader = cachedMessage{timestamp: timestamp, payload: append([]byte(nil), payload...)}
			_, codec := video.Parse(payload[0])
			g.logger.Debug("[group] video sequence header", zap.Uint8("codec", uint8(codec)), zap.Int("size", len(payload)))
		}
	case AudioMessage:
		if audio.IsAACSequenceHeader(payload) {
			g.aacSeqHeader = cachedMessage{timestamp: timestamp, payload: append([]byte(nil), payload...)}
			format, rate, size, channel := audio.Parse(payload[0])
			g.logger.Debug("[group] audio sequence header", zap.Uint8("format", uint8(format)),
				zap.Uint8("rate", uint8(rate)), zap.Uint8("size", uint8(size)), zap.Uint8("channel", uint8(channel)))
		}
	default:
		return
	}
	g.fanOut(messageType, timestamp, payload)
}

func (g *Group) fanOut(messageType MessageType, timestamp uint32, payload []byte) {
	if len(g.rtmpSubs) > 0 {
		header := Header{MessageType: messageType, Timestamp: timestamp, MessageLength: uint32(len(payload))}
		for _, sub := range broadcastRtmp(g.rtmpSubs, header, payload) {
			delete(g.rtmpSubs, sub)
			g.logger.Warn("[group] removed rtmp subscriber", zap.String("session", sub.ID()))
		}
	}
	if len(g.flvSubs) > 0 {
		tag := flv.Tag{Type: uint8(messageType), Timestamp: timestamp, Data: payload}
		for _, sub := range broadcastFlv(g.flvSubs, tag) {
			delete(g.flvSubs, sub)
			g.logger.Warn("[group] removed flv subscriber", zap.String("subscriber", sub.ID()))
		}
	}
}

// metadataPayload tells whether a data message carries stream metadata, returning it as an onMetaData
// script payload (without the @setDataFrame prefix encoders send).
func metadataPayload(payload []byte) ([]byte, bool) {
	name, n, err := amf0.DecodeString(payload)
	if err != nil {
		return nil, false
	}
	switch string(name) {
	case "onMetaData":
		return payload, true
	case "@setDataFrame":
		if next, _, err := amf0.DecodeString(payload[n:]); err != nil || string(next) != "onMetaData" {
			return nil, false
		}
		return payload[n:], true
	default:
		return nil, false
	}
}

func (g *Group) logMetadata(payload []byte) {
	if ce := g.logger.Check(zap.InfoLevel, "[group] metadata"); ce != nil {
		_, n, err := amf0.DecodeString(payload)
		if err != nil {
			return
		}
		properties, _, err := amf0.DecodeObject(payload[n:])
		if err != nil {
			ce.Write()
			return
		}
		fields := make([]zap.Field, 0, 5)
		for _, name := range []string{"width", "height", "framerate", "videodatarate", "audiodatarate"} {
			if v, ok := properties.Number(name); ok {
				fields = append(fields, zap.Float64(name, v))
			}
		}
		if encoder, ok := properties.String("encoder"); ok {
			fields = append(fields, zap.String("encoder", encoder))
		}
		ce.Write(fields...)
	}
}
