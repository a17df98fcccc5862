package rtmp

import (
	"bytes"
	"testing"

	"github.com/livehub/rtmp/amf/amf0"
	"github.com/livehub/rtmp/flv"
	"github.com/pkg/errors"
)

var errDelivery = errors.New("delivery failed")

type fakeMember struct {
	id string
}

func (m *fakeMember) ID() string {
	return m.id
}

type fakeRtmpSubscriber struct {
	fakeMember
	messages []receivedMessage
	fail     bool
}

func (s *fakeRtmpSubscriber) SendMessage(header Header, payload []byte) error {
	if s.fail {
		return errDelivery
	}
	s.messages = append(s.messages, receivedMessage{header, payload})
	return nil
}

type fakeFlvSubscriber struct {
	fakeMember
	tags []flv.Tag
	fail bool
}

func (s *fakeFlvSubscriber) WriteTag(tag flv.Tag) error {
	if s.fail {
		return errDelivery
	}
	s.tags = append(s.tags, tag)
	return nil
}

func setDataFramePayload(width float64) []byte {
	properties := amf0.NewObjectMap()
	properties.Put("width", amf0.Number(width))
	size := amf0.ReserveString("@setDataFrame") + amf0.ReserveString("onMetaData") +
		amf0.ReserveEcmaArrayBegin + amf0.ReserveNamedNumber("width") + amf0.ReserveEcmaArrayEnd
	payload := make([]byte, size)
	n := amf0.EncodeString(payload, "@setDataFrame")
	n += amf0.EncodeString(payload[n:], "onMetaData")
	n += amf0.EncodeEcmaArrayBegin(payload[n:], 1)
	n += amf0.EncodeNamedNumber(payload[n:], "width", width)
	amf0.EncodeEcmaArrayEnd(payload[n:])
	return payload
}

var (
	testAVCSequenceHeader = []byte{0x17, 0x00, 0x00, 0x00, 0x00, 0x01, 0x64}
	testAACSequenceHeader = []byte{0xAF, 0x00, 0x12, 0x10}
	testKeyFrame          = []byte{0x17, 0x01, 0x00, 0x00, 0x00, 0xAA}
	testAudioFrame        = []byte{0xAF, 0x01, 0x21}
)

// publish sends the usual start of a stream: metadata, sequence headers, then a frame.
func publish(g *Group, pub Origin, width float64) {
	g.OnRtmpData(pub, Header{MessageType: DataMessageAMF0}, setDataFramePayload(width))
	g.OnRtmpData(pub, Header{MessageType: AudioMessage}, testAACSequenceHeader)
	g.OnRtmpData(pub, Header{MessageType: VideoMessage}, testAVCSequenceHeader)
	g.OnRtmpData(pub, Header{MessageType: VideoMessage, Timestamp: 40}, testKeyFrame)
}

func TestGroup_SingleOrigin(t *testing.T) {
	g := NewGroup(testLogger(t), "live/stream")
	first, second, pull := &fakeMember{"first"}, &fakeMember{"second"}, &fakeMember{"pull"}

	if err := g.SetRtmpPub(first); err != nil {
		t.Fatal(err)
	}
	if err := g.SetRtmpPub(second); errors.Cause(err) != ErrOriginExists {
		t.Errorf("expected %v, but got %v", ErrOriginExists, err)
	}
	if err := g.SetHttpFlvPull(pull); errors.Cause(err) != ErrOriginExists {
		t.Errorf("expected %v, but got %v", ErrOriginExists, err)
	}
	if g.RtmpPub() != Origin(first) || g.HttpFlvPull() != nil {
		t.Errorf("expected the first origin to stay")
	}

	// resetting with something that isn't the origin does nothing
	g.ResetRtmpPub(second)
	if !g.HasOrigin() {
		t.Errorf("expected the origin to stay")
	}
	g.ResetRtmpPub(first)
	if g.HasOrigin() {
		t.Errorf("expected no origin")
	}
	if err := g.SetHttpFlvPull(pull); err != nil {
		t.Errorf("expected the pull to be accepted once the publisher left, but got %v", err)
	}
	if err := g.SetRtmpPub(first); errors.Cause(err) != ErrOriginExists {
		t.Errorf("expected %v, but got %v", ErrOriginExists, err)
	}
}

func TestGroup_LateJoinReplaysHeadersInOrder(t *testing.T) {
	g := NewGroup(testLogger(t), "live/stream")
	pub := &fakeMember{"pub"}
	if err := g.OnRtmpPublish(pub); err != nil {
		t.Fatal(err)
	}
	publish(g, pub, 1280)

	if !bytes.Equal(g.VideoSeqHeader(), testAVCSequenceHeader) || !bytes.Equal(g.AudioSeqHeader(), testAACSequenceHeader) {
		t.Fatalf("expected both sequence headers to be cached")
	}
	metadata := g.Metadata()
	if name, _, _ := amf0.DecodeString(metadata); string(name) != "onMetaData" {
		t.Errorf("expected cached metadata to start with onMetaData, but got %q", name)
	}

	sub := &fakeRtmpSubscriber{fakeMember: fakeMember{"sub"}}
	if err := g.AddRtmpSub(sub); err != nil {
		t.Fatal(err)
	}
	g.OnRtmpData(pub, Header{MessageType: AudioMessage, Timestamp: 50}, testAudioFrame)

	expected := []struct {
		messageType MessageType
		payload     []byte
	}{
		{DataMessageAMF0, metadata},
		{VideoMessage, testAVCSequenceHeader},
		{AudioMessage, testAACSequenceHeader},
		{AudioMessage, testAudioFrame},
	}
	if len(sub.messages) != len(expected) {
		t.Fatalf("expected %v messages, but got %v", len(expected), len(sub.messages))
	}
	for i, e := range expected {
		m := sub.messages[i]
		if m.header.MessageType != e.messageType || !bytes.Equal(m.payload, e.payload) {
			t.Errorf("message %d: expected type %v, but got %v", i, e.messageType, m.header.MessageType)
		}
	}
	if sub.messages[3].header.Timestamp != 50 {
		t.Errorf("expected the live timestamp to be kept, but got %v", sub.messages[3].header.Timestamp)
	}
}

func TestGroup_LiveSubscriberGetsStrippedMetadata(t *testing.T) {
	g := NewGroup(testLogger(t), "live/stream")
	pub := &fakeMember{"pub"}
	g.SetRtmpPub(pub)
	sub := &fakeRtmpSubscriber{fakeMember: fakeMember{"sub"}}
	g.AddRtmpSub(sub)
	flvSub := &fakeFlvSubscriber{fakeMember: fakeMember{"flv"}}
	g.AddHttpFlvSub(flvSub)

	publish(g, pub, 640)

	if len(sub.messages) != 4 || len(flvSub.tags) != 4 {
		t.Fatalf("expected 4 messages each, but got %v and %v", len(sub.messages), len(flvSub.tags))
	}
	if name, _, _ := amf0.DecodeString(sub.messages[0].payload); string(name) != "onMetaData" {
		t.Errorf("expected metadata to start with onMetaData, but got %q", name)
	}
	expectedTypes := []uint8{flv.TagTypeScript, flv.TagTypeAudio, flv.TagTypeVideo, flv.TagTypeVideo}
	for i, tagType := range expectedTypes {
		if flvSub.tags[i].Type != tagType {
			t.Errorf("tag %d: expected type %v, but got %v", i, tagType, flvSub.tags[i].Type)
		}
	}
	if flvSub.tags[3].Timestamp != 40 {
		t.Errorf("expected timestamp to be %v, but got %v", 40, flvSub.tags[3].Timestamp)
	}
}

func TestGroup_IgnoresDataFromOthers(t *testing.T) {
	g := NewGroup(testLogger(t), "live/stream")
	pub, intruder := &fakeMember{"pub"}, &fakeMember{"intruder"}
	g.SetRtmpPub(pub)
	sub := &fakeRtmpSubscriber{fakeMember: fakeMember{"sub"}}
	g.AddRtmpSub(sub)

	publish(g, intruder, 640)
	if len(sub.messages) != 0 || g.VideoSeqHeader() != nil {
		t.Errorf("expected data from a non-origin to be dropped")
	}

	// neither is pulled data without a pull origin
	g.OnHttpFlvData(flv.Pack(flv.Tag{Type: flv.TagTypeVideo, Data: testKeyFrame}))
	if len(sub.messages) != 0 {
		t.Errorf("expected pulled data without a pull origin to be dropped")
	}
}

func TestGroup_PublishStopClearsCaches(t *testing.T) {
	g := NewGroup(testLogger(t), "live/stream")
	first := &fakeMember{"first"}
	g.OnRtmpPublish(first)
	publish(g, first, 640)
	sub := &fakeRtmpSubscriber{fakeMember: fakeMember{"sub"}}
	g.AddRtmpSub(sub)

	g.OnRtmpPublishStop(first)
	if g.Metadata() != nil || g.VideoSeqHeader() != nil || g.AudioSeqHeader() != nil {
		t.Errorf("expected the caches to be cleared")
	}
	if !g.HasSubscribers() {
		t.Errorf("expected subscribers to stay")
	}

	received := len(sub.messages)
	second := &fakeMember{"second"}
	if err := g.OnRtmpPublish(second); err != nil {
		t.Fatal(err)
	}
	publish(g, second, 1920)
	if len(sub.messages) != received+4 {
		t.Errorf("expected the subscriber to get the new publisher's stream")
	}

	late := &fakeRtmpSubscriber{fakeMember: fakeMember{"late"}}
	g.AddRtmpSub(late)
	if len(late.messages) != 3 {
		t.Fatalf("expected 3 replayed messages, but got %v", len(late.messages))
	}
	if !bytes.Equal(late.messages[0].payload, g.Metadata()) {
		t.Errorf("expected the new publisher's metadata to be replayed")
	}
}

func TestGroup_FailingSubscriberIsRemoved(t *testing.T) {
	g := NewGroup(testLogger(t), "live/stream")
	pub := &fakeMember{"pub"}
	g.SetRtmpPub(pub)
	good := &fakeRtmpSubscriber{fakeMember: fakeMember{"good"}}
	bad := &fakeRtmpSubscriber{fakeMember: fakeMember{"bad"}}
	badFlv := &fakeFlvSubscriber{fakeMember: fakeMember{"badFlv"}}
	g.AddRtmpSub(good)
	g.AddRtmpSub(bad)
	g.AddHttpFlvSub(badFlv)
	bad.fail = true
	badFlv.fail = true

	g.OnRtmpData(pub, Header{MessageType: VideoMessage}, testKeyFrame)
	bad.fail = false
	badFlv.fail = false
	g.OnRtmpData(pub, Header{MessageType: VideoMessage}, testKeyFrame)

	if len(good.messages) != 2 {
		t.Errorf("expected the good subscriber to get 2 messages, but got %v", len(good.messages))
	}
	if len(bad.messages) != 0 || len(badFlv.tags) != 0 {
		t.Errorf("expected failed subscribers to be removed")
	}

	// a failed replay doesn't register the subscriber
	publish(g, pub, 640)
	refused := &fakeRtmpSubscriber{fakeMember: fakeMember{"refused"}, fail: true}
	if err := g.AddRtmpSub(refused); errors.Cause(err) != errDelivery {
		t.Errorf("expected %v, but got %v", errDelivery, err)
	}
	refused.fail = false
	g.OnRtmpData(pub, Header{MessageType: AudioMessage}, testAudioFrame)
	if len(refused.messages) != 0 {
		t.Errorf("expected a subscriber whose replay failed not to be registered")
	}
}

func TestGroup_HttpFlvPull(t *testing.T) {
	g := NewGroup(testLogger(t), "live/stream")
	pull := &fakeMember{"pull"}
	if err := g.SetHttpFlvPull(pull); err != nil {
		t.Fatal(err)
	}
	sub := &fakeRtmpSubscriber{fakeMember: fakeMember{"sub"}}
	g.AddRtmpSub(sub)
	g.OnHttpFlvPullConnected()

	g.OnHttpFlvData(flv.Pack(
		flv.Tag{Type: flv.TagTypeScript, Data: setDataFramePayload(640)[amf0.ReserveString("@setDataFrame"):]},
		flv.Tag{Type: flv.TagTypeVideo, Data: testAVCSequenceHeader},
		flv.Tag{Type: flv.TagTypeAudio, Data: testAACSequenceHeader},
		flv.Tag{Type: flv.TagTypeVideo, Timestamp: 0x01000000, Data: testKeyFrame},
	))

	if len(sub.messages) != 4 {
		t.Fatalf("expected 4 messages, but got %v", len(sub.messages))
	}
	if sub.messages[3].header.Timestamp != 0x01000000 || sub.messages[3].header.MessageType != VideoMessage {
		t.Errorf("unexpected header %+v", sub.messages[3].header)
	}
	if g.Metadata() == nil || g.VideoSeqHeader() == nil || g.AudioSeqHeader() == nil {
		t.Errorf("expected pulled headers to be cached")
	}

	// a reconnect starts from scratch
	g.OnHttpFlvPullConnected()
	if g.Metadata() != nil || g.VideoSeqHeader() != nil {
		t.Errorf("expected the caches to be cleared on reconnect")
	}

	g.ResetHttpFlvPull(pull)
	if g.HasOrigin() {
		t.Errorf("expected no origin")
	}
}

func TestGroup_SessionCloseAndEmptiness(t *testing.T) {
	g := NewGroup(testLogger(t), "live/stream")
	if !g.IsEmpty() {
		t.Errorf("expected a new group to be empty")
	}
	pub := &fakeRtmpSubscriber{fakeMember: fakeMember{"pub"}}
	sub := &fakeRtmpSubscriber{fakeMember: fakeMember{"sub"}}
	g.SetRtmpPub(pub)
	g.AddRtmpSub(sub)
	publish(g, pub, 640)

	g.OnRtmpSessionClose(pub)
	if g.HasOrigin() || g.VideoSeqHeader() != nil {
		t.Errorf("expected closing the publisher to detach it and clear the caches")
	}
	if !g.HasSubscribers() || g.IsEmpty() {
		t.Errorf("expected the subscriber to stay")
	}
	g.OnRtmpSessionClose(sub)
	if g.HasSubscribers() || !g.IsEmpty() {
		t.Errorf("expected the group to be empty")
	}

	flvSub := &fakeFlvSubscriber{fakeMember: fakeMember{"flv"}}
	g.AddHttpFlvSub(flvSub)
	g.DelHttpFlvSub(flvSub)
	g.AddRtmpSub(sub)
	g.DelRtmpSub(sub)
	if !g.IsEmpty() {
		t.Errorf("expected the group to be empty")
	}

	g.SetRtmpPub(pub)
	g.AddHttpFlvSub(flvSub)
	g.Dispose()
	if !g.IsEmpty() {
		t.Errorf("expected a disposed group to be empty")
	}
}

func TestGroup_JoinBetweenFrames(t *testing.T) {
	g := NewGroup(testLogger(t), "live/stream")
	pub := &fakeMember{"pub"}
	g.OnRtmpPublish(pub)

	properties := amf0.NewObjectMap()
	properties.Put("width", amf0.Number(1280))
	properties.Put("height", amf0.Number(720))
	metadata := make([]byte, amf0.ReserveString("onMetaData")+amf0.ReserveObject(properties))
	n := amf0.EncodeString(metadata, "onMetaData")
	amf0.EncodeObject(metadata[n:], properties)

	frames := [][]byte{
		{0x17, 0x01, 0x00, 0x00, 0x00, 0x01},
		{0x27, 0x01, 0x00, 0x00, 0x00, 0x02},
		{0x27, 0x01, 0x00, 0x00, 0x00, 0x03},
	}
	g.OnRtmpData(pub, Header{MessageType: DataMessageAMF0}, metadata)
	g.OnRtmpData(pub, Header{MessageType: VideoMessage}, testAVCSequenceHeader)
	g.OnRtmpData(pub, Header{MessageType: VideoMessage, Timestamp: 0}, frames[0])

	sub := &fakeRtmpSubscriber{fakeMember: fakeMember{"sub"}}
	g.AddRtmpSub(sub)
	g.OnRtmpData(pub, Header{MessageType: VideoMessage, Timestamp: 40}, frames[1])
	g.OnRtmpData(pub, Header{MessageType: VideoMessage, Timestamp: 80}, frames[2])

	expected := [][]byte{metadata, testAVCSequenceHeader, frames[1], frames[2]}
	if len(sub.messages) != len(expected) {
		t.Fatalf("expected %v messages, but got %v", len(expected), len(sub.messages))
	}
	for i, e := range expected {
		if !bytes.Equal(sub.messages[i].payload, e) {
			t.Errorf("message %d: expected %v, but got %v", i, e, sub.messages[i].payload)
		}
	}
}
