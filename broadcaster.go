package rtmp

import "github.com/livehub/rtmp/flv"

// Member is anything attached to a Group: its origin or one of its subscribers. Members are compared by
// identity.
type Member interface {
	ID() string
}

// Origin is the single source of a Group's media (an RTMP publisher).
type Origin interface {
	Member
}

// PullSource is an origin that pulls media from an upstream HTTP-FLV server.
type PullSource interface {
	Member
}

// An RtmpSubscriber gets sent audio, video and data messages of a stream. SendMessage must not block;
// an error removes the subscriber from the Group.
type RtmpSubscriber interface {
	Member
	SendMessage(header Header, payload []byte) error
}

// An FlvSubscriber gets sent the stream as FLV tags. WriteTag must not block; an error removes the
// subscriber from the Group.
type FlvSubscriber interface {
	Member
	WriteTag(tag flv.Tag) error
}

// broadcastRtmp sends a message to every subscriber and returns the ones that failed.
func broadcastRtmp(subscribers map[RtmpSubscriber]struct{}, header Header, payload []byte) []RtmpSubscriber {
	var failed []RtmpSubscriber
	for subscriber := range subscribers {
		if err := subscriber.SendMessage(header, payload); err != nil {
			failed = append(failed, subscriber)
		}
	}
	return failed
}

// broadcastFlv writes a tag to every subscriber and returns the ones that failed.
func broadcastFlv(subscribers map[FlvSubscriber]struct{}, tag flv.Tag) []FlvSubscriber {
	var failed []FlvSubscriber
	for subscriber := range subscribers {
		if err := subscriber.WriteTag(tag); err != nil {
			failed = append(failed, subscriber)
		}
	}
	return failed
}
