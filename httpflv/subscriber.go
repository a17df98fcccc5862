// Package httpflv serves streams as HTTP-FLV and WebSocket-FLV, and pulls streams from an upstream
// HTTP-FLV server when nobody publishes them.
package httpflv

import (
	"sync"

	"github.com/livehub/rtmp/flv"
	"github.com/livehub/rtmp/rand"
	"github.com/pkg/errors"
)

var ErrSubscriberTooSlow = errors.New("httpflv: subscriber queue is full")
var ErrSubscriberClosed = errors.New("httpflv: subscriber is closed")

// Subscriber buffers the tags of a Group for one HTTP or WebSocket client. The Group writes into a
// bounded queue without blocking; a full queue drops the subscriber.
type Subscriber struct {
	id        string
	tags      chan flv.Tag
	done      chan struct{}
	closeOnce sync.Once
}

func NewSubscriber(queueLength int) *Subscriber {
	if queueLength <= 0 {
		queueLength = 1
	}
	return &Subscriber{
		id:   rand.SessionID(),
		tags: make(chan flv.Tag, queueLength),
		done: make(chan struct{}),
	}
}

func (s *Subscriber) ID() string {
	return s.id
}

func (s *Subscriber) WriteTag(tag flv.Tag) error {
	select {
	case <-s.done:
		return ErrSubscriberClosed
	default:
	}
	select {
	case s.tags <- tag:
		return nil
	default:
		s.Close()
		return ErrSubscriberTooSlow
	}
}

// Tags returns the queued tags, in the order they were written.
func (s *Subscriber) Tags() <-chan flv.Tag {
	return s.tags
}

// Done is closed once the subscriber is closed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
