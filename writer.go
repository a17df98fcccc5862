package rtmp

import (
	"bufio"
	"encoding/binary"
	"io"
	"sync"

	"github.com/livehub/rtmp/config"
)

type WriteFlusher interface {
	io.Writer
	Flusher
}

type Flusher interface {
	Flush() error
}

func NewWriter(writer io.Writer) (WriteFlusher, error) {
	if writer == nil {
		return nil, ErrNilWriter
	}
	return bufio.NewWriterSize(writer, config.BuffioSize), nil
}

type outbound struct {
	message Message
	// raw bytes are written as they are (handshake), without chunking.
	raw bool
}

// sendQueue serializes everything a session writes. Enqueue never blocks; a single goroutine (run)
// chunks the messages and writes them in order. That goroutine also owns the outgoing chunk size, which
// changes right after a Set Chunk Size message is written, so later messages are split with the new size.
type sendQueue struct {
	writer    WriteFlusher
	maxLength int

	mu      sync.Mutex
	pending []outbound
	err     error

	wake chan struct{}
	done chan struct{}

	chunkSize uint32
	buf       []byte
}

func newSendQueue(writer WriteFlusher, maxLength int) *sendQueue {
	return &sendQueue{
		writer:    writer,
		maxLength: maxLength,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		chunkSize: DefaultMaximumChunkSize,
	}
}

func (q *sendQueue) Enqueue(message Message) error {
	return q.push(outbound{message: message})
}

func (q *sendQueue) EnqueueRaw(p []byte) error {
	return q.push(outbound{message: Message{Payload: p}, raw: true})
}

func (q *sendQueue) push(item outbound) error {
	q.mu.Lock()
	if q.err != nil {
		err := q.err
		q.mu.Unlock()
		return err
	}
	if q.maxLength > 0 && len(q.pending) >= q.maxLength {
		q.mu.Unlock()
		return ErrSendQueueFull
	}
	q.pending = append(q.pending, item)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// run writes queued messages until the queue is closed or a write fails. A write error closes the
// queue and is returned.
func (q *sendQueue) run() error {
	for {
		select {
		case <-q.wake:
		case <-q.done:
			return nil
		}

		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, item := range batch {
			if err := q.write(item); err != nil {
				q.close(err)
				return err
			}
		}
		if err := q.writer.Flush(); err != nil {
			q.close(err)
			return err
		}
	}
}

func (q *sendQueue) write(item outbound) error {
	if item.raw {
		_, err := q.writer.Write(item.message.Payload)
		return err
	}

	message := item.message
	q.buf = AppendMessage(q.buf[:0], message.Header, message.Payload, q.chunkSize)
	if _, err := q.writer.Write(q.buf); err != nil {
		return err
	}
	if message.Header.MessageType == SetChunkSize && len(message.Payload) >= 4 {
		q.chunkSize = binary.BigEndian.Uint32(message.Payload) & 0x7FFFFFFF
	}
	return nil
}

// close fails every queued and future send with err. Only the first call has an effect.
func (q *sendQueue) close(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return
	}
	q.err = err
	q.pending = nil
	close(q.done)
}
