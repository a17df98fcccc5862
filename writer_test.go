package rtmp

import (
	"bytes"
	"testing"
)

type bufferFlusher struct {
	bytes.Buffer
}

func (b *bufferFlusher) Flush() error {
	return nil
}

func TestSendQueue_Overflow(t *testing.T) {
	q := newSendQueue(&bufferFlusher{}, 2)
	message := Message{Header: Header{ChunkStreamID: AudioChannel, MessageType: AudioMessage}, Payload: []byte{0xAF}}
	for i := 0; i < 2; i++ {
		if err := q.Enqueue(message); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := q.Enqueue(message); err != ErrSendQueueFull {
		t.Errorf("expected %v, but got %v", ErrSendQueueFull, err)
	}

	q.close(ErrSessionClosed)
	q.close(ErrSendQueueFull)
	if err := q.EnqueueRaw([]byte{3}); err != ErrSessionClosed {
		t.Errorf("expected %v, but got %v", ErrSessionClosed, err)
	}
}

func TestSendQueue_ChunkSizeChange(t *testing.T) {
	writer := &bufferFlusher{}
	q := newSendQueue(writer, 0)
	payload := bytes.Repeat([]byte{0x01}, 300)
	items := []outbound{
		{message: Message{Payload: []byte{0x03}}, raw: true},
		{message: generateSetChunkSizeMessage(4096)},
		{message: Message{Header: Header{ChunkStreamID: AudioChannel, MessageType: AudioMessage, MessageStreamID: 1}, Payload: payload}},
	}
	for _, item := range items {
		if err := q.write(item); err != nil {
			t.Fatal(err)
		}
	}
	if q.chunkSize != 4096 {
		t.Errorf("expected chunk size to be %v, but got %v", 4096, q.chunkSize)
	}

	written := writer.Bytes()
	if written[0] != 0x03 {
		t.Fatalf("expected raw bytes to be written as they are")
	}
	// the audio message fits in a single chunk once the size changed
	expectedLength := 1 + (12 + 4) + (12 + len(payload))
	if len(written) != expectedLength {
		t.Errorf("expected %v bytes, but got %v", expectedLength, len(written))
	}
	messages := collect(t, NewChunkHandler(), written[1:], len(written))
	if len(messages) != 2 || !bytes.Equal(messages[1].payload, payload) {
		t.Errorf("expected the audio message to decode after the chunk size change")
	}
}
