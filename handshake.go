package rtmp

import (
	"encoding/binary"
	"time"

	"github.com/livehub/rtmp/rand"
	"github.com/pkg/errors"
)

const RtmpVersion3 = 3

const (
	handshakeMessageLength = 1536
	c0c1Length             = 1 + handshakeMessageLength
	c2Length               = handshakeMessageLength
	s0s1s2Length           = 1 + 2*handshakeMessageLength
)

type handshakeStage uint8

const (
	waitingForC0C1 handshakeStage = iota
	waitingForC2
	handshakeCompleted
)

// Handshake is the server side of the simple (unencrypted) handshake. It accepts C0C1 and C2 in
// pieces of any size.
type Handshake struct {
	stage handshakeStage
	buf   []byte
	start time.Time
}

func NewHandshake() *Handshake {
	return &Handshake{
		buf:   make([]byte, 0, c0c1Length),
		start: time.Now(),
	}
}

func (h *Handshake) Done() bool {
	return h.stage == handshakeCompleted
}

func (h *Handshake) Feed(p []byte) (int, []byte, error) {
	switch h.stage {
	case waitingForC0C1:
		used := h.accumulate(p, c0c1Length)
		if len(h.buf) < c0c1Length {
			return used, nil, nil
		}
		if h.buf[0] != RtmpVersion3 {
			return used, nil, errors.Wrapf(ErrUnsupportedRTMPVersion, "got version %d", h.buf[0])
		}
		s0s1s2, err := h.generateS0S1S2(h.buf[1:])
		if err != nil {
			return used, nil, err
		}
		h.buf = h.buf[:0]
		h.stage = waitingForC2
		// C2 may already be in p
		n, _, err := h.Feed(p[used:])
		return used + n, s0s1s2, err
	case waitingForC2:
		// C2 echoes S1; nothing in it is checked besides its length.
		used := h.accumulate(p, c2Length)
		if len(h.buf) == c2Length {
			h.stage = handshakeCompleted
			h.buf = nil
		}
		return used, nil, nil
	default:
		return 0, nil, nil
	}
}

// accumulate buffers bytes from p until buf holds want bytes, returning how many were taken.
func (h *Handshake) accumulate(p []byte, want int) int {
	n := want - len(h.buf)
	if n > len(p) {
		n = len(p)
	}
	h.buf = append(h.buf, p[:n]...)
	return n
}

func (h *Handshake) uptime() uint32 {
	return uint32(time.Since(h.start) / time.Millisecond)
}

// generateS0S1S2 builds the server's reply to C1.
// S1: time (4) + zero (4) + random (1528).
// S2: the time of C1 (4) + our time (4) + the random part of C1 (1528).
func (h *Handshake) generateS0S1S2(c1 []byte) ([]byte, error) {
	s0s1s2 := make([]byte, s0s1s2Length)
	s0s1s2[0] = RtmpVersion3

	s1 := s0s1s2[1 : 1+handshakeMessageLength]
	binary.BigEndian.PutUint32(s1, h.uptime())
	if err := rand.Fill(s1[8:]); err != nil {
		return nil, errors.Wrap(err, "generate s1")
	}

	s2 := s0s1s2[1+handshakeMessageLength:]
	copy(s2[:4], c1[:4])
	binary.BigEndian.PutUint32(s2[4:8], h.uptime())
	copy(s2[8:], c1[8:])
	return s0s1s2, nil
}
