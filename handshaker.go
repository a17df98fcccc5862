package rtmp

// Handshaker consumes the bytes that precede the chunk stream.
type Handshaker interface {
	// Feed consumes handshake bytes from the start of p. It returns how many bytes were used and the
	// bytes to send back to the peer, if any. Bytes past the handshake are left unconsumed.
	Feed(p []byte) (used int, response []byte, err error)
	// Done reports whether the handshake is complete.
	Done() bool
}
