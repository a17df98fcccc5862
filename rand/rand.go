package rand

import (
	cryptoRand "crypto/rand"

	"github.com/google/uuid"
)

// Fill fills b with cryptographically-safe random data, e.g. the random part
// of a handshake S1.
func Fill(b []byte) error {
	_, err := cryptoRand.Read(b)
	return err
}

// SessionID returns a new UUID in string format (including hyphens).
func SessionID() string {
	return uuid.NewString()
}
