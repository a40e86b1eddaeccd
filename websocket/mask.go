package websocket

import (
	"crypto/rand"
	"io"
)

// randReader is the source of cryptographically-strong randomness for
// mask keys, ping payloads, and handshake challenge keys. Overridable in
// tests.
var randReader io.Reader = rand.Reader

// maskBytes applies RFC 6455 section 5.3 XOR masking to data in place,
// starting at cyclic offset pos within the 4-byte key. It returns the
// offset to resume at for a subsequent call against the same key, which
// lets a fragmented payload be masked across multiple writes.
func maskBytes(key [4]byte, pos int, data []byte) int {
	for i := range data {
		data[i] ^= key[(pos+i)%4]
	}
	return (pos + len(data)) % 4
}

// newMaskKey returns a fresh, cryptographically-random 32-bit mask key.
// RFC 6455 section 5.3 requires the key be unpredictable; a zero key is
// legal but never produced here: a zero draw is discarded and redrawn.
func newMaskKey() ([4]byte, error) {
	var key [4]byte
	for {
		if _, err := io.ReadFull(randReader, key[:]); err != nil {
			return key, err
		}
		if key != ([4]byte{}) {
			return key, nil
		}
	}
}
