// Package checksum computes the content-addressed identity used to key
// the module cache. It mirrors the SHA-256 byte-hashing approach in
// sandrolain-events-bridge's security/crypto package, but returns a
// fixed-width comparable value instead of a hex string so it can be
// used directly as a map/LRU key.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size is the digest length in bytes.
const Size = sha256.Size

// Checksum is a fixed-width, content-addressed digest of a canonical
// module's bytes. The zero value (all bytes zero) is never a valid
// module identity in practice.
type Checksum [Size]byte

// Compute derives the checksum of data.
func Compute(data []byte) Checksum {
	return Checksum(sha256.Sum256(data))
}

func (c Checksum) String() string {
	return hex.EncodeToString(c[:])
}

// Format implements fmt.Formatter so %x and %s both produce the hex digest.
func (c Checksum) Format(f fmt.State, verb rune) {
	_, _ = fmt.Fprint(f, c.String())
}

// IsZero reports whether c is the zero checksum.
func (c Checksum) IsZero() bool {
	return c == Checksum{}
}

// Parse decodes a hex-encoded checksum, as produced by String.
func Parse(s string) (Checksum, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Checksum{}, fmt.Errorf("checksum: invalid hex encoding: %w", err)
	}
	if len(b) != Size {
		return Checksum{}, fmt.Errorf("checksum: expected %d bytes, got %d", Size, len(b))
	}
	var c Checksum
	copy(c[:], b)
	return c, nil
}
