// Package crypto provides the hashing, signing, and canonical-encoding
// primitives shared by every other package: storage keys, block and
// transaction identifiers, and wire messages are all built on top of it.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashSize is the length in bytes of a SHA-256 digest.
const HashSize = 32

// Hash is a 32-byte SHA-256 digest.
type Hash [HashSize]byte

// ZeroHash is the all-zero hash used for the genesis parent hash and the
// empty-block tx root.
var ZeroHash Hash

// HashBytes returns the SHA-256 digest of data.
func HashBytes(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// Bytes returns the raw digest bytes.
func (h Hash) Bytes() []byte { return h[:] }

// Hex returns the lowercase hex encoding of h.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// String implements fmt.Stringer.
func (h Hash) String() string { return h.Hex() }

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool { return h == ZeroHash }

// HashFromHex decodes a 64-char hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// MarshalJSON encodes the hash as a lowercase hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Hex())
}

// UnmarshalJSON decodes a lowercase hex string into the hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := HashFromHex(s)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}
