package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// AddressSize is the length in bytes of an Address (an ed25519 public key).
const AddressSize = ed25519.PublicKeySize

// SignatureSize is the length in bytes of an ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// PrivateKey wraps ed25519 private key bytes.
type PrivateKey []byte

// PublicKey wraps ed25519 public key bytes.
type PublicKey []byte

// Address is the 32-byte account identifier: the raw ed25519 public key
// bytes of the owning key pair.
type Address [AddressSize]byte

// Signature is a 64-byte ed25519 signature.
type Signature [SignatureSize]byte

// GenerateKeyPair generates a new ed25519 key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PrivateKey(priv), PublicKey(pub), nil
}

// Address returns the public key bytes as an Address. Unlike a hashed
// identifier, this is a direct reinterpretation: Address IS the pubkey.
func (pub PublicKey) Address() Address {
	var a Address
	copy(a[:], pub)
	return a
}

// Hex returns the full 64-char hex-encoded public key.
func (pub PublicKey) Hex() string {
	return hex.EncodeToString(pub)
}

// Hex returns the hex-encoded private key.
func (priv PrivateKey) Hex() string {
	return hex.EncodeToString(priv)
}

// Public derives the ed25519 public key from the private key.
func (priv PrivateKey) Public() PublicKey {
	return PublicKey(ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
}

// PubKeyFromHex decodes a hex-encoded public key.
func PubKeyFromHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey hex: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("pubkey must be %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	return PublicKey(b), nil
}

// PrivKeyFromHex decodes a hex-encoded private key.
func PrivKeyFromHex(s string) (PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid privkey hex: %w", err)
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("privkey must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	return PrivateKey(b), nil
}

// Bytes returns the raw address bytes.
func (a Address) Bytes() []byte { return a[:] }

// Hex returns the lowercase hex encoding of a.
func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

// String implements fmt.Stringer.
func (a Address) String() string { return a.Hex() }

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool { return a == Address{} }

// PublicKey reinterprets the address as an ed25519 public key for
// signature verification.
func (a Address) PublicKey() PublicKey {
	return PublicKey(a[:])
}

// AddressFromHex decodes a 64-char hex string into an Address.
func AddressFromHex(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid address hex: %w", err)
	}
	if len(b) != AddressSize {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// MarshalJSON encodes the address as a lowercase hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Hex())
}

// UnmarshalJSON decodes a lowercase hex string into the address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := AddressFromHex(s)
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// Bytes returns the raw signature bytes.
func (s Signature) Bytes() []byte { return s[:] }

// Hex returns the lowercase hex encoding of s.
func (s Signature) Hex() string { return hex.EncodeToString(s[:]) }

// String implements fmt.Stringer.
func (s Signature) String() string { return s.Hex() }

// SignatureFromHex decodes a 128-char hex string into a Signature.
func SignatureFromHex(h string) (Signature, error) {
	var s Signature
	b, err := hex.DecodeString(h)
	if err != nil {
		return s, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(b) != SignatureSize {
		return s, fmt.Errorf("signature must be %d bytes, got %d", SignatureSize, len(b))
	}
	copy(s[:], b)
	return s, nil
}

// MarshalJSON encodes the signature as a lowercase hex string.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Hex())
}

// UnmarshalJSON decodes a lowercase hex string into the signature.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	decoded, err := SignatureFromHex(str)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}
