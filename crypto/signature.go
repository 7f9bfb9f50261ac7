package crypto

import (
	"crypto/ed25519"
)

// Sign signs data with the private key and returns the raw signature.
func Sign(priv PrivateKey, data []byte) Signature {
	raw := ed25519.Sign(ed25519.PrivateKey(priv), data)
	var sig Signature
	copy(sig[:], raw)
	return sig
}

// Verify reports whether sig is a valid signature over data by pub.
func Verify(pub PublicKey, data []byte, sig Signature) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig[:])
}
