package crypto

import (
	"bytes"
	"encoding/binary"
)

// Encoder builds the canonical binary encoding used everywhere a hash is
// computed over a struct: fixed-width little-endian integers, fixed-width
// address/hash fields, and length-prefixed variable byte slices, written in
// the same order the caller appends them (which must match struct
// declaration order). This generalizes the length-prefix-then-hash idiom
// used ad hoc for tx-root and state-root hashing into one reusable encoder
// so every canonical hash in the system goes through the same code path.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Uint64 appends v as 8 fixed-width little-endian bytes.
func (e *Encoder) Uint64(v uint64) *Encoder {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
	return e
}

// Address appends a fixed-width 32-byte address.
func (e *Encoder) Address(a Address) *Encoder {
	e.buf.Write(a[:])
	return e
}

// Hash appends a fixed-width 32-byte hash.
func (e *Encoder) Hash(h Hash) *Encoder {
	e.buf.Write(h[:])
	return e
}

// Bytes appends b as a 4-byte little-endian length prefix followed by the
// raw bytes, for variable-length fields.
func (e *Encoder) Bytes(b []byte) *Encoder {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	e.buf.Write(lenBuf[:])
	e.buf.Write(b)
	return e
}

// Encoded returns the accumulated canonical byte sequence.
func (e *Encoder) Encoded() []byte {
	return e.buf.Bytes()
}
