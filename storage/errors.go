package storage

import "errors"

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrCorruption is returned when a stored value fails to decode.
var ErrCorruption = errors.New("storage: corrupted record")

// ErrIO is returned when the underlying database fails on an operation
// other than a missing key.
var ErrIO = errors.New("storage: io error")

// ErrCodec wraps a JSON marshal failure when encoding a record for
// storage. A stored record that fails to decode is reported as
// ErrCorruption.
var ErrCodec = errors.New("storage: codec error")
