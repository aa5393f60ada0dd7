// errors.go - list of all exportable errors in this package
//
// (c) 2025 QWAMOS Project <dev@qwamos.org>
//
// Licensing Terms: GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package keystore

import "errors"

var (
	// ErrKeyNotFound is returned when no record exists for a key id.
	ErrKeyNotFound = errors.New("key not found in keystore")

	// ErrKeyGeneration is returned when the underlying KEM primitive
	// fails to produce a key pair. Not retryable.
	ErrKeyGeneration = errors.New("key generation failed")

	// ErrDecapsulation is returned when an encapsulated secret can't
	// be recovered with the named key: wrong key, or tampered blob.
	ErrDecapsulation = errors.New("decapsulation failed")

	// ErrKeyArchived is returned when an encapsulation is attempted
	// against a rotated-out key. Decapsulation of old blobs is still
	// allowed; binding new data to a retired key is not.
	ErrKeyArchived = errors.New("key archived by rotation")

	// ErrBadOwner is returned when an owner tag is empty or contains
	// characters unfit for a filename.
	ErrBadOwner = errors.New("invalid owner tag")

	// ErrBadRecord is returned when a key record on disk is
	// malformed or fails to unwrap under the master key.
	ErrBadRecord = errors.New("malformed key record")

	// ErrBadMasterKey is returned when the master key file is the
	// wrong size.
	ErrBadMasterKey = errors.New("malformed master key")
)
