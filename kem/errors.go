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

package kem

import "errors"

var (
	// ErrUnknownScheme is returned when a scheme name is not
	// registered.
	ErrUnknownScheme = errors.New("unknown KEM scheme")

	// ErrBadKeySize is returned when a key is not the size the
	// scheme requires.
	ErrBadKeySize = errors.New("malformed KEM key")

	// ErrBadCiphertext is returned when an encapsulated ciphertext
	// is not the size the scheme requires.
	ErrBadCiphertext = errors.New("malformed KEM ciphertext")
)
