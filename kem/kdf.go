// kdf.go - HKDF-SHA3 expansion helper
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

import (
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// expand derives sz bytes from the input key material via
// HKDF-SHA3-256. It panics on failure; HKDF only errors when asked
// for more output than the hash can produce.
func expand(ikm, salt, info []byte, sz int) []byte {
	h := func() hash.Hash { return sha3.New256() }
	out := make([]byte, sz)
	hx := hkdf.New(h, ikm, salt, info)
	if _, err := io.ReadFull(hx, out); err != nil {
		panic(fmt.Sprintf("hkdf: can't expand %d bytes: %s", sz, err))
	}
	return out
}
