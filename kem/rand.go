// rand.go - utility functions to generate random quantities
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
	"crypto/rand"
	"fmt"
)

func randBuf(sz int) []byte {
	b := make([]byte, sz)
	return randRead(b)
}

func randRead(b []byte) []byte {
	n, err := rand.Read(b)
	if err != nil || n != len(b) {
		panic(fmt.Sprintf("can't read %d bytes of random data: %s", len(b), err))
	}
	return b
}
