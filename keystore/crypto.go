// crypto.go -- encapsulation and key derivation against stored keys
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

import (
	"crypto/subtle"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/Dezirae-Stark/QWAMOS-sub005/kem"
)

// ML-KEM decapsulation rejects implicitly: a foreign ciphertext
// yields a random-looking secret, not an error. A short confirmation
// tag derived from the shared secret rides along with the ciphertext
// so Decapsulate can fail loudly instead.
const confirmSize = 32

const confirmContext = "qwamos.kem.confirm.v1"

// Encapsulate generates a fresh shared secret against the public key
// of keyID. The returned blob is the KEM ciphertext plus a
// confirmation tag; it is what gets stored in a volume header.
func (ks *Keystore) Encapsulate(keyID string) (blob, ss []byte, err error) {
	ks.mu.Lock()
	r, _, _, err := ks.load(keyID)
	ks.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	if r.Archived {
		return nil, nil, fmt.Errorf("keystore: %w: %s superseded by %s", ErrKeyArchived, keyID, r.SupersededBy)
	}

	s, err := kem.Get(r.Kem)
	if err != nil {
		return nil, nil, err
	}

	ct, ss, err := s.Encapsulate(r.Pub)
	if err != nil {
		return nil, nil, fmt.Errorf("keystore: encapsulate %s: %w", keyID, err)
	}

	blob = make([]byte, 0, len(ct)+confirmSize)
	blob = append(blob, ct...)
	blob = append(blob, confirmTag(ss)...)
	return blob, ss, nil
}

// Decapsulate recovers the shared secret from a blob produced by
// Encapsulate. Returns ErrDecapsulation if the blob was made for a
// different key or has been tampered with.
func (ks *Keystore) Decapsulate(keyID string, blob []byte) ([]byte, error) {
	ks.mu.Lock()
	r, esk, salt, err := ks.load(keyID)
	ks.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s, err := kem.Get(r.Kem)
	if err != nil {
		return nil, err
	}

	n := s.CiphertextSize()
	if len(blob) != n+confirmSize {
		return nil, fmt.Errorf("keystore: %w: blob is %d bytes, want %d", ErrDecapsulation, len(blob), n+confirmSize)
	}

	sec, err := ks.unwrap(esk, salt, keyID)
	if err != nil {
		return nil, err
	}

	ss, err := s.Decapsulate(sec, blob[:n])
	SecureErase(sec)
	if err != nil {
		return nil, fmt.Errorf("keystore: decapsulate %s: %w", keyID, err)
	}

	if subtle.ConstantTimeCompare(confirmTag(ss), blob[n:]) != 1 {
		SecureErase(ss)
		return nil, fmt.Errorf("keystore: %w: key %s", ErrDecapsulation, keyID)
	}
	return ss, nil
}

// DeriveKey derives a 32 byte purpose-bound key from a shared
// secret. Distinct contexts yield independent keys.
func DeriveKey(ss, salt []byte, context string) []byte {
	return expand(ss, salt, []byte(context), 32)
}

// SecureErase zeroes key material in place.
func SecureErase(b []byte) {
	clear(b)
}

func confirmTag(ss []byte) []byte {
	tag := make([]byte, confirmSize)
	blake3.DeriveKey(tag, confirmContext, ss)
	return tag
}
