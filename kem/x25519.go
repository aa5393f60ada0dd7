// x25519.go - classical X25519 scheme (ephemeral-static DH)
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

	"golang.org/x/crypto/curve25519"
)

// x25519 offers no post-quantum security on its own; it exists as
// the classical half of the hybrid scheme and for interop testing.
type x25519 struct{}

func init() {
	Register(&x25519{})
}

func (x *x25519) Name() string {
	return "x25519"
}

func (x *x25519) PublicKeySize() int {
	return curve25519.PointSize
}

func (x *x25519) SecretKeySize() int {
	return curve25519.ScalarSize
}

// The ciphertext is just the ephemeral public key.
func (x *x25519) CiphertextSize() int {
	return curve25519.PointSize
}

func (x *x25519) GenerateKeyPair() ([]byte, []byte, error) {
	sec := clamp(randBuf(curve25519.ScalarSize))
	pub, err := curve25519.X25519(sec, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("x25519: generate: %w", err)
	}
	return pub, sec, nil
}

func (x *x25519) Encapsulate(pub []byte) ([]byte, []byte, error) {
	if len(pub) != curve25519.PointSize {
		return nil, nil, fmt.Errorf("x25519: %w: pub key is %d bytes", ErrBadKeySize, len(pub))
	}

	esk := clamp(randBuf(curve25519.ScalarSize))
	epk, err := curve25519.X25519(esk, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("x25519: encap: %w", err)
	}

	shared, err := curve25519.X25519(esk, pub)
	if err != nil {
		return nil, nil, fmt.Errorf("x25519: encap: %w", err)
	}

	ss := expand(shared, epk, dhInfo(epk, pub), SharedKeySize)
	return epk, ss, nil
}

func (x *x25519) Decapsulate(sec, ct []byte) ([]byte, error) {
	if len(sec) != curve25519.ScalarSize {
		return nil, fmt.Errorf("x25519: %w: sec key is %d bytes", ErrBadKeySize, len(sec))
	}
	if len(ct) != curve25519.PointSize {
		return nil, fmt.Errorf("x25519: %w: ct is %d bytes", ErrBadCiphertext, len(ct))
	}

	pub, err := curve25519.X25519(sec, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("x25519: decap: %w", err)
	}

	shared, err := curve25519.X25519(sec, ct)
	if err != nil {
		return nil, fmt.Errorf("x25519: decap: %w", err)
	}

	return expand(shared, ct, dhInfo(ct, pub), SharedKeySize), nil
}

// dhInfo binds both public values into the KDF so a transplanted
// ciphertext can't yield the same secret against a different key.
func dhInfo(epk, pub []byte) []byte {
	info := make([]byte, 0, len(epk)+len(pub))
	info = append(info, epk...)
	info = append(info, pub...)
	return info
}

func clamp(k []byte) []byte {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
	return k
}

var _ Scheme = &x25519{}
