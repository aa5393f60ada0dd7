// hybrid.go - ML-KEM-1024 + X25519 hybrid scheme
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
)

// hybrid combines ML-KEM-1024 with X25519. The final secret is an
// HKDF over both shared secrets with the full ciphertext bound in;
// an attacker must break both primitives to recover it.
type hybrid struct {
	pq Scheme
	dh Scheme
}

var hybridInfo = []byte("qwamos.kem.hybrid.v1")

func init() {
	Register(&hybrid{
		pq: &mlkem1024{},
		dh: &x25519{},
	})
}

func (h *hybrid) Name() string {
	return "mlkem1024-x25519"
}

func (h *hybrid) PublicKeySize() int {
	return h.pq.PublicKeySize() + h.dh.PublicKeySize()
}

func (h *hybrid) SecretKeySize() int {
	return h.pq.SecretKeySize() + h.dh.SecretKeySize()
}

func (h *hybrid) CiphertextSize() int {
	return h.pq.CiphertextSize() + h.dh.CiphertextSize()
}

func (h *hybrid) GenerateKeyPair() ([]byte, []byte, error) {
	p1, s1, err := h.pq.GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	p2, s2, err := h.dh.GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}

	pub := append(p1, p2...)
	sec := append(s1, s2...)
	return pub, sec, nil
}

func (h *hybrid) Encapsulate(pub []byte) ([]byte, []byte, error) {
	if len(pub) != h.PublicKeySize() {
		return nil, nil, fmt.Errorf("hybrid: %w: pub key is %d bytes", ErrBadKeySize, len(pub))
	}

	n := h.pq.PublicKeySize()
	ct1, ss1, err := h.pq.Encapsulate(pub[:n])
	if err != nil {
		return nil, nil, err
	}
	ct2, ss2, err := h.dh.Encapsulate(pub[n:])
	if err != nil {
		return nil, nil, err
	}

	ct := append(ct1, ct2...)
	return ct, h.combine(ss1, ss2, ct), nil
}

func (h *hybrid) Decapsulate(sec, ct []byte) ([]byte, error) {
	if len(sec) != h.SecretKeySize() {
		return nil, fmt.Errorf("hybrid: %w: sec key is %d bytes", ErrBadKeySize, len(sec))
	}
	if len(ct) != h.CiphertextSize() {
		return nil, fmt.Errorf("hybrid: %w: ct is %d bytes", ErrBadCiphertext, len(ct))
	}

	n := h.pq.SecretKeySize()
	m := h.pq.CiphertextSize()

	ss1, err := h.pq.Decapsulate(sec[:n], ct[:m])
	if err != nil {
		return nil, err
	}
	ss2, err := h.dh.Decapsulate(sec[n:], ct[m:])
	if err != nil {
		return nil, err
	}

	return h.combine(ss1, ss2, ct), nil
}

func (h *hybrid) combine(ss1, ss2, ct []byte) []byte {
	ikm := make([]byte, 0, len(ss1)+len(ss2))
	ikm = append(ikm, ss1...)
	ikm = append(ikm, ss2...)

	ss := expand(ikm, ct, hybridInfo, SharedKeySize)
	clear(ikm)
	return ss
}

var _ Scheme = &hybrid{}
