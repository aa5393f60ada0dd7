// mlkem.go - ML-KEM-1024 (FIPS 203) scheme
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
	"crypto/mlkem"
	"fmt"
)

// mlkem1024 is the baseline post-quantum scheme. Secret keys are
// stored in seed form (64 bytes) and expanded on use.
type mlkem1024 struct{}

func init() {
	Register(&mlkem1024{})
}

func (m *mlkem1024) Name() string {
	return "mlkem1024"
}

func (m *mlkem1024) PublicKeySize() int {
	return mlkem.EncapsulationKeySize1024
}

func (m *mlkem1024) SecretKeySize() int {
	return mlkem.SeedSize
}

func (m *mlkem1024) CiphertextSize() int {
	return mlkem.CiphertextSize1024
}

func (m *mlkem1024) GenerateKeyPair() ([]byte, []byte, error) {
	dk, err := mlkem.GenerateKey1024()
	if err != nil {
		return nil, nil, fmt.Errorf("mlkem1024: generate: %w", err)
	}
	return dk.EncapsulationKey().Bytes(), dk.Bytes(), nil
}

func (m *mlkem1024) Encapsulate(pub []byte) ([]byte, []byte, error) {
	if len(pub) != mlkem.EncapsulationKeySize1024 {
		return nil, nil, fmt.Errorf("mlkem1024: %w: pub key is %d bytes", ErrBadKeySize, len(pub))
	}

	ek, err := mlkem.NewEncapsulationKey1024(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("mlkem1024: %w: %s", ErrBadKeySize, err)
	}

	ss, ct := ek.Encapsulate()
	return ct, ss, nil
}

func (m *mlkem1024) Decapsulate(sec, ct []byte) ([]byte, error) {
	if len(sec) != mlkem.SeedSize {
		return nil, fmt.Errorf("mlkem1024: %w: seed is %d bytes", ErrBadKeySize, len(sec))
	}
	if len(ct) != mlkem.CiphertextSize1024 {
		return nil, fmt.Errorf("mlkem1024: %w: ct is %d bytes", ErrBadCiphertext, len(ct))
	}

	dk, err := mlkem.NewDecapsulationKey1024(sec)
	if err != nil {
		return nil, fmt.Errorf("mlkem1024: %w: %s", ErrBadKeySize, err)
	}

	ss, err := dk.Decapsulate(ct)
	if err != nil {
		return nil, fmt.Errorf("mlkem1024: decap: %w", err)
	}
	return ss, nil
}

var _ Scheme = &mlkem1024{}
