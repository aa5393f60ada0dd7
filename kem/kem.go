// kem.go - key encapsulation scheme registry
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

// Package kem provides key encapsulation mechanisms for deriving
// volume encryption keys. Every scheme yields a 32 byte shared
// secret; callers never see the secret on the wire, only the
// encapsulated ciphertext.
package kem

import (
	"fmt"
	"sort"
)

// Scheme is a key encapsulation mechanism. Implementations must be
// safe for concurrent use.
type Scheme interface {
	// Name returns the canonical scheme name (eg "mlkem1024").
	Name() string

	// GenerateKeyPair creates a fresh public/secret key pair.
	GenerateKeyPair() (pub, sec []byte, err error)

	// Encapsulate generates a shared secret and its encapsulation
	// against the given public key.
	Encapsulate(pub []byte) (ct, ss []byte, err error)

	// Decapsulate recovers the shared secret from an encapsulated
	// ciphertext using the secret key.
	Decapsulate(sec, ct []byte) (ss []byte, err error)

	// Sizes in bytes of the public key, secret key and ciphertext.
	PublicKeySize() int
	SecretKeySize() int
	CiphertextSize() int
}

// SharedKeySize is the size of the shared secret every scheme
// produces.
const SharedKeySize = 32

// Default is the scheme used when a caller doesn't name one.
const Default = "mlkem1024"

var registry = map[string]Scheme{}

// Register makes a scheme available by name, replacing any previous
// scheme of the same name. Typically called from an init function of
// the implementing package.
func Register(s Scheme) {
	registry[s.Name()] = s
}

// Get returns the named scheme; an empty name selects the default.
func Get(name string) (Scheme, error) {
	if name == "" {
		name = Default
	}
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("kem: %w: %s", ErrUnknownScheme, name)
	}
	return s, nil
}

// Names returns the registered scheme names in sorted order.
func Names() []string {
	v := make([]string, 0, len(registry))
	for k := range registry {
		v = append(v, k)
	}
	sort.Strings(v)
	return v
}
