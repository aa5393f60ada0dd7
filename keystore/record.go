// record.go -- key record serialization
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
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"
	"gopkg.in/yaml.v2"

	"github.com/Dezirae-Stark/QWAMOS-sub005/kem"
)

// KeyRecord is the public view of a stored key pair. Each record is
// two files: <keyid>.meta holds the descriptive fields below, and
// <keyid>.key holds the public key and the wrapped secret. The
// secret key never leaves the keystore; it is unwrapped only for the
// duration of a decapsulation.
type KeyRecord struct {
	KeyID     string
	Owner     string
	Kem       string
	Created   time.Time
	Rotated   time.Time
	Rotations uint32

	// Set when a rotation replaced this key. Archived records stay
	// readable so old volumes can still be opened, but new volumes
	// must use the successor.
	Archived     bool
	SupersededBy string

	// Short SHA3-256 digest of the public key, hex. Must match the
	// public key in the companion key file; a mismatch means the
	// pair of files has been mixed up.
	Fingerprint string

	// KEM public key. Empty on records returned by List, which
	// reads only the metadata files.
	Pub []byte
}

// Algorithm used to wrap secret keys under the master key
const wrapAlgo = "hkdf-sha3-xchacha20poly1305"

// On-disk YAML form of <keyid>.meta
type serializedMeta struct {
	KeyID     string `yaml:"keyid"`
	Owner     string `yaml:"owner"`
	Kem       string `yaml:"kem"`
	Created   string `yaml:"created"`
	Rotated   string `yaml:"rotated,omitempty"`
	Rotations uint32 `yaml:"rotations,flow,omitempty"`

	Archived     bool   `yaml:"archived,omitempty"`
	SupersededBy string `yaml:"superseded_by,omitempty"`

	Fingerprint string `yaml:"fingerprint"`
}

// On-disk YAML form of <keyid>.key: public key plus wrapped secret
type serializedKey struct {
	KeyID string `yaml:"keyid"`
	Pub   string `yaml:"pub"`
	Esk   string `yaml:"esk"`
	Salt  string `yaml:"salt"`
	Algo  string `yaml:"algo,omitempty"`
}

// marshalMeta serializes the descriptive half of a record.
func (r *KeyRecord) marshalMeta() ([]byte, error) {
	sm := serializedMeta{
		KeyID:     r.KeyID,
		Owner:     r.Owner,
		Kem:       r.Kem,
		Created:   r.Created.UTC().Format(time.RFC3339),
		Rotations: r.Rotations,

		Archived:     r.Archived,
		SupersededBy: r.SupersededBy,

		Fingerprint: r.Fingerprint,
	}
	if !r.Rotated.IsZero() {
		sm.Rotated = r.Rotated.UTC().Format(time.RFC3339)
	}

	return yaml.Marshal(&sm)
}

// marshalKey serializes the key material half of a record.
func (r *KeyRecord) marshalKey(esk, salt []byte) ([]byte, error) {
	enc := base64.StdEncoding.EncodeToString

	sk := serializedKey{
		KeyID: r.KeyID,
		Pub:   enc(r.Pub),
		Esk:   enc(esk),
		Salt:  enc(salt),
		Algo:  wrapAlgo,
	}
	return yaml.Marshal(&sk)
}

// parseMeta decodes a metadata file. The returned record has no
// public key; callers needing it load the key file too.
func parseMeta(b []byte) (*KeyRecord, error) {
	var sm serializedMeta

	if err := yaml.Unmarshal(b, &sm); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadRecord, err)
	}
	if sm.KeyID == "" || sm.Kem == "" || sm.Fingerprint == "" {
		return nil, fmt.Errorf("%w: missing keyid, kem or fingerprint", ErrBadRecord)
	}
	if _, err := kem.Get(sm.Kem); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadRecord, err)
	}

	created, err := time.Parse(time.RFC3339, sm.Created)
	if err != nil {
		return nil, fmt.Errorf("%w: created: %s", ErrBadRecord, err)
	}

	r := &KeyRecord{
		KeyID:        sm.KeyID,
		Owner:        sm.Owner,
		Kem:          sm.Kem,
		Created:      created,
		Rotations:    sm.Rotations,
		Archived:     sm.Archived,
		SupersededBy: sm.SupersededBy,
		Fingerprint:  sm.Fingerprint,
	}
	if sm.Rotated != "" {
		if r.Rotated, err = time.Parse(time.RFC3339, sm.Rotated); err != nil {
			return nil, fmt.Errorf("%w: rotated: %s", ErrBadRecord, err)
		}
	}
	return r, nil
}

// parseKey decodes a key file; the wrapped secret and its salt are
// returned undecrypted.
func parseKey(b []byte) (keyID string, pub, esk, salt []byte, err error) {
	var sk serializedKey

	if err = yaml.Unmarshal(b, &sk); err != nil {
		return "", nil, nil, nil, fmt.Errorf("%w: %s", ErrBadRecord, err)
	}
	if sk.KeyID == "" {
		return "", nil, nil, nil, fmt.Errorf("%w: missing keyid", ErrBadRecord)
	}

	dec := base64.StdEncoding.DecodeString

	if pub, err = dec(sk.Pub); err != nil {
		return "", nil, nil, nil, fmt.Errorf("%w: pub: %s", ErrBadRecord, err)
	}
	if esk, err = dec(sk.Esk); err != nil {
		return "", nil, nil, nil, fmt.Errorf("%w: esk: %s", ErrBadRecord, err)
	}
	if salt, err = dec(sk.Salt); err != nil {
		return "", nil, nil, nil, fmt.Errorf("%w: salt: %s", ErrBadRecord, err)
	}
	return sk.KeyID, pub, esk, salt, nil
}

// Age returns the time since the key was created or last rotated.
func (r *KeyRecord) Age() time.Duration {
	t := r.Created
	if !r.Rotated.IsZero() {
		t = r.Rotated
	}
	return time.Since(t)
}

// fingerprint returns the short hex digest stored in the metadata
// file and checked against the key file on every load.
func fingerprint(pub []byte) string {
	sum := sha3.Sum256(pub)
	return fmt.Sprintf("%x", sum[:8])
}
