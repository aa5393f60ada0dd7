// keystore.go -- on-disk store of KEM key pairs
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

// Package keystore stores KEM key pairs on disk. Each key is a pair
// of files: <keyid>.meta with the descriptive record, <keyid>.key
// with the public key and the secret wrapped under a per-store
// master key. Rotation retires a record in place and mints a
// successor under a new key id.
package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Dezirae-Stark/QWAMOS-sub005/kem"
)

// Keystore is a directory of key records plus a master key. Safe for
// concurrent use.
type Keystore struct {
	mu  sync.Mutex
	dir string

	master []byte
}

// New opens the keystore rooted at dir, creating the directory and
// master key on first use.
func New(dir string) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}

	mk, err := loadMaster(dir)
	if err != nil {
		return nil, err
	}

	ks := &Keystore{
		dir:    dir,
		master: mk,
	}
	return ks, nil
}

// Dir returns the directory backing this keystore.
func (ks *Keystore) Dir() string {
	return ks.dir
}

// Generate creates a new key pair for the given owner using the
// named KEM scheme (empty picks the default) and persists it. The
// returned record's key id is "<owner>-<16 hex chars>".
func (ks *Keystore) Generate(owner, kemName string) (*KeyRecord, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}

	s, err := kem.Get(kemName)
	if err != nil {
		return nil, err
	}

	pub, sec, err := s.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("keystore: %w: %s", ErrKeyGeneration, err)
	}
	defer clear(sec)

	r := &KeyRecord{
		KeyID:       fmt.Sprintf("%s-%x", owner, randBuf(8)),
		Owner:       owner,
		Kem:         s.Name(),
		Created:     time.Now().UTC(),
		Fingerprint: fingerprint(pub),
		Pub:         pub,
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if err = ks.store(r, sec); err != nil {
		return nil, err
	}
	return r, nil
}

// Rotate mints a fresh key pair of the same scheme and owner and
// returns its record. The old record is marked archived in place:
// it still decapsulates blobs issued under it, so volumes encrypted
// under the old key stay readable until re-encrypted, but new
// volumes must bind to the successor.
func (ks *Keystore) Rotate(keyID string) (*KeyRecord, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	old, _, _, err := ks.load(keyID)
	if err != nil {
		return nil, err
	}

	s, err := kem.Get(old.Kem)
	if err != nil {
		return nil, err
	}

	pub, sec, err := s.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("keystore: %w: %s", ErrKeyGeneration, err)
	}
	defer clear(sec)

	r := &KeyRecord{
		KeyID:       fmt.Sprintf("%s-%x", old.Owner, randBuf(8)),
		Owner:       old.Owner,
		Kem:         old.Kem,
		Created:     time.Now().UTC(),
		Rotated:     time.Now().UTC(),
		Rotations:   old.Rotations + 1,
		Fingerprint: fingerprint(pub),
		Pub:         pub,
	}

	if err = ks.store(r, sec); err != nil {
		return nil, err
	}

	// the archive flag lives in the metadata; the key file with the
	// wrapped secret is untouched
	old.Archived = true
	old.SupersededBy = r.KeyID

	b, err := old.marshalMeta()
	if err != nil {
		return nil, fmt.Errorf("keystore: marshal %s: %w", old.KeyID, err)
	}
	if err = writeFile(ks.metaPath(old.KeyID), b, true, 0644); err != nil {
		return nil, fmt.Errorf("keystore: archive %s: %w", old.KeyID, err)
	}
	return r, nil
}

// Record returns the full record for keyID, public key included.
func (ks *Keystore) Record(keyID string) (*KeyRecord, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	r, _, _, err := ks.load(keyID)
	return r, err
}

// List returns key records sorted by key id, archived ones
// included. A non-empty owner restricts the listing to that owner's
// keys. Only the metadata files are read; the returned records carry
// no public key.
func (ks *Keystore) List(owner string) ([]*KeyRecord, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	fns, err := filepath.Glob(filepath.Join(ks.dir, "*.meta"))
	if err != nil {
		return nil, fmt.Errorf("keystore: list: %w", err)
	}

	var v []*KeyRecord
	for _, fn := range fns {
		b, err := os.ReadFile(fn)
		if err != nil {
			return nil, fmt.Errorf("keystore: list: %w", err)
		}

		r, err := parseMeta(b)
		if err != nil {
			return nil, fmt.Errorf("keystore: %s: %w", fn, err)
		}
		if owner != "" && r.Owner != owner {
			continue
		}
		v = append(v, r)
	}

	sort.Slice(v, func(i, j int) bool {
		return v[i].KeyID < v[j].KeyID
	})
	return v, nil
}

// Delete shreds the key material for keyID and removes its metadata.
// Any volume bound to the key becomes permanently unreadable.
func (ks *Keystore) Delete(keyID string) error {
	if err := checkKeyID(keyID); err != nil {
		return err
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if _, err := os.Stat(ks.metaPath(keyID)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("keystore: %w: %s", ErrKeyNotFound, keyID)
		}
		return fmt.Errorf("keystore: delete %s: %w", keyID, err)
	}

	if err := shredFile(ks.keyPath(keyID)); err != nil {
		return fmt.Errorf("keystore: delete %s: %w", keyID, err)
	}
	if err := os.Remove(ks.metaPath(keyID)); err != nil {
		return fmt.Errorf("keystore: delete %s: %w", keyID, err)
	}
	return nil
}

// NeedsRotation reports whether the key behind keyID is older than
// maxAge.
func (ks *Keystore) NeedsRotation(keyID string, maxAge time.Duration) (bool, error) {
	r, err := ks.Record(keyID)
	if err != nil {
		return false, err
	}
	return r.Age() > maxAge, nil
}

// store persists a record as its two files: key material first, then
// the metadata that vouches for it. Caller holds the lock.
func (ks *Keystore) store(r *KeyRecord, sec []byte) error {
	esk, salt, err := ks.wrap(sec, r.KeyID)
	if err != nil {
		return err
	}

	kb, err := r.marshalKey(esk, salt)
	if err != nil {
		return fmt.Errorf("keystore: marshal %s: %w", r.KeyID, err)
	}
	mb, err := r.marshalMeta()
	if err != nil {
		return fmt.Errorf("keystore: marshal %s: %w", r.KeyID, err)
	}

	if err = writeFile(ks.keyPath(r.KeyID), kb, false, 0600); err != nil {
		return fmt.Errorf("keystore: write %s: %w", r.KeyID, err)
	}
	if err = writeFile(ks.metaPath(r.KeyID), mb, false, 0644); err != nil {
		os.Remove(ks.keyPath(r.KeyID))
		return fmt.Errorf("keystore: write %s: %w", r.KeyID, err)
	}
	return nil
}

// load reads and cross-checks both halves of a record; the secret
// stays wrapped. Caller holds the lock.
func (ks *Keystore) load(keyID string) (*KeyRecord, []byte, []byte, error) {
	if err := checkKeyID(keyID); err != nil {
		return nil, nil, nil, err
	}

	mb, err := os.ReadFile(ks.metaPath(keyID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil, fmt.Errorf("keystore: %w: %s", ErrKeyNotFound, keyID)
		}
		return nil, nil, nil, fmt.Errorf("keystore: read %s: %w", keyID, err)
	}

	r, err := parseMeta(mb)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("keystore: %s: %w", keyID, err)
	}
	if r.KeyID != keyID {
		return nil, nil, nil, fmt.Errorf("keystore: %w: record names %s, file names %s", ErrBadRecord, r.KeyID, keyID)
	}

	kb, err := os.ReadFile(ks.keyPath(keyID))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("keystore: read key %s: %w", keyID, err)
	}

	kid, pub, esk, salt, err := parseKey(kb)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("keystore: %s: %w", keyID, err)
	}

	// the two files must be a matched pair for this key id
	if kid != keyID {
		return nil, nil, nil, fmt.Errorf("keystore: %w: key file names %s, want %s", ErrBadRecord, kid, keyID)
	}
	if fingerprint(pub) != r.Fingerprint {
		return nil, nil, nil, fmt.Errorf("keystore: %w: fingerprint mismatch for %s", ErrBadRecord, keyID)
	}

	r.Pub = pub
	return r, esk, salt, nil
}

func (ks *Keystore) keyPath(keyID string) string {
	return filepath.Join(ks.dir, keyID+".key")
}

func (ks *Keystore) metaPath(keyID string) string {
	return filepath.Join(ks.dir, keyID+".meta")
}

func checkOwner(owner string) error {
	if owner == "" || strings.ContainsAny(owner, "/\\ \t\n") || strings.Contains(owner, "..") {
		return fmt.Errorf("keystore: %w: %q", ErrBadOwner, owner)
	}
	return nil
}

func checkKeyID(keyID string) error {
	if keyID == "" || strings.ContainsAny(keyID, "/\\ \t\n") || strings.Contains(keyID, "..") {
		return fmt.Errorf("keystore: %w: bad key id %q", ErrKeyNotFound, keyID)
	}
	return nil
}
