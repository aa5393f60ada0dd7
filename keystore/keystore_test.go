// keystore_test.go -- tests for key generation, rotation, wrapping
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
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/Dezirae-Stark/QWAMOS-sub005/kem"
)

func newAsserter(t *testing.T) func(cond bool, msg string, args ...interface{}) {
	return func(cond bool, msg string, args ...interface{}) {
		if cond {
			return
		}

		_, file, line, ok := runtime.Caller(1)
		if !ok {
			file = "???"
			line = 0
		}

		s := fmt.Sprintf(msg, args...)
		t.Fatalf("%s: %d: Assertion failed: %s\n", file, line, s)
	}
}

func newStore(t *testing.T) *Keystore {
	assert := newAsserter(t)

	ks, err := New(t.TempDir())
	assert(err == nil, "new keystore: %s", err)
	return ks
}

func TestGenerate(t *testing.T) {
	assert := newAsserter(t)
	ks := newStore(t)

	r, err := ks.Generate("vm-alpine", "")
	assert(err == nil, "generate: %s", err)
	assert(strings.HasPrefix(r.KeyID, "vm-alpine-"), "keyid %s lacks owner prefix", r.KeyID)
	assert(r.Kem == "mlkem1024", "kem is %s", r.Kem)
	assert(len(r.Pub) > 0, "empty pub key")

	// two files per record; the key material under tight perms
	fi, err := os.Stat(filepath.Join(ks.Dir(), r.KeyID+".key"))
	assert(err == nil, "stat key file: %s", err)
	assert(fi.Mode().Perm() == 0600, "key file mode %v", fi.Mode().Perm())

	fi, err = os.Stat(filepath.Join(ks.Dir(), r.KeyID+".meta"))
	assert(err == nil, "stat meta file: %s", err)
	assert(fi.Mode().Perm() == 0644, "meta file mode %v", fi.Mode().Perm())

	r2, err := ks.Record(r.KeyID)
	assert(err == nil, "record: %s", err)
	assert(r2.KeyID == r.KeyID, "keyid roundtrip: %s", r2.KeyID)
	assert(bytes.Equal(r2.Pub, r.Pub), "pub key mismatch")
	assert(r2.Owner == "vm-alpine", "owner %s", r2.Owner)
	assert(r2.Fingerprint == r.Fingerprint, "fingerprint mismatch")
	assert(len(r.Fingerprint) == 16, "fingerprint is %d chars", len(r.Fingerprint))
}

func TestGenerateBadInputs(t *testing.T) {
	assert := newAsserter(t)
	ks := newStore(t)

	for _, owner := range []string{"", "a/b", "a b", "x\\y", ".."} {
		_, err := ks.Generate(owner, "")
		assert(errors.Is(err, ErrBadOwner), "owner %q accepted", owner)
	}

	_, err := ks.Generate("vm-x", "rot13")
	assert(err != nil, "bogus scheme accepted")
}

func TestEncapDecap(t *testing.T) {
	assert := newAsserter(t)
	ks := newStore(t)

	for _, scheme := range []string{"mlkem1024", "x25519", "mlkem1024-x25519"} {
		r, err := ks.Generate("vm-test", scheme)
		assert(err == nil, "%s: generate: %s", scheme, err)

		blob, ss, err := ks.Encapsulate(r.KeyID)
		assert(err == nil, "%s: encap: %s", scheme, err)
		assert(len(ss) == 32, "%s: ss is %d bytes", scheme, len(ss))

		ss2, err := ks.Decapsulate(r.KeyID, blob)
		assert(err == nil, "%s: decap: %s", scheme, err)
		assert(bytes.Equal(ss, ss2), "%s: secret mismatch", scheme)
	}
}

func TestDecapWrongKey(t *testing.T) {
	assert := newAsserter(t)
	ks := newStore(t)

	r1, err := ks.Generate("vm-a", "")
	assert(err == nil, "generate: %s", err)
	r2, err := ks.Generate("vm-b", "")
	assert(err == nil, "generate: %s", err)

	blob, _, err := ks.Encapsulate(r1.KeyID)
	assert(err == nil, "encap: %s", err)

	_, err = ks.Decapsulate(r2.KeyID, blob)
	assert(errors.Is(err, ErrDecapsulation), "foreign key decap: %s", err)
}

func TestDecapTamper(t *testing.T) {
	assert := newAsserter(t)
	ks := newStore(t)

	r, err := ks.Generate("vm-a", "")
	assert(err == nil, "generate: %s", err)

	blob, _, err := ks.Encapsulate(r.KeyID)
	assert(err == nil, "encap: %s", err)

	for _, i := range []int{0, len(blob) / 2, len(blob) - 1} {
		mangled := bytes.Clone(blob)
		mangled[i] ^= 0x40

		_, err = ks.Decapsulate(r.KeyID, mangled)
		assert(errors.Is(err, ErrDecapsulation), "bit %d: flipped blob accepted: %s", i, err)
	}

	_, err = ks.Decapsulate(r.KeyID, blob[:10])
	assert(errors.Is(err, ErrDecapsulation), "runt blob: %s", err)
}

func TestRotate(t *testing.T) {
	assert := newAsserter(t)
	ks := newStore(t)

	r, err := ks.Generate("vm-a", "")
	assert(err == nil, "generate: %s", err)

	blob, ss, err := ks.Encapsulate(r.KeyID)
	assert(err == nil, "encap: %s", err)

	r2, err := ks.Rotate(r.KeyID)
	assert(err == nil, "rotate: %s", err)
	assert(r2.KeyID != r.KeyID, "rotation reused keyid %s", r2.KeyID)
	assert(r2.Owner == r.Owner, "rotation changed owner to %s", r2.Owner)
	assert(r2.Rotations == 1, "rotations = %d", r2.Rotations)
	assert(!bytes.Equal(r2.Pub, r.Pub), "rotation kept the pub key")
	assert(!r2.Rotated.IsZero(), "rotated timestamp unset")

	// old record is archived but still decapsulates old blobs
	old, err := ks.Record(r.KeyID)
	assert(err == nil, "record: %s", err)
	assert(old.Archived, "old record not archived")
	assert(old.SupersededBy == r2.KeyID, "successor is %s", old.SupersededBy)

	ss2, err := ks.Decapsulate(r.KeyID, blob)
	assert(err == nil, "old blob decap after rotation: %s", err)
	assert(bytes.Equal(ss, ss2), "old secret mismatch after rotation")

	// but it must refuse new encapsulations
	_, _, err = ks.Encapsulate(r.KeyID)
	assert(errors.Is(err, ErrKeyArchived), "archived key encapsulated: %s", err)

	// the successor works as a normal key
	blob3, ss3, err := ks.Encapsulate(r2.KeyID)
	assert(err == nil, "encap: %s", err)
	ss4, err := ks.Decapsulate(r2.KeyID, blob3)
	assert(err == nil, "decap: %s", err)
	assert(bytes.Equal(ss3, ss4), "secret mismatch after rotation")
}

func TestDelete(t *testing.T) {
	assert := newAsserter(t)
	ks := newStore(t)

	r, err := ks.Generate("vm-a", "")
	assert(err == nil, "generate: %s", err)

	err = ks.Delete(r.KeyID)
	assert(err == nil, "delete: %s", err)

	_, err = ks.Record(r.KeyID)
	assert(errors.Is(err, ErrKeyNotFound), "deleted key still loads: %s", err)

	fns, _ := filepath.Glob(filepath.Join(ks.Dir(), r.KeyID+".*"))
	assert(len(fns) == 0, "leftover files: %v", fns)

	err = ks.Delete(r.KeyID)
	assert(errors.Is(err, ErrKeyNotFound), "double delete: %s", err)
}

func TestList(t *testing.T) {
	assert := newAsserter(t)
	ks := newStore(t)

	_, err := ks.Generate("vm-b", "")
	assert(err == nil, "generate: %s", err)
	ra, err := ks.Generate("vm-a", "")
	assert(err == nil, "generate: %s", err)

	// rotation adds a successor and keeps the archived record
	_, err = ks.Rotate(ra.KeyID)
	assert(err == nil, "rotate: %s", err)

	v, err := ks.List("")
	assert(err == nil, "list: %s", err)
	assert(len(v) == 3, "list has %d records", len(v))
	assert(v[0].KeyID < v[1].KeyID && v[1].KeyID < v[2].KeyID, "list unsorted")

	narch := 0
	for _, r := range v {
		if r.Archived {
			narch++
		}
	}
	assert(narch == 1, "%d archived records", narch)

	// owner filter: vm-a has the archived original and its successor
	v, err = ks.List("vm-a")
	assert(err == nil, "list vm-a: %s", err)
	assert(len(v) == 2, "vm-a has %d records", len(v))

	v, err = ks.List("vm-nobody")
	assert(err == nil, "list vm-nobody: %s", err)
	assert(len(v) == 0, "vm-nobody has %d records", len(v))

	// listing reads only the metadata files; make every key file
	// unreadable and list again
	kfns, err := filepath.Glob(filepath.Join(ks.Dir(), "*.key"))
	assert(err == nil, "glob: %s", err)
	for _, fn := range kfns {
		if filepath.Base(fn) == "master.key" {
			continue
		}
		err = os.Chmod(fn, 0)
		assert(err == nil, "chmod %s: %s", fn, err)
	}

	v, err = ks.List("")
	assert(err == nil, "list with unreadable key files: %s", err)
	assert(len(v) == 3, "list has %d records", len(v))
}

func TestReopen(t *testing.T) {
	assert := newAsserter(t)

	dir := t.TempDir()
	ks, err := New(dir)
	assert(err == nil, "new: %s", err)

	r, err := ks.Generate("vm-a", "")
	assert(err == nil, "generate: %s", err)

	blob, ss, err := ks.Encapsulate(r.KeyID)
	assert(err == nil, "encap: %s", err)

	// a second handle on the same dir shares the master key and can
	// unwrap the stored secret
	ks2, err := New(dir)
	assert(err == nil, "reopen: %s", err)

	ss2, err := ks2.Decapsulate(r.KeyID, blob)
	assert(err == nil, "decap after reopen: %s", err)
	assert(bytes.Equal(ss, ss2), "secret mismatch after reopen")
}

func TestNeedsRotation(t *testing.T) {
	assert := newAsserter(t)
	ks := newStore(t)

	r, err := ks.Generate("vm-a", "")
	assert(err == nil, "generate: %s", err)

	old, err := ks.NeedsRotation(r.KeyID, time.Hour)
	assert(err == nil, "needs-rotation: %s", err)
	assert(!old, "fresh key flagged for rotation")

	old, err = ks.NeedsRotation(r.KeyID, 0)
	assert(err == nil, "needs-rotation: %s", err)
	assert(old, "key not flagged with zero max age")
}

// a scheme whose key generation always fails
type brokenScheme struct{}

func (b *brokenScheme) Name() string        { return "broken-kem" }
func (b *brokenScheme) PublicKeySize() int  { return 32 }
func (b *brokenScheme) SecretKeySize() int  { return 32 }
func (b *brokenScheme) CiphertextSize() int { return 32 }

func (b *brokenScheme) GenerateKeyPair() ([]byte, []byte, error) {
	return nil, nil, fmt.Errorf("entropy source exhausted")
}

func (b *brokenScheme) Encapsulate(pub []byte) ([]byte, []byte, error) {
	return nil, nil, fmt.Errorf("no key pair")
}

func (b *brokenScheme) Decapsulate(sec, ct []byte) ([]byte, error) {
	return nil, fmt.Errorf("no key pair")
}

func init() {
	kem.Register(&brokenScheme{})
}

func TestGenerateFailure(t *testing.T) {
	assert := newAsserter(t)
	ks := newStore(t)

	_, err := ks.Generate("vm-x", "broken-kem")
	assert(errors.Is(err, ErrKeyGeneration), "primitive failure: %s", err)

	// nothing may be left on disk
	fns, _ := filepath.Glob(filepath.Join(ks.Dir(), "vm-x-*"))
	assert(len(fns) == 0, "leftover files: %v", fns)
}

func TestSecretFileSwap(t *testing.T) {
	assert := newAsserter(t)
	ks := newStore(t)

	ra, err := ks.Generate("vm-a", "")
	assert(err == nil, "generate: %s", err)
	rb, err := ks.Generate("vm-b", "")
	assert(err == nil, "generate: %s", err)

	blob, _, err := ks.Encapsulate(rb.KeyID)
	assert(err == nil, "encap: %s", err)

	kpath := func(id string) string { return filepath.Join(ks.Dir(), id+".key") }

	// transplant a's key file over b's: the key id and fingerprint
	// cross-checks must refuse it
	ka, err := os.ReadFile(kpath(ra.KeyID))
	assert(err == nil, "read key file: %s", err)
	kb, err := os.ReadFile(kpath(rb.KeyID))
	assert(err == nil, "read key file: %s", err)

	err = os.WriteFile(kpath(rb.KeyID), ka, 0600)
	assert(err == nil, "write key file: %s", err)

	_, err = ks.Decapsulate(rb.KeyID, blob)
	assert(errors.Is(err, ErrBadRecord), "transplanted key file accepted: %s", err)

	// a forged key file naming b's id and pub key but carrying a's
	// wrapped secret: the wrap binds the key id, so it won't unwrap
	_, _, eskA, saltA, err := parseKey(ka)
	assert(err == nil, "parse key file: %s", err)

	forged, err := (&KeyRecord{KeyID: rb.KeyID, Pub: rb.Pub}).marshalKey(eskA, saltA)
	assert(err == nil, "marshal forged: %s", err)

	err = os.WriteFile(kpath(rb.KeyID), forged, 0600)
	assert(err == nil, "write forged: %s", err)

	_, err = ks.Decapsulate(rb.KeyID, blob)
	assert(errors.Is(err, ErrBadRecord), "forged key file unwrapped: %s", err)

	// the untouched original still works
	err = os.WriteFile(kpath(rb.KeyID), kb, 0600)
	assert(err == nil, "restore key file: %s", err)

	_, err = ks.Decapsulate(rb.KeyID, blob)
	assert(err == nil, "restored key file: %s", err)
}

func TestDeriveKey(t *testing.T) {
	assert := newAsserter(t)

	ss := randBuf(32)
	salt := randBuf(32)

	k1 := DeriveKey(ss, salt, "data")
	k2 := DeriveKey(ss, salt, "data")
	k3 := DeriveKey(ss, salt, "meta")

	assert(len(k1) == 32, "derived key is %d bytes", len(k1))
	assert(bytes.Equal(k1, k2), "derivation not deterministic")
	assert(!bytes.Equal(k1, k3), "contexts collide")

	SecureErase(ss)
	assert(bytes.Equal(ss, make([]byte, 32)), "erase left residue")
}
