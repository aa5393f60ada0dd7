// migrate_test.go -- migration fidelity, cancel and resume tests
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

package migrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Dezirae-Stark/QWAMOS-sub005/keystore"
	"github.com/Dezirae-Stark/QWAMOS-sub005/volume"
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

// deterministic pseudo-random source file
func mkSource(t *testing.T, fn string, size int64) []byte {
	assert := newAsserter(t)

	rng := rand.New(rand.NewSource(0x51ab1e ^ size))
	b := make([]byte, size)
	rng.Read(b)

	err := os.WriteFile(fn, b, 0600)
	assert(err == nil, "write source: %s", err)
	return b
}

func testStore(t *testing.T) *keystore.Keystore {
	assert := newAsserter(t)

	ks, err := keystore.New(filepath.Join(t.TempDir(), "keys"))
	assert(err == nil, "keystore: %s", err)
	return ks
}

func readBack(t *testing.T, ks *keystore.Keystore, dst string, size int64) []byte {
	assert := newAsserter(t)

	v, err := volume.Open(ks, dst, nil)
	assert(err == nil, "open dest: %s", err)
	defer v.Close()

	var out bytes.Buffer
	for idx := uint64(0); idx < v.Blocks(); idx++ {
		blk, err := v.ReadBlock(idx)
		assert(err == nil, "read block %d: %s", idx, err)
		out.Write(blk)
	}
	return out.Bytes()[:size]
}

func TestMigrateFidelity(t *testing.T) {
	assert := newAsserter(t)
	ks := testStore(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "plain.img")
	dst := filepath.Join(dir, "enc.qvol")

	// 10 MB: not block aligned once we add a ragged tail
	size := int64(10*1024*1024 + 1000)
	want := mkSource(t, src, size)

	res, err := Migrate(context.Background(), ks, src, dst, "vm-migr", nil)
	assert(err == nil, "migrate: %s", err)
	assert(res.KeyID != "", "empty key id")
	assert(res.BytesCopied == uint64(size), "copied %d of %d", res.BytesCopied, size)
	assert(res.LastBlock == res.Blocks-1, "last block %d of %d", res.LastBlock, res.Blocks)
	assert(res.SourceSum != "", "no source checksum")

	// source untouched
	got, err := os.ReadFile(src)
	assert(err == nil, "read source: %s", err)
	assert(bytes.Equal(got, want), "source modified")

	// byte-for-byte identical through the decrypted path
	assert(bytes.Equal(readBack(t, ks, dst, size), want), "migrated data differs")

	// independent verification passes too
	err = Verify(ks, src, dst)
	assert(err == nil, "verify: %s", err)
}

func TestMigrateCancelAndResume(t *testing.T) {
	assert := newAsserter(t)
	ks := testStore(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "plain.img")
	dst := filepath.Join(dir, "enc.qvol")

	size := int64(10 * 1024 * 1024)
	want := mkSource(t, src, size)

	// cancel partway through
	ctx, cancel := context.WithCancel(context.Background())
	opt := &Options{
		Progress: func(done, total uint64) {
			if done == total/2 {
				cancel()
			}
		},
	}

	res, err := Migrate(ctx, ks, src, dst, "vm-migr", opt)
	assert(errors.Is(err, context.Canceled), "cancel: %s", err)
	assert(res != nil, "no result on cancel")
	assert(res.LastBlock+1 < res.Blocks, "nothing left to resume")

	// destination is unfinalized and refuses a normal open
	_, err = volume.Open(ks, dst, nil)
	assert(errors.Is(err, volume.ErrUnfinalized), "open unfinalized dest: %s", err)

	// resume from where it stopped
	res2, err := Migrate(context.Background(), ks, src, dst, "vm-migr", &Options{
		StartBlock: res.LastBlock + 1,
	})
	assert(err == nil, "resume: %s", err)
	assert(res2.KeyID == res.KeyID, "resume switched keys: %s vs %s", res2.KeyID, res.KeyID)
	assert(res2.LastBlock == res2.Blocks-1, "resume stopped at %d", res2.LastBlock)

	// already-migrated blocks were not corrupted by the interruption
	assert(bytes.Equal(readBack(t, ks, dst, size), want), "resumed data differs")

	// resuming a finalized volume is refused
	_, err = Migrate(context.Background(), ks, src, dst, "vm-migr", &Options{StartBlock: 1})
	assert(errors.Is(err, ErrFinalized), "resume after finalize: %s", err)
}

func TestMigrateRemoveSource(t *testing.T) {
	assert := newAsserter(t)
	ks := testStore(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "plain.img")
	dst := filepath.Join(dir, "enc.qvol")

	size := int64(1 << 20)
	want := mkSource(t, src, size)

	res, err := Migrate(context.Background(), ks, src, dst, "vm-migr", &Options{RemoveSource: true})
	assert(err == nil, "migrate: %s", err)

	_, err = os.Stat(src)
	assert(os.IsNotExist(err), "source still exists: %v", err)

	assert(bytes.Equal(readBack(t, ks, dst, size), want), "migrated data differs")
	_ = res
}

func TestMigrateBadSource(t *testing.T) {
	assert := newAsserter(t)
	ks := testStore(t)
	dir := t.TempDir()

	dst := filepath.Join(dir, "enc.qvol")

	_, err := Migrate(context.Background(), ks, filepath.Join(dir, "nope"), dst, "vm-x", nil)
	assert(errors.Is(err, ErrBadSource), "missing source: %s", err)

	empty := filepath.Join(dir, "empty.img")
	err = os.WriteFile(empty, nil, 0600)
	assert(err == nil, "write empty: %s", err)

	_, err = Migrate(context.Background(), ks, empty, dst, "vm-x", nil)
	assert(errors.Is(err, ErrBadSource), "empty source: %s", err)

	// neither failure may leave a destination behind
	_, err = os.Stat(dst)
	assert(os.IsNotExist(err), "stray destination: %v", err)
}

func TestVerifyCatchesTamper(t *testing.T) {
	assert := newAsserter(t)
	ks := testStore(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "plain.img")
	dst := filepath.Join(dir, "enc.qvol")

	mkSource(t, src, 1<<20)

	_, err := Migrate(context.Background(), ks, src, dst, "vm-migr", nil)
	assert(err == nil, "migrate: %s", err)

	// change the source after the fact; verification must fail
	fd, err := os.OpenFile(src, os.O_RDWR, 0)
	assert(err == nil, "open source: %s", err)

	var c [1]byte
	_, err = fd.ReadAt(c[:], 12345)
	assert(err == nil, "read source: %s", err)
	c[0] ^= 0x20
	_, err = fd.WriteAt(c[:], 12345)
	assert(err == nil, "write source: %s", err)
	fd.Close()

	err = Verify(ks, src, dst)
	assert(errors.Is(err, ErrVerify), "verify of changed source: %s", err)
}
