// snapshot_test.go -- snapshot store tests
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

package volume

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotLifecycle(t *testing.T) {
	assert := newAsserter(t)
	ks := testStore(t)
	dir := t.TempDir()
	fn := filepath.Join(dir, "disk.qvol")

	v, err := Create(ks, fn, "vm-snap", 1<<20, nil)
	assert(err == nil, "create: %s", err)

	p := randData(t, DefaultBlockSize)
	err = v.WriteBlock(0, p)
	assert(err == nil, "write: %s", err)
	v.Close()

	st, err := OpenSnapshotStore(filepath.Join(dir, "snaps"))
	assert(err == nil, "store: %s", err)

	s, err := st.Create(fn, "before upgrade")
	assert(err == nil, "snapshot: %s", err)
	assert(s.ID != "", "empty id")
	assert(s.Size > 0, "zero size")
	assert(s.Comment == "before upgrade", "comment %q", s.Comment)

	// snapshot copy is read-only
	fi, err := os.Stat(filepath.Join(st.Dir(), s.ID+".snap"))
	assert(err == nil, "stat: %s", err)
	assert(fi.Mode().Perm() == 0400, "snap mode %v", fi.Mode().Perm())

	l, err := st.List()
	assert(err == nil, "list: %s", err)
	assert(len(l) == 1, "list has %d", len(l))
	assert(l[0].ID == s.ID, "list id %s", l[0].ID)

	// wreck the live volume, then restore the snapshot
	v2, err := Open(ks, fn, nil)
	assert(err == nil, "open: %s", err)
	err = v2.WriteBlock(0, make([]byte, DefaultBlockSize))
	assert(err == nil, "overwrite: %s", err)
	v2.Close()

	err = st.Restore(s.ID, fn, true)
	assert(err == nil, "restore: %s", err)

	v3, err := Open(ks, fn, nil)
	assert(err == nil, "open restored: %s", err)
	got, err := v3.ReadBlock(0)
	assert(err == nil, "read restored: %s", err)
	assert(bytes.Equal(got, p), "restored data mismatch")
	v3.Close()

	// restore to a fresh path without overwrite
	fn2 := filepath.Join(dir, "clone.qvol")
	err = st.Restore(s.ID, fn2, false)
	assert(err == nil, "restore to new path: %s", err)

	err = st.Restore(s.ID, fn2, false)
	assert(err != nil, "restore clobbered an existing file")

	err = st.Delete(s.ID)
	assert(err == nil, "delete: %s", err)

	l, err = st.List()
	assert(err == nil, "list: %s", err)
	assert(len(l) == 0, "list has %d after delete", len(l))

	_, err = st.Get(s.ID)
	assert(err != nil, "deleted snapshot still loads")
}

func TestSnapshotOfLiveVolume(t *testing.T) {
	assert := newAsserter(t)
	ks := testStore(t)
	dir := t.TempDir()
	fn := filepath.Join(dir, "disk.qvol")

	v, err := Create(ks, fn, "vm-snap", 1<<20, nil)
	assert(err == nil, "create: %s", err)
	defer v.Close()

	st, err := OpenSnapshotStore(filepath.Join(dir, "snaps"))
	assert(err == nil, "store: %s", err)

	_, err = st.Create(fn, "")
	assert(errors.Is(err, ErrVolumeLocked), "snapshot of live volume: %s", err)
}

func TestSnapshotTamper(t *testing.T) {
	assert := newAsserter(t)
	ks := testStore(t)
	dir := t.TempDir()
	fn := filepath.Join(dir, "disk.qvol")

	v, err := Create(ks, fn, "vm-snap", 1<<20, nil)
	assert(err == nil, "create: %s", err)
	v.Close()

	st, err := OpenSnapshotStore(filepath.Join(dir, "snaps"))
	assert(err == nil, "store: %s", err)

	s, err := st.Create(fn, "")
	assert(err == nil, "snapshot: %s", err)

	// corrupt one byte of the stored copy
	sfn := filepath.Join(st.Dir(), s.ID+".snap")
	os.Chmod(sfn, 0600)
	fd, err := os.OpenFile(sfn, os.O_RDWR, 0)
	assert(err == nil, "open snap: %s", err)

	var c [1]byte
	_, err = fd.ReadAt(c[:], 100)
	assert(err == nil, "read snap: %s", err)
	c[0] ^= 0x80
	_, err = fd.WriteAt(c[:], 100)
	assert(err == nil, "write snap: %s", err)
	fd.Close()

	err = st.Restore(s.ID, filepath.Join(dir, "out.qvol"), false)
	assert(err != nil, "tampered snapshot restored")
}

func TestSnapshotOfGarbage(t *testing.T) {
	assert := newAsserter(t)
	dir := t.TempDir()

	fn := filepath.Join(dir, "junk")
	err := os.WriteFile(fn, []byte("junk"), 0600)
	assert(err == nil, "write junk: %s", err)

	st, err := OpenSnapshotStore(filepath.Join(dir, "snaps"))
	assert(err == nil, "store: %s", err)

	_, err = st.Create(fn, "")
	assert(errors.Is(err, ErrNotVolume), "snapshotted junk: %s", err)
}
