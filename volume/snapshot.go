// snapshot.go -- point-in-time copies of volume containers
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
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/opencoff/go-fio"
	"github.com/opencoff/go-mmap"
	"gopkg.in/yaml.v2"
	"lukechampine.com/blake3"
)

// Snapshot describes one immutable point-in-time copy of a
// container. Snapshots are whole-file copies: ciphertext in,
// ciphertext out, no key material involved.
type Snapshot struct {
	ID      string    `yaml:"id"`
	Volume  string    `yaml:"volume"`
	Comment string    `yaml:"comment,omitempty"`
	Created time.Time `yaml:"created"`
	Size    int64     `yaml:"size"`

	// BLAKE3 of the snapshot file, hex
	Digest string `yaml:"digest"`
}

// SnapshotStore keeps snapshots in one directory: <id>.snap holds
// the copy (read-only), <id>.meta its description.
type SnapshotStore struct {
	dir string
}

// OpenSnapshotStore opens (creating if needed) a snapshot directory.
func OpenSnapshotStore(dir string) (*SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return &SnapshotStore{dir: dir}, nil
}

func (st *SnapshotStore) Dir() string {
	return st.dir
}

// Create copies the container at volPath into the store. The volume
// must not be open; snapshotting a live volume would capture a torn
// state.
func (st *SnapshotStore) Create(volPath, comment string) (*Snapshot, error) {
	// a valid header is the cheapest liveness check we have
	if _, err := ReadHeader(volPath); err != nil {
		return nil, err
	}

	fd, err := os.Open(volPath)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer fd.Close()

	if err = lockFile(fd); err != nil {
		return nil, err
	}
	defer unlockFile(fd)

	base := strings.TrimSuffix(filepath.Base(volPath), filepath.Ext(volPath))
	id := fmt.Sprintf("%s-%d", base, time.Now().UnixNano())

	sf, err := fio.NewSafeFile(st.snapPath(id), 0, os.O_CREATE|os.O_WRONLY, 0400)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer sf.Abort()

	h := blake3.New(32, nil)
	sz, err := io.Copy(io.MultiWriter(sf, h), fd)
	if err != nil {
		return nil, fmt.Errorf("snapshot: copy: %w", err)
	}
	if err = sf.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	s := &Snapshot{
		ID:      id,
		Volume:  volPath,
		Comment: comment,
		Created: time.Now().UTC(),
		Size:    sz,
		Digest:  hex.EncodeToString(h.Sum(nil)),
	}

	if err = st.writeMeta(s); err != nil {
		os.Remove(st.snapPath(id))
		return nil, err
	}
	return s, nil
}

// List returns all snapshots, newest first.
func (st *SnapshotStore) List() ([]*Snapshot, error) {
	fns, err := filepath.Glob(filepath.Join(st.dir, "*.meta"))
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}

	var v []*Snapshot
	for _, fn := range fns {
		s, err := st.readMeta(fn)
		if err != nil {
			return nil, err
		}
		v = append(v, s)
	}

	sort.Slice(v, func(i, j int) bool {
		return v[i].Created.After(v[j].Created)
	})
	return v, nil
}

// Get returns the snapshot with the given id.
func (st *SnapshotStore) Get(id string) (*Snapshot, error) {
	return st.readMeta(st.metaPath(id))
}

// Restore copies snapshot id to dstPath after verifying the stored
// digest. It refuses to clobber dstPath unless ovwrite is set.
func (st *SnapshotStore) Restore(id, dstPath string, ovwrite bool) error {
	s, err := st.Get(id)
	if err != nil {
		return err
	}

	sum, err := fileCksum(st.snapPath(id))
	if err != nil {
		return fmt.Errorf("snapshot: restore %s: %w", id, err)
	}
	if hex.EncodeToString(sum) != s.Digest {
		return fmt.Errorf("snapshot: restore %s: %w: snapshot digest mismatch", id, ErrCorruptHeader)
	}

	var opts uint32
	if ovwrite {
		opts |= fio.OPT_OVERWRITE
	}

	sf, err := fio.NewSafeFile(dstPath, opts, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("snapshot: restore %s: %w", id, err)
	}
	defer sf.Abort()

	fd, err := os.Open(st.snapPath(id))
	if err != nil {
		return fmt.Errorf("snapshot: restore %s: %w", id, err)
	}
	defer fd.Close()

	if _, err = io.Copy(sf, fd); err != nil {
		return fmt.Errorf("snapshot: restore %s: %w", id, err)
	}
	return sf.Close()
}

// Delete removes a snapshot and its metadata.
func (st *SnapshotStore) Delete(id string) error {
	if err := os.Remove(st.metaPath(id)); err != nil {
		return fmt.Errorf("snapshot: delete %s: %w", id, err)
	}

	// the copy is 0400; make it deletable everywhere
	os.Chmod(st.snapPath(id), 0600)
	if err := os.Remove(st.snapPath(id)); err != nil {
		return fmt.Errorf("snapshot: delete %s: %w", id, err)
	}
	return nil
}

func (st *SnapshotStore) snapPath(id string) string {
	return filepath.Join(st.dir, id+".snap")
}

func (st *SnapshotStore) metaPath(id string) string {
	return filepath.Join(st.dir, id+".meta")
}

func (st *SnapshotStore) writeMeta(s *Snapshot) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("snapshot: marshal %s: %w", s.ID, err)
	}

	sf, err := fio.NewSafeFile(st.metaPath(s.ID), 0, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer sf.Abort()

	sf.Write(b)
	return sf.Close()
}

func (st *SnapshotStore) readMeta(fn string) (*Snapshot, error) {
	b, err := os.ReadFile(fn)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	var s Snapshot
	if err = yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("snapshot: %s: %w", fn, err)
	}
	return &s, nil
}

// fileCksum computes the BLAKE3 sum of a file via mmap.
func fileCksum(fn string) ([]byte, error) {
	fd, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	var h hash.Hash = blake3.New(32, nil)
	_, err = mmap.Reader(fd, func(b []byte) error {
		h.Write(b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
