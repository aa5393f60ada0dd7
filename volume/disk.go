// disk.go -- byte-addressed view of an encrypted volume
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
	"fmt"
	"io"
	"sync"

	"github.com/Dezirae-Stark/QWAMOS-sub005/keystore"
)

// Disk presents a volume as a flat byte range, the shape a VM
// manager expects of a disk image. Offsets and lengths are
// translated to block indices; a write covering part of a block
// costs a read-modify-write of that block. All access is serialized
// behind one lock since partial writes are not independent.
type Disk struct {
	mu sync.Mutex
	v  *Volume
}

// CreateDisk creates an encrypted container sized for size bytes and
// returns its byte-addressed handle.
func CreateDisk(ks *keystore.Keystore, path, owner string, size uint64, opt *CreateOpts) (*Disk, error) {
	v, err := Create(ks, path, owner, size, opt)
	if err != nil {
		return nil, err
	}
	return &Disk{v: v}, nil
}

// OpenDisk opens an existing container as a byte-addressed disk.
func OpenDisk(ks *keystore.Keystore, path string) (*Disk, error) {
	v, err := Open(ks, path, nil)
	if err != nil {
		return nil, err
	}
	return &Disk{v: v}, nil
}

// Volume returns the underlying block handle.
func (d *Disk) Volume() *Volume {
	return d.v
}

// KeyID returns the keystore identity the disk is bound to.
func (d *Disk) KeyID() string {
	return d.v.KeyID()
}

// Size returns the disk capacity in bytes.
func (d *Disk) Size() int64 {
	return int64(d.v.Size())
}

// ReadAt implements io.ReaderAt over the decrypted byte range.
func (d *Disk) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if off < 0 {
		return 0, fmt.Errorf("disk: negative offset %d", off)
	}

	bsz := int64(d.v.BlockSize())
	size := d.Size()

	n := 0
	for n < len(p) && off < size {
		idx := uint64(off / bsz)
		skip := int(off % bsz)

		blk, err := d.v.ReadBlock(idx)
		if err != nil {
			return n, err
		}

		m := copy(p[n:], blk[skip:])
		n += m
		off += int64(m)
	}

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt. Partial blocks at either end are
// read, patched and resealed.
func (d *Disk) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if off < 0 {
		return 0, fmt.Errorf("disk: negative offset %d", off)
	}
	if off+int64(len(p)) > d.Size() {
		return 0, fmt.Errorf("disk: write past end: %w", ErrBadIndex)
	}

	bsz := int64(d.v.BlockSize())

	n := 0
	for n < len(p) {
		idx := uint64(off / bsz)
		skip := int(off % bsz)
		m := int(bsz) - skip
		if m > len(p)-n {
			m = len(p) - n
		}

		var blk []byte
		if skip == 0 && m == int(bsz) {
			blk = p[n : n+m]
		} else {
			// read-modify-write of the covering block
			old, err := d.v.ReadBlock(idx)
			if err != nil {
				return n, err
			}
			copy(old[skip:], p[n:n+m])
			blk = old
		}

		if err := d.v.WriteBlock(idx, blk); err != nil {
			return n, err
		}
		n += m
		off += int64(m)
	}
	return n, nil
}

// Close erases key material and releases the volume.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.v.Close()
}
