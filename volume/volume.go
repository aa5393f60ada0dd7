// volume.go -- encrypted block container
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

// Package volume implements an encrypted, sparse block container.
// Every block is sealed with ChaCha20-Poly1305 under a key derived
// from a KEM shared secret held in a keystore; the nonce is a fixed
// function of (volume uuid, salt, block index), so rewriting a block
// in place never reuses a nonce for different positions and the
// layout needs no allocation map.
package volume

import (
	"crypto/cipher"
	"crypto/subtle"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"lukechampine.com/blake3"

	"github.com/Dezirae-Stark/QWAMOS-sub005/keystore"
)

// Context label for deriving the block-data key from the KEM shared
// secret. Changing this breaks every existing volume.
const dataKeyContext = "qwamos.volume.data.v1"

const (
	nonceSize = chacha20poly1305.NonceSize
	tagSize   = chacha20poly1305.Overhead
)

// Volume is an open handle on an encrypted container. Handle methods
// are safe for concurrent use; writers of the same index must be
// serialized by the caller.
type Volume struct {
	mu sync.Mutex

	fd  *os.File
	hdr *Header

	ae cipher.AEAD

	// derived data key; zeroed on Close
	key []byte

	dataOff int64
	closed  bool
}

// CreateOpts tweaks volume creation. The zero value picks the
// default block size and KEM scheme and generates a fresh key.
type CreateOpts struct {
	// Block size in bytes; power of two in [512, 65536].
	BlockSize uint64

	// KEM scheme name for the generated key pair.
	Kem string

	// Bind to this existing key instead of generating one.
	KeyID string

	// Mark the header unfinalized; the volume won't open normally
	// until Finalize is called. Used by migration.
	Unfinalized bool
}

// OpenOpts tweaks Open.
type OpenOpts struct {
	// Open a volume whose header carries the unfinalized flag.
	// Needed to resume or verify an interrupted migration.
	AllowUnfinalized bool
}

// Create makes a new encrypted container at path, sized to hold
// size bytes (rounded up to whole blocks), bound to a key pair owned
// by owner in ks. Data blocks start sparse: unwritten blocks read as
// zeroes and consume no backing store. Fails with ErrVolumeExists if
// path exists.
func Create(ks *keystore.Keystore, path, owner string, size uint64, opt *CreateOpts) (*Volume, error) {
	var o CreateOpts
	if opt != nil {
		o = *opt
	}
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if size == 0 {
		return nil, fmt.Errorf("volume: create %s: zero size", path)
	}

	// claim the path before minting any key so a failed create
	// leaves no orphan record behind
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("volume: %s: %w", path, ErrVolumeExists)
		}
		return nil, fmt.Errorf("volume: create %s: %w", path, err)
	}

	keyID := o.KeyID
	ownKey := false
	if keyID == "" {
		r, err := ks.Generate(owner, o.Kem)
		if err != nil {
			fd.Close()
			os.Remove(path)
			return nil, err
		}
		keyID = r.KeyID
		ownKey = true
	}

	v, err := create(ks, fd, keyID, size, &o)
	if err != nil {
		fd.Close()
		os.Remove(path)
		if ownKey {
			ks.Delete(keyID)
		}
		return nil, err
	}
	return v, nil
}

func create(ks *keystore.Keystore, fd *os.File, keyID string, size uint64, o *CreateOpts) (*Volume, error) {
	if err := lockFile(fd); err != nil {
		return nil, err
	}

	blob, ss, err := ks.Encapsulate(keyID)
	if err != nil {
		return nil, err
	}
	defer keystore.SecureErase(ss)

	var flags uint64
	if o.Unfinalized {
		flags |= FlagUnfinalized
	}

	hdr := &Header{
		Version:   Version,
		Flags:     flags,
		UUID:      uuid.New(),
		KeyID:     keyID,
		Encap:     blob,
		Salt:      randBuf(saltSize),
		Blocks:    (size + o.BlockSize - 1) / o.BlockSize,
		BlockSize: o.BlockSize,
	}

	b, err := hdr.marshal()
	if err != nil {
		return nil, err
	}
	if err = fullWriteAt(fd, b, 0); err != nil {
		return nil, fmt.Errorf("volume: write header: %w", err)
	}

	v, err := newHandle(fd, hdr, ss)
	if err != nil {
		return nil, err
	}

	// one truncate reserves the logical size; the block region is a
	// filesystem hole until written
	if err = fd.Truncate(v.dataOff + int64(hdr.Blocks)*v.recSize()); err != nil {
		keystore.SecureErase(v.key)
		return nil, fmt.Errorf("volume: truncate: %w", err)
	}
	return v, nil
}

// Open verifies the container header at path, decapsulates its
// shared secret via ks and re-derives the data key. The handle holds
// an exclusive lock until Close.
func Open(ks *keystore.Keystore, path string, opt *OpenOpts) (*Volume, error) {
	var o OpenOpts
	if opt != nil {
		o = *opt
	}

	fd, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("volume: open %s: %w", path, err)
	}

	v, err := open(ks, fd, &o)
	if err != nil {
		fd.Close()
		return nil, err
	}
	return v, nil
}

func open(ks *keystore.Keystore, fd *os.File, o *OpenOpts) (*Volume, error) {
	if err := lockFile(fd); err != nil {
		return nil, err
	}

	buf := make([]byte, maxHeaderSize)
	n, err := fd.ReadAt(buf, 0)
	if err != nil && n <= 0 {
		return nil, fmt.Errorf("volume: read header: %w", err)
	}

	hdr, err := parseHeader(buf[:n])
	if err != nil {
		return nil, err
	}

	if hdr.Flags&FlagUnfinalized != 0 && !o.AllowUnfinalized {
		return nil, fmt.Errorf("volume: %s: %w", fd.Name(), ErrUnfinalized)
	}

	ss, err := ks.Decapsulate(hdr.KeyID, hdr.Encap)
	if err != nil {
		return nil, err
	}
	defer keystore.SecureErase(ss)

	return newHandle(fd, hdr, ss)
}

func newHandle(fd *os.File, hdr *Header, ss []byte) (*Volume, error) {
	key := keystore.DeriveKey(ss, hdr.Salt, dataKeyContext)

	ae, err := chacha20poly1305.New(key)
	if err != nil {
		keystore.SecureErase(key)
		return nil, fmt.Errorf("volume: aead: %w", err)
	}

	v := &Volume{
		fd:      fd,
		hdr:     hdr,
		ae:      ae,
		key:     key,
		dataOff: hdr.Size(),
	}
	return v, nil
}

// ReadBlock decrypts and returns block idx. A never-written block
// comes back as all zeroes. Any mismatch between the stored record
// and its authentication tag is ErrTamperDetected.
func (v *Volume) ReadBlock(idx uint64) ([]byte, error) {
	rec, err := v.readRecord(idx)
	if err != nil {
		return nil, err
	}

	bsz := v.hdr.BlockSize
	if isZero(rec) {
		// sparse: never written
		return make([]byte, bsz), nil
	}

	// the stored nonce must be exactly the derived one; anything
	// else means the record was moved or altered
	nonce := v.nonceFor(idx)
	if subtle.ConstantTimeCompare(nonce, rec[:nonceSize]) != 1 {
		return nil, fmt.Errorf("volume: block %d: %w", idx, ErrTamperDetected)
	}

	pt, err := v.ae.Open(nil, nonce, rec[nonceSize:], v.adFor(idx))
	if err != nil {
		return nil, fmt.Errorf("volume: block %d: %w", idx, ErrTamperDetected)
	}
	return pt, nil
}

// WriteBlock encrypts data into block idx. data must be exactly one
// block. In-place overwrite is fine: the nonce depends on the index,
// not the write, so the same slot always seals under the same nonce.
func (v *Volume) WriteBlock(idx uint64, data []byte) error {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if idx >= v.hdr.Blocks {
		return fmt.Errorf("volume: %w: %d of %d", ErrBadIndex, idx, v.hdr.Blocks)
	}
	if uint64(len(data)) != v.hdr.BlockSize {
		return fmt.Errorf("volume: %w: %d bytes, want %d", ErrBadBlock, len(data), v.hdr.BlockSize)
	}

	nonce := v.nonceFor(idx)
	rec := make([]byte, 0, v.recSize())
	rec = append(rec, nonce...)
	rec = v.ae.Seal(rec, nonce, data, v.adFor(idx))

	if err := fullWriteAt(v.fd, rec, v.blockOff(idx)); err != nil {
		return fmt.Errorf("volume: block %d: %w", idx, err)
	}
	return nil
}

// Finalize clears the unfinalized flag and rewrites the header. Used
// once a migration has fully populated and verified the volume.
func (v *Volume) Finalize() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrClosed
	}
	if v.hdr.Flags&FlagUnfinalized == 0 {
		return nil
	}

	v.hdr.Flags &^= FlagUnfinalized
	b, err := v.hdr.marshal()
	if err != nil {
		return err
	}
	if err = fullWriteAt(v.fd, b, 0); err != nil {
		return fmt.Errorf("volume: finalize: %w", err)
	}
	return v.fd.Sync()
}

// Close erases the data key, releases the lock and closes the file.
// Safe to call more than once.
func (v *Volume) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true

	keystore.SecureErase(v.key)

	err := v.fd.Sync()
	unlockFile(v.fd)
	if cerr := v.fd.Close(); err == nil {
		err = cerr
	}
	return err
}

// Accessors

func (v *Volume) KeyID() string {
	return v.hdr.KeyID
}

func (v *Volume) UUID() uuid.UUID {
	return v.hdr.UUID
}

func (v *Volume) Blocks() uint64 {
	return v.hdr.Blocks
}

func (v *Volume) BlockSize() uint64 {
	return v.hdr.BlockSize
}

// Size returns the logical payload capacity in bytes.
func (v *Volume) Size() uint64 {
	return v.hdr.Blocks * v.hdr.BlockSize
}

func (v *Volume) Path() string {
	return v.fd.Name()
}

func (v *Volume) Unfinalized() bool {
	return v.hdr.Flags&FlagUnfinalized != 0
}

// internal helpers

func (v *Volume) recSize() int64 {
	return int64(nonceSize + v.hdr.BlockSize + tagSize)
}

func (v *Volume) blockOff(idx uint64) int64 {
	return v.dataOff + int64(idx)*v.recSize()
}

// nonceFor derives the per-block nonce from the volume identity and
// the index. Deterministic and collision free across the volume's
// lifetime; never reused for distinct indices under the same key.
func (v *Volume) nonceFor(idx uint64) []byte {
	var b [16 + saltSize + 8]byte

	n := copy(b[:], v.hdr.UUID[:])
	n += copy(b[n:], v.hdr.Salt)
	enc64(b[n:], idx)

	sum := blake3.Sum256(b[:])
	return sum[:nonceSize]
}

// adFor binds the volume uuid and block index into the AEAD so a
// sealed record can't be replayed into another slot or container.
func (v *Volume) adFor(idx uint64) []byte {
	var b [16 + 8]byte

	n := copy(b[:], v.hdr.UUID[:])
	enc64(b[n:], idx)
	return b[:]
}

func (v *Volume) readRecord(idx uint64) ([]byte, error) {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	if idx >= v.hdr.Blocks {
		return nil, fmt.Errorf("volume: %w: %d of %d", ErrBadIndex, idx, v.hdr.Blocks)
	}

	rec := make([]byte, v.recSize())
	if _, err := v.fd.ReadAt(rec, v.blockOff(idx)); err != nil {
		return nil, fmt.Errorf("volume: block %d: %w", idx, err)
	}
	return rec, nil
}

func isZero(b []byte) bool {
	var z byte
	for _, c := range b {
		z |= c
	}
	return z == 0
}

// fullWriteAt writes all of b at off, retrying short writes.
func fullWriteAt(fd *os.File, b []byte, off int64) error {
	for len(b) > 0 {
		n, err := fd.WriteAt(b, off)
		if err != nil {
			return err
		}
		b = b[n:]
		off += int64(n)
	}
	return nil
}
