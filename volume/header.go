// header.go -- container header codec
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

// Container layout:
//
//	 0: magic "QWAMOSPQ"            8 bytes
//	 8: format version              8 bytes, big endian
//	16: flags                       8 bytes, big endian
//	24: reserved, zero              8 bytes
//	32: volume UUID                16 bytes
//	48: key id              4 byte len + bytes
//	 N: encapsulation blob  4 byte len + bytes
//	 .: KDF salt                   32 bytes
//	 .: total block count           8 bytes, big endian
//	 .: block size                  8 bytes, big endian
//	 .: header digest              32 bytes, BLAKE3 of all preceding
//	 .: zero padding up to one block-size multiple
//
// Data blocks follow, each [nonce 12][ciphertext blocksize][tag 16]
// at a fixed offset computed from the index. The digest must verify
// before anything else in the file is believed.

package volume

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"lukechampine.com/blake3"
)

const Magic = "QWAMOSPQ"

// Current container format version
const Version = 1

// DefaultBlockSize is used when the caller doesn't pick one.
const DefaultBlockSize = 4096

// Header flag bits
const (
	// FlagUnfinalized marks a volume still being populated (eg by a
	// migration). Open refuses such volumes unless explicitly told
	// otherwise.
	FlagUnfinalized uint64 = 1 << 0
)

const (
	minBlockSize = 512
	maxBlockSize = 64 * 1024

	saltSize   = 32
	digestSize = 32

	maxKeyIDLen = 128
	maxEncapLen = 8192

	// fixed fields + the two length prefixes
	fixedWireSize = 8 + 8 + 8 + 8 + 16 + 4 + 4 + saltSize + 8 + 8

	// largest possible on-disk header incl padding
	maxHeaderSize = 128 * 1024
)

// Header is the parsed fixed-size region at the start of a
// container. Everything needed to rebuild the data key is here
// except the KEM secret key, which stays in the keystore.
type Header struct {
	Version uint64
	Flags   uint64
	UUID    uuid.UUID

	// Keystore reference and the encapsulation made at creation
	KeyID string
	Encap []byte

	// Per-volume KDF salt
	Salt []byte

	Blocks    uint64
	BlockSize uint64
}

// Size returns the on-disk header size: the wire form rounded up to
// a block-size multiple so block 0 starts block-aligned.
func (h *Header) Size() int64 {
	n := uint64(h.wireSize() + digestSize)
	bsz := h.BlockSize
	return int64((n + bsz - 1) / bsz * bsz)
}

func (h *Header) wireSize() int {
	return fixedWireSize + len(h.KeyID) + len(h.Encap)
}

func (h *Header) validate() error {
	bsz := h.BlockSize
	if bsz < minBlockSize || bsz > maxBlockSize || bsz&(bsz-1) != 0 {
		return fmt.Errorf("volume: %w: %d", ErrBadBlockSize, bsz)
	}
	if len(h.KeyID) == 0 || len(h.KeyID) > maxKeyIDLen {
		return fmt.Errorf("volume: key id is %d bytes", len(h.KeyID))
	}
	if len(h.Encap) == 0 || len(h.Encap) > maxEncapLen {
		return fmt.Errorf("volume: encap blob is %d bytes", len(h.Encap))
	}
	if len(h.Salt) != saltSize {
		return fmt.Errorf("volume: salt is %d bytes", len(h.Salt))
	}
	return nil
}

// marshal serializes the header, digest and padding included.
func (h *Header) marshal() ([]byte, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}

	buf := make([]byte, h.Size())
	b := buf

	n := copy(b, Magic)
	b = b[n:]
	b = enc64(b, h.Version)
	b = enc64(b, h.Flags)
	b = enc64(b, uint64(0)) // reserved
	n = copy(b, h.UUID[:])
	b = b[n:]

	b = enc32(b, len(h.KeyID))
	n = copy(b, h.KeyID)
	b = b[n:]

	b = enc32(b, len(h.Encap))
	n = copy(b, h.Encap)
	b = b[n:]

	n = copy(b, h.Salt)
	b = b[n:]

	b = enc64(b, h.Blocks)
	b = enc64(b, h.BlockSize)

	w := h.wireSize()
	sum := blake3.Sum256(buf[:w])
	copy(buf[w:], sum[:])
	return buf, nil
}

// parseHeader decodes and verifies a header from the start of buf.
// buf must extend at least to the end of the padded header.
func parseHeader(buf []byte) (*Header, error) {
	if len(buf) < 8 || !bytes.Equal(buf[:8], []byte(Magic)) {
		return nil, ErrNotVolume
	}
	if len(buf) < fixedWireSize {
		return nil, fmt.Errorf("volume: %w: truncated at %d bytes", ErrCorruptHeader, len(buf))
	}

	var h Header
	b := buf[8:]

	b, h.Version = dec64(b)
	b, h.Flags = dec64(b)
	b, _ = dec64(b) // reserved
	copy(h.UUID[:], b[:16])
	b = b[16:]

	var klen, elen int
	b, klen = dec32(b)
	if klen > maxKeyIDLen || len(b) < klen+4 {
		return nil, fmt.Errorf("volume: %w: key id length %d", ErrCorruptHeader, klen)
	}
	h.KeyID = string(b[:klen])
	b = b[klen:]

	b, elen = dec32(b)
	if elen > maxEncapLen || len(b) < elen+saltSize+16+digestSize {
		return nil, fmt.Errorf("volume: %w: encap length %d", ErrCorruptHeader, elen)
	}
	h.Encap = bytes.Clone(b[:elen])
	b = b[elen:]

	h.Salt = bytes.Clone(b[:saltSize])
	b = b[saltSize:]

	b, h.Blocks = dec64(b)
	_, h.BlockSize = dec64(b)

	// digest first; only then do version or size checks mean
	// anything
	w := h.wireSize()
	sum := blake3.Sum256(buf[:w])
	if subtle.ConstantTimeCompare(sum[:], buf[w:w+digestSize]) != 1 {
		return nil, fmt.Errorf("volume: %w: digest mismatch", ErrCorruptHeader)
	}

	if h.Version != Version {
		return nil, fmt.Errorf("volume: %w: version %d", ErrBadVersion, h.Version)
	}
	if err := h.validate(); err != nil {
		return nil, err
	}

	// padding is not digest-covered; it must be untouched zeroes
	hsz := int(h.Size())
	if len(buf) < hsz {
		return nil, fmt.Errorf("volume: %w: truncated at %d bytes", ErrCorruptHeader, len(buf))
	}
	for _, z := range buf[w+digestSize : hsz] {
		if z != 0 {
			return nil, fmt.Errorf("volume: %w: dirty header padding", ErrCorruptHeader)
		}
	}
	return &h, nil
}

// ReadHeader reads and verifies the header of the container at path
// without opening the volume or touching the keystore.
func ReadHeader(path string) (*Header, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	buf := make([]byte, maxHeaderSize)
	n, err := io.ReadFull(fd, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("volume: %s: %w", path, err)
	}
	return parseHeader(buf[:n])
}

// wire codec helpers; every header integer is big endian

func enc32(b []byte, n int) []byte {
	binary.BigEndian.PutUint32(b, uint32(n))
	return b[4:]
}

func dec32(b []byte) ([]byte, int) {
	return b[4:], int(binary.BigEndian.Uint32(b[:4]))
}

func enc64(b []byte, n uint64) []byte {
	binary.BigEndian.PutUint64(b, n)
	return b[8:]
}

func dec64(b []byte) ([]byte, uint64) {
	return b[8:], binary.BigEndian.Uint64(b[:8])
}
