// errors.go - list of all exportable errors in this package
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

import "errors"

var (
	// ErrVolumeExists is returned by Create when the path already
	// exists.
	ErrVolumeExists = errors.New("volume file already exists")

	// ErrNotVolume is returned when a file doesn't start with the
	// container magic.
	ErrNotVolume = errors.New("not a volume container")

	// ErrCorruptHeader is returned when the header digest doesn't
	// verify. The volume is unreadable; there is no repair path.
	ErrCorruptHeader = errors.New("volume header corrupt")

	// ErrBadVersion is returned for an unsupported format version.
	ErrBadVersion = errors.New("unsupported container version")

	// ErrUnfinalized is returned when opening a volume whose header
	// carries the unfinalized flag (eg an interrupted migration).
	ErrUnfinalized = errors.New("volume is unfinalized")

	// ErrVolumeLocked is returned when another handle holds the
	// exclusive lock.
	ErrVolumeLocked = errors.New("volume locked by another process")

	// ErrTamperDetected is returned when a block fails
	// authentication. The stored ciphertext, tag or nonce has been
	// altered; no plaintext is returned.
	ErrTamperDetected = errors.New("block authentication failed")

	// ErrBadIndex is returned for a block index past the end of the
	// volume.
	ErrBadIndex = errors.New("block index out of range")

	// ErrBadBlock is returned when a write isn't exactly one block.
	ErrBadBlock = errors.New("data is not exactly one block")

	// ErrBadBlockSize is returned for block sizes the format doesn't
	// allow.
	ErrBadBlockSize = errors.New("bad block size")

	// ErrClosed is returned for I/O against a closed handle.
	ErrClosed = errors.New("volume is closed")
)
