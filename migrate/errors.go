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

package migrate

import "errors"

var (
	// ErrBadSource is returned when the source is missing, empty or
	// unreadable.
	ErrBadSource = errors.New("unusable migration source")

	// ErrVerify is returned when the read-back comparison between
	// destination and source finds a difference. The destination is
	// left unfinalized.
	ErrVerify = errors.New("verification mismatch")

	// ErrFinalized is returned when resuming into a volume that was
	// already finalized; there is nothing to resume.
	ErrFinalized = errors.New("destination already finalized")
)
