// lock.go -- exclusive volume locking
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
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes a non-blocking exclusive flock on the container;
// one live handle per volume across processes.
func lockFile(fd *os.File) error {
	err := unix.Flock(int(fd.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return fmt.Errorf("volume: %s: %w", fd.Name(), ErrVolumeLocked)
	}
	if err != nil {
		return fmt.Errorf("volume: lock %s: %w", fd.Name(), err)
	}
	return nil
}

func unlockFile(fd *os.File) error {
	return unix.Flock(int(fd.Fd()), unix.LOCK_UN)
}
