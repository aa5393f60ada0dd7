// iomisc.go -- misc file I/O helpers
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
	"os"

	"github.com/opencoff/go-fio"
)

// writeFile writes contents to an atomically created file.
func writeFile(fn string, b []byte, ovwrite bool, mode os.FileMode) error {
	var opts uint32
	if ovwrite {
		opts |= fio.OPT_OVERWRITE
	}

	sf, err := fio.NewSafeFile(fn, opts, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}

	defer sf.Abort()
	sf.Write(b)
	return sf.Close()
}

// shredFile overwrites a file with random bytes before unlinking it.
// Best effort on modern filesystems, but it keeps the plaintext
// record out of a naive disk image.
func shredFile(fn string) error {
	fd, err := os.OpenFile(fn, os.O_WRONLY, 0)
	if err != nil {
		return err
	}

	if fi, err := fd.Stat(); err == nil {
		fd.WriteAt(randBuf(int(fi.Size())), 0)
		fd.Sync()
	}
	fd.Close()

	return os.Remove(fn)
}
