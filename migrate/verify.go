// verify.go -- read-back comparison of migrated volumes
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
	"fmt"
	"io"
	"os"

	"github.com/Dezirae-Stark/QWAMOS-sub005/keystore"
	"github.com/Dezirae-Stark/QWAMOS-sub005/volume"
)

// Verify opens the volume at dst (finalized or not) and compares
// every block against the plaintext source. Returns ErrVerify on the
// first difference.
func Verify(ks *keystore.Keystore, src, dst string) error {
	sfd, size, err := openSource(src)
	if err != nil {
		return err
	}
	defer sfd.Close()

	v, err := volume.Open(ks, dst, &volume.OpenOpts{AllowUnfinalized: true})
	if err != nil {
		return err
	}
	defer v.Close()

	return verify(sfd, v, size)
}

func verify(sfd *os.File, v *volume.Volume, size int64) error {
	bsz := v.BlockSize()

	if want := (uint64(size) + bsz - 1) / bsz; want != v.Blocks() {
		return fmt.Errorf("migrate: %w: source needs %d blocks, volume has %d", ErrVerify, want, v.Blocks())
	}

	buf := make([]byte, bsz)
	for idx := uint64(0); idx < v.Blocks(); idx++ {
		clear(buf)
		if _, err := sfd.ReadAt(buf, int64(idx)*int64(bsz)); err != nil && err != io.EOF {
			return fmt.Errorf("migrate: verify: read source block %d: %w", idx, err)
		}

		got, err := v.ReadBlock(idx)
		if err != nil {
			return err
		}
		if !bytes.Equal(got, buf) {
			return fmt.Errorf("migrate: %w: block %d", ErrVerify, idx)
		}
	}
	return nil
}
