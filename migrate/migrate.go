// migrate.go -- convert a plaintext block source into an encrypted volume
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

// Package migrate copies an unencrypted disk image into a freshly
// created encrypted volume: copy, verify by full read-back, then
// finalize. The source is never written; an interrupted run leaves
// the destination flagged unfinalized and resumable. Only after
// verification may the source optionally be deleted.
package migrate

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"lukechampine.com/blake3"

	"github.com/Dezirae-Stark/QWAMOS-sub005/keystore"
	"github.com/Dezirae-Stark/QWAMOS-sub005/volume"
)

// Options tweaks a migration. The zero value is a full migration
// with default block size and KEM scheme.
type Options struct {
	// Volume block size; default 4096.
	BlockSize uint64

	// KEM scheme for the new key pair.
	Kem string

	// First block to copy. Non-zero resumes into an existing
	// unfinalized destination instead of creating one.
	StartBlock uint64

	// Shred and remove the source after successful verification.
	RemoveSource bool

	// Progress, if set, is called after every copied block.
	Progress func(done, total uint64)
}

// Result reports what a migration accomplished. On error, LastBlock
// is the highest block index safely in the destination; resuming
// with StartBlock = LastBlock+1 continues without recopying.
type Result struct {
	KeyID  string
	Blocks uint64

	// highest index written, or ^0 if none
	LastBlock uint64

	BytesCopied uint64

	// BLAKE3 of the source, hex
	SourceSum string
}

const progressEvery = 256

// Migrate copies the plaintext file at src into a new encrypted
// volume at dst bound to a fresh key owned by owner. The copy is
// verified block by block against the source before the volume is
// finalized; cancellation via ctx is honored between blocks.
func Migrate(ctx context.Context, ks *keystore.Keystore, src, dst, owner string, opt *Options) (*Result, error) {
	var o Options
	if opt != nil {
		o = *opt
	}
	if o.BlockSize == 0 {
		o.BlockSize = volume.DefaultBlockSize
	}

	sfd, size, err := openSource(src)
	if err != nil {
		return nil, err
	}
	defer sfd.Close()

	var v *volume.Volume
	if o.StartBlock == 0 {
		v, err = volume.Create(ks, dst, owner, uint64(size), &volume.CreateOpts{
			BlockSize:   o.BlockSize,
			Kem:         o.Kem,
			Unfinalized: true,
		})
	} else {
		v, err = volume.Open(ks, dst, &volume.OpenOpts{AllowUnfinalized: true})
		if err == nil && !v.Unfinalized() {
			v.Close()
			err = fmt.Errorf("migrate: %s: %w", dst, ErrFinalized)
		}
	}
	if err != nil {
		return nil, err
	}
	defer v.Close()

	res := &Result{
		KeyID:     v.KeyID(),
		Blocks:    v.Blocks(),
		LastBlock: ^uint64(0),
	}
	if o.StartBlock > 0 {
		res.LastBlock = o.StartBlock - 1
	}

	log.Info().
		Str("src", src).
		Str("dst", dst).
		Str("keyid", res.KeyID).
		Uint64("blocks", res.Blocks).
		Uint64("start", o.StartBlock).
		Msg("migration started")

	if err = copyBlocks(ctx, sfd, v, o.StartBlock, &o, res); err != nil {
		log.Error().
			Str("dst", dst).
			Uint64("last_block", res.LastBlock).
			Err(err).
			Msg("migration interrupted; destination left unfinalized")
		return res, err
	}

	// full read-back against the source before we declare success
	if err = verify(sfd, v, size); err != nil {
		return res, err
	}

	sum, err := sourceSum(sfd)
	if err != nil {
		return res, fmt.Errorf("migrate: checksum %s: %w", src, err)
	}
	res.SourceSum = sum

	if err = v.Finalize(); err != nil {
		return res, err
	}

	log.Info().
		Str("dst", dst).
		Uint64("blocks", res.Blocks).
		Str("source_sum", res.SourceSum).
		Msg("migration verified and finalized")

	if o.RemoveSource {
		sfd.Close()
		if err = shredSource(src, size); err != nil {
			// the migration itself succeeded; report but keep going
			log.Warn().Str("src", src).Err(err).Msg("can't remove source")
			return res, nil
		}
		log.Info().Str("src", src).Msg("source removed")
	}
	return res, nil
}

func copyBlocks(ctx context.Context, sfd *os.File, v *volume.Volume, start uint64, o *Options, res *Result) error {
	bsz := v.BlockSize()
	buf := make([]byte, bsz)

	for idx := start; idx < v.Blocks(); idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		// the final chunk of the source may be short; the tail of
		// the block stays zero
		clear(buf)
		n, err := sfd.ReadAt(buf, int64(idx)*int64(bsz))
		if err != nil && err != io.EOF {
			return fmt.Errorf("migrate: read source block %d: %w", idx, err)
		}

		if err := v.WriteBlock(idx, buf); err != nil {
			return err
		}

		res.LastBlock = idx
		res.BytesCopied += uint64(n)

		if o.Progress != nil {
			o.Progress(idx+1, v.Blocks())
		}
		if (idx+1)%progressEvery == 0 {
			log.Debug().
				Uint64("done", idx+1).
				Uint64("total", v.Blocks()).
				Msg("migrating")
		}
	}
	return nil
}

func openSource(src string) (*os.File, int64, error) {
	fd, err := os.Open(src)
	if err != nil {
		return nil, 0, fmt.Errorf("migrate: %w: %s", ErrBadSource, err)
	}

	fi, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, 0, fmt.Errorf("migrate: %w: %s", ErrBadSource, err)
	}
	if !fi.Mode().IsRegular() || fi.Size() == 0 {
		fd.Close()
		return nil, 0, fmt.Errorf("migrate: %w: %s", ErrBadSource, src)
	}
	return fd, fi.Size(), nil
}

// shredSource overwrites the verified source before unlinking it.
func shredSource(src string, size int64) error {
	fd, err := os.OpenFile(src, os.O_WRONLY, 0)
	if err != nil {
		return err
	}

	buf := make([]byte, 64*1024)
	for off := int64(0); off < size; off += int64(len(buf)) {
		n := size - off
		if n > int64(len(buf)) {
			n = int64(len(buf))
		}
		if _, err = fd.WriteAt(buf[:n], off); err != nil {
			fd.Close()
			return err
		}
	}
	fd.Sync()
	fd.Close()

	return os.Remove(src)
}

func sourceSum(fd *os.File) (string, error) {
	if _, err := fd.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, fd); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
