// wrap.go -- secret key wrapping under the keystore master key
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
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

const masterKeySize = 32

// loadMaster reads the master key, creating it on first use.
func loadMaster(dir string) ([]byte, error) {
	fn := filepath.Join(dir, "master.key")

	mk, err := os.ReadFile(fn)
	if err == nil {
		if len(mk) != masterKeySize {
			return nil, fmt.Errorf("keystore: %w: %s is %d bytes", ErrBadMasterKey, fn, len(mk))
		}
		return mk, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("keystore: master key: %w", err)
	}

	mk = randBuf(masterKeySize)
	if err = writeFile(fn, mk, false, 0600); err != nil {
		return nil, fmt.Errorf("keystore: master key: %w", err)
	}
	return mk, nil
}

// wrap seals a secret key under the master key. The wrapping key and
// nonce are derived per-record from a fresh salt, and the key id is
// bound in as additional data so a wrapped secret can't be replayed
// into another record.
func (ks *Keystore) wrap(sec []byte, keyID string) (esk, salt []byte, err error) {
	salt = randBuf(32)

	key, nonce := ks.wrapKeyNonce(salt, keyID)
	defer clear(key)

	ae, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, fmt.Errorf("keystore: wrap: %w", err)
	}

	esk = ae.Seal(nil, nonce, sec, []byte(keyID))
	return esk, salt, nil
}

func (ks *Keystore) unwrap(esk, salt []byte, keyID string) ([]byte, error) {
	key, nonce := ks.wrapKeyNonce(salt, keyID)
	defer clear(key)

	ae, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("keystore: unwrap: %w", err)
	}

	sec, err := ae.Open(nil, nonce, esk, []byte(keyID))
	if err != nil {
		return nil, fmt.Errorf("keystore: %w: secret for %s won't unwrap", ErrBadRecord, keyID)
	}
	return sec, nil
}

func (ks *Keystore) wrapKeyNonce(salt []byte, keyID string) (key, nonce []byte) {
	buf := expand(ks.master, salt, []byte(keyID), chacha20poly1305.KeySize+chacha20poly1305.NonceSizeX)
	return buf[:chacha20poly1305.KeySize], buf[chacha20poly1305.KeySize:]
}

// expand derives sz bytes via HKDF-SHA3-256. HKDF only fails when
// asked for more output than the hash allows; we never do.
func expand(ikm, salt, info []byte, sz int) []byte {
	h := func() hash.Hash { return sha3.New256() }
	out := make([]byte, sz)
	hx := hkdf.New(h, ikm, salt, info)
	if _, err := io.ReadFull(hx, out); err != nil {
		panic(fmt.Sprintf("hkdf: can't expand %d bytes: %s", sz, err))
	}
	return out
}
