// config.go -- tool configuration
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

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opencoff/go-utils"
	"gopkg.in/yaml.v2"

	"github.com/Dezirae-Stark/QWAMOS-sub005/keystore"
)

// Config is read from ~/.qwamos/config.yml (or --config). Every
// field has a usable default; a missing file is not an error.
type Config struct {
	KeystoreDir string `yaml:"keystore_dir"`
	SnapshotDir string `yaml:"snapshot_dir"`

	// default block size for new volumes, eg "4k"
	BlockSize string `yaml:"block_size"`

	// default KEM scheme for new keys
	Kem string `yaml:"kem"`

	// master switch; when off, commands that would encrypt refuse
	// to run
	Encryption *bool `yaml:"encryption"`

	// keys older than this are flagged by 'keys'; eg "2160h"
	RotationInterval string `yaml:"rotation_interval"`
}

func loadConfig(fn string) (*Config, error) {
	var c Config

	explicit := fn != ""
	if !explicit {
		fn = filepath.Join(qwamosDir(), "config.yml")
	}

	b, err := os.ReadFile(fn)
	switch {
	case err == nil:
		if err = yaml.UnmarshalStrict(b, &c); err != nil {
			return nil, fmt.Errorf("config %s: %w", fn, err)
		}
	case os.IsNotExist(err) && !explicit:
		// defaults only

	default:
		return nil, fmt.Errorf("config %s: %w", fn, err)
	}

	if c.KeystoreDir == "" {
		c.KeystoreDir = filepath.Join(qwamosDir(), "keystore")
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = filepath.Join(qwamosDir(), "snapshots")
	}
	return &c, nil
}

func qwamosDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".qwamos")
}

func (c *Config) encryptionEnabled() bool {
	return c.Encryption == nil || *c.Encryption
}

// blockSize returns the configured block size in bytes, with an
// optional command line override ("" means use config).
func (c *Config) blockSize(override string) uint64 {
	s := override
	if s == "" {
		s = c.BlockSize
	}
	if s == "" {
		return 0 // library default
	}

	n, err := utils.ParseSize(s)
	if err != nil {
		Die("bad block size '%s': %s", s, err)
	}
	return n
}

func (c *Config) rotationInterval() time.Duration {
	if c.RotationInterval == "" {
		return 0
	}

	d, err := time.ParseDuration(c.RotationInterval)
	if err != nil {
		Die("bad rotation interval '%s': %s", c.RotationInterval, err)
	}
	return d
}

func (c *Config) keystore() *keystore.Keystore {
	ks, err := keystore.New(c.KeystoreDir)
	if err != nil {
		Die("%s", err)
	}
	return ks
}
