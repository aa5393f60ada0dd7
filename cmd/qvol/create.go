// create.go -- create encrypted volumes
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

	"github.com/opencoff/go-utils"
	flag "github.com/opencoff/pflag"

	"github.com/Dezirae-Stark/QWAMOS-sub005/volume"
)

// Run the create command
func create(cfg *Config, args []string) {
	var help bool
	var szstr, bsstr, scheme, keyID string

	fs := flag.NewFlagSet("create", flag.ExitOnError)
	fs.BoolVarP(&help, "help", "h", false, "Show this help and exit")
	fs.StringVarP(&szstr, "size", "s", "", "Volume capacity `N` (eg 512M, 8G)")
	fs.StringVarP(&bsstr, "block-size", "b", "", "Block size `B` (default 4k)")
	fs.StringVarP(&scheme, "kem", "k", cfg.Kem, "Use KEM scheme `S` for the new key")
	fs.StringVarP(&keyID, "key", "K", "", "Bind to existing key `ID` instead of generating one")

	fs.Parse(args)

	if help {
		fs.SetOutput(os.Stdout)
		fmt.Printf(`%s create [options] -s size path owner

Create a sparse encrypted volume at PATH sized for SIZE bytes of
data, bound to a fresh key pair owned by OWNER. Prints the key id.

Options:
`, Z)
		fs.PrintDefaults()
		os.Exit(0)
	}

	if !cfg.encryptionEnabled() {
		Die("encryption is disabled in the configuration")
	}

	args = fs.Args()
	if len(args) < 2 {
		Die("Missing path or owner. Try '%s create -h'", Z)
	}
	if szstr == "" {
		Die("Missing volume size. Try '%s create -h'", Z)
	}

	size, err := utils.ParseSize(szstr)
	if err != nil {
		Die("bad size '%s': %s", szstr, err)
	}

	v, err := volume.Create(cfg.keystore(), args[0], args[1], size, &volume.CreateOpts{
		BlockSize: cfg.blockSize(bsstr),
		Kem:       scheme,
		KeyID:     keyID,
	})
	if err != nil {
		Die("%s", err)
	}
	defer v.Close()

	fmt.Println(v.KeyID())
}
