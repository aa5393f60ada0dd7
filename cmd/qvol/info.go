// info.go -- inspect volume headers
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

// Run the info command
func info(cfg *Config, args []string) {
	var help bool

	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.BoolVarP(&help, "help", "h", false, "Show this help and exit")

	fs.Parse(args)

	if help {
		fs.SetOutput(os.Stdout)
		fmt.Printf(`%s info file [file ...]

Verify and print the header of each volume container. Doesn't touch
the keystore; no keys are needed or derived.
`, Z)
		fs.PrintDefaults()
		os.Exit(0)
	}

	args = fs.Args()
	if len(args) < 1 {
		Die("Missing volume path. Try '%s info -h'", Z)
	}

	rc := 0
	for _, fn := range args {
		h, err := volume.ReadHeader(fn)
		if err != nil {
			Warn("%s: %s", fn, err)
			rc = 1
			continue
		}

		state := "finalized"
		if h.Flags&volume.FlagUnfinalized != 0 {
			state = "UNFINALIZED"
		}

		fmt.Printf(`%s:
    version:    %d
    state:      %s
    uuid:       %s
    key id:     %s
    capacity:   %s (%d blocks of %s)
    encap blob: %d bytes
`, fn, h.Version, state, h.UUID, h.KeyID,
			utils.HumanizeSize(h.Blocks*h.BlockSize), h.Blocks,
			utils.HumanizeSize(h.BlockSize), len(h.Encap))
	}
	Exit(rc)
}
