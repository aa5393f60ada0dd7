// main.go -- qvol: manage encrypted block volumes and their keys
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
	"path"
	"strings"

	flag "github.com/opencoff/pflag"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// This will be filled in by "build"
var Version string = "1.0.0"

var Z string = path.Base(os.Args[0])

func main() {
	var help, ver, debug bool
	var cfgFile string

	fs := flag.NewFlagSet(Z, flag.ExitOnError)
	fs.SetInterspersed(false)
	fs.BoolVarP(&help, "help", "h", false, "Show this help and exit")
	fs.BoolVarP(&ver, "version", "v", false, "Show version info and exit")
	fs.BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	fs.StringVarP(&cfgFile, "config", "c", "", "Read configuration from `F`")

	fs.Parse(os.Args[1:])

	if ver {
		fmt.Printf("%s: %s\n", Z, Version)
		Exit(0)
	}
	if help {
		usage(fs, 0)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := loadConfig(cfgFile)
	if err != nil {
		Die("%s", err)
	}

	args := fs.Args()
	if len(args) < 1 {
		Die("Missing command. Try '%s --help'", Z)
	}

	cmd := strings.ToLower(args[0])
	args = args[1:]

	switch cmd {
	case "keygen", "kg":
		keygen(cfg, args)

	case "keys", "k":
		keysList(cfg, args)

	case "rotate":
		rotate(cfg, args)

	case "keydel":
		keydel(cfg, args)

	case "create", "c":
		create(cfg, args)

	case "info", "i":
		info(cfg, args)

	case "migrate", "m":
		migrateCmd(cfg, args)

	case "verify":
		verifyCmd(cfg, args)

	case "snap", "s":
		snap(cfg, args)

	case "help":
		usage(fs, 0)

	default:
		Die("Unknown command '%s'. Try '%s --help'", cmd, Z)
	}

	Exit(0)
}

func usage(fs *flag.FlagSet, code int) {
	fs.SetOutput(os.Stdout)
	fmt.Printf(`%s - manage encrypted block volumes and their KEM keys.

Usage: %s [options] command [options ..] [args ..]

Commands:
  keygen, kg   Generate a new volume key pair
  keys, k      List key records in the keystore
  rotate       Rotate a key: mint a successor, archive the old record
  keydel       Shred a key record (volumes under it become unreadable)
  create, c    Create a new encrypted volume
  info, i      Show header details of a volume
  migrate, m   Encrypt a plaintext disk image into a new volume
  verify       Compare a volume against its plaintext source
  snap, s      Manage point-in-time snapshots of volumes

Options:
`, Z, Z)
	fs.PrintDefaults()
	os.Exit(code)
}
