// migrate.go -- encrypt plaintext disk images
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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/opencoff/pflag"

	"github.com/Dezirae-Stark/QWAMOS-sub005/migrate"
)

// Run the migrate command
func migrateCmd(cfg *Config, args []string) {
	var help, rmsrc, quiet bool
	var bsstr, scheme string
	var start uint64

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	fs.BoolVarP(&help, "help", "h", false, "Show this help and exit")
	fs.StringVarP(&bsstr, "block-size", "b", "", "Block size `B` (default 4k)")
	fs.StringVarP(&scheme, "kem", "k", cfg.Kem, "Use KEM scheme `S` for the new key")
	fs.BoolVarP(&rmsrc, "remove-source", "", false, "Shred the source after verification")
	fs.Uint64VarP(&start, "resume", "r", 0, "Resume an interrupted migration from block `N`")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Don't print progress")

	fs.Parse(args)

	if help {
		fs.SetOutput(os.Stdout)
		fmt.Printf(`%s migrate [options] src dst owner

Copy the plaintext disk image SRC into a new encrypted volume DST
bound to a fresh key owned by OWNER. The copy is verified block by
block before the volume is finalized; the source is never modified
unless --remove-source is given, and only after verification.

An interrupted run reports the last copied block; rerun with
--resume N+1 to continue.

Options:
`, Z)
		fs.PrintDefaults()
		os.Exit(0)
	}

	if !cfg.encryptionEnabled() {
		Die("encryption is disabled in the configuration")
	}

	args = fs.Args()
	if len(args) < 3 {
		Die("Need src, dst and owner. Try '%s migrate -h'", Z)
	}

	opt := &migrate.Options{
		BlockSize:    cfg.blockSize(bsstr),
		Kem:          scheme,
		StartBlock:   start,
		RemoveSource: rmsrc,
	}
	if !quiet {
		opt.Progress = progressLine
	}

	// ^C leaves an unfinalized, resumable destination
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := migrate.Migrate(ctx, cfg.keystore(), args[0], args[1], args[2], opt)
	if !quiet {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		if res != nil && res.LastBlock != ^uint64(0) {
			Die("%s; resume with --resume %d", err, res.LastBlock+1)
		}
		Die("%s", err)
	}

	fmt.Println(res.KeyID)
}

// Run the verify command
func verifyCmd(cfg *Config, args []string) {
	var help bool

	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	fs.BoolVarP(&help, "help", "h", false, "Show this help and exit")

	fs.Parse(args)

	if help {
		fs.SetOutput(os.Stdout)
		fmt.Printf(`%s verify src dst

Compare the encrypted volume DST block by block against the
plaintext source SRC. Exits 0 when identical.
`, Z)
		fs.PrintDefaults()
		os.Exit(0)
	}

	args = fs.Args()
	if len(args) < 2 {
		Die("Need src and dst. Try '%s verify -h'", Z)
	}

	if err := migrate.Verify(cfg.keystore(), args[0], args[1]); err != nil {
		Die("%s", err)
	}
	Warn("%s: verified against %s", args[1], args[0])
}

func progressLine(done, total uint64) {
	if done == total || done%64 == 0 {
		fmt.Fprintf(os.Stderr, "\r%3d%% (%d/%d blocks)", done*100/total, done, total)
	}
}
