// keys.go -- key management commands
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
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/opencoff/pflag"

	"github.com/Dezirae-Stark/QWAMOS-sub005/kem"
)

// Run the keygen command
func keygen(cfg *Config, args []string) {
	var help bool
	var scheme string

	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	fs.BoolVarP(&help, "help", "h", false, "Show this help and exit")
	fs.StringVarP(&scheme, "kem", "k", cfg.Kem, "Use KEM scheme `S` for the new key")

	fs.Parse(args)

	if help {
		fs.SetOutput(os.Stdout)
		fmt.Printf(`%s keygen [options] owner

Generate a new KEM key pair owned by OWNER (typically a VM name) and
print its key id. Available schemes: %s.

Options:
`, Z, strings.Join(kem.Names(), ", "))
		fs.PrintDefaults()
		os.Exit(0)
	}

	args = fs.Args()
	if len(args) < 1 {
		Die("Missing owner. Try '%s keygen -h'", Z)
	}

	r, err := cfg.keystore().Generate(args[0], scheme)
	if err != nil {
		Die("%s", err)
	}
	fmt.Println(r.KeyID)
}

// Run the keys command
func keysList(cfg *Config, args []string) {
	var help, all bool

	fs := flag.NewFlagSet("keys", flag.ExitOnError)
	fs.BoolVarP(&help, "help", "h", false, "Show this help and exit")
	fs.BoolVarP(&all, "all", "a", false, "Include archived keys")

	fs.Parse(args)

	if help {
		fs.SetOutput(os.Stdout)
		fmt.Printf(`%s keys [options] [owner]

List key records in the keystore (%s), optionally restricted to one
OWNER.

Options:
`, Z, cfg.KeystoreDir)
		fs.PrintDefaults()
		os.Exit(0)
	}

	owner := ""
	if rest := fs.Args(); len(rest) > 0 {
		owner = rest[0]
	}

	v, err := cfg.keystore().List(owner)
	if err != nil {
		Die("%s", err)
	}

	maxAge := cfg.rotationInterval()

	fmt.Printf("%-40s %-16s %-18s %-20s %4s  %s\n", "KEY ID", "FINGERPRINT", "KEM", "CREATED", "ROT", "STATUS")
	for _, r := range v {
		if r.Archived && !all {
			continue
		}

		status := "active"
		switch {
		case r.Archived:
			status = "archived -> " + r.SupersededBy
		case maxAge > 0 && r.Age() > maxAge:
			status = "rotation due"
		}

		fmt.Printf("%-40s %-16s %-18s %-20s %4d  %s\n", r.KeyID, r.Fingerprint, r.Kem,
			r.Created.Local().Format(time.DateTime), r.Rotations, status)
	}
}

// Run the rotate command
func rotate(cfg *Config, args []string) {
	var help bool

	fs := flag.NewFlagSet("rotate", flag.ExitOnError)
	fs.BoolVarP(&help, "help", "h", false, "Show this help and exit")

	fs.Parse(args)

	if help {
		fs.SetOutput(os.Stdout)
		fmt.Printf(`%s rotate key-id

Generate a successor key pair for KEY-ID and archive the old record.
Volumes bound to KEY-ID stay readable; re-create or migrate them to
move their data under the new key.
`, Z)
		fs.PrintDefaults()
		os.Exit(0)
	}

	args = fs.Args()
	if len(args) < 1 {
		Die("Missing key id. Try '%s rotate -h'", Z)
	}

	r, err := cfg.keystore().Rotate(args[0])
	if err != nil {
		Die("%s", err)
	}
	fmt.Println(r.KeyID)
}

// Run the keydel command
func keydel(cfg *Config, args []string) {
	var help, force bool

	fs := flag.NewFlagSet("keydel", flag.ExitOnError)
	fs.BoolVarP(&help, "help", "h", false, "Show this help and exit")
	fs.BoolVarP(&force, "force", "f", false, "Don't ask for confirmation")

	fs.Parse(args)

	if help {
		fs.SetOutput(os.Stdout)
		fmt.Printf(`%s keydel [options] key-id

Overwrite and remove the key record for KEY-ID. Every volume bound to
it becomes PERMANENTLY unreadable.

Options:
`, Z)
		fs.PrintDefaults()
		os.Exit(0)
	}

	args = fs.Args()
	if len(args) < 1 {
		Die("Missing key id. Try '%s keydel -h'", Z)
	}
	keyID := args[0]

	if !force && !confirm(fmt.Sprintf("Really shred %s? Data under it is lost forever", keyID)) {
		Die("aborted")
	}

	if err := cfg.keystore().Delete(keyID); err != nil {
		Die("%s", err)
	}
	Warn("%s: shredded", keyID)
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)

	rd := bufio.NewReader(os.Stdin)
	s, err := rd.ReadString('\n')
	if err != nil {
		return false
	}

	s = strings.ToLower(strings.TrimSpace(s))
	return s == "y" || s == "yes"
}
