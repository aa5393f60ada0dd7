// snap.go -- snapshot commands
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
	"strings"
	"time"

	"github.com/opencoff/go-utils"
	flag "github.com/opencoff/pflag"

	"github.com/Dezirae-Stark/QWAMOS-sub005/volume"
)

// Run the snap command group
func snap(cfg *Config, args []string) {
	if len(args) < 1 {
		Die("Missing snap subcommand (create|list|restore|rm). Try '%s snap help'", Z)
	}

	sub := strings.ToLower(args[0])
	args = args[1:]

	switch sub {
	case "create", "c":
		snapCreate(cfg, args)

	case "list", "ls", "l":
		snapList(cfg, args)

	case "restore", "r":
		snapRestore(cfg, args)

	case "rm", "del":
		snapDelete(cfg, args)

	case "help", "-h", "--help":
		fmt.Printf(`%s snap create|list|restore|rm ...

Manage point-in-time snapshots (stored in %s). Snapshots copy the
container as-is: the data inside stays encrypted under the volume's
key.

  %s snap create volume-file [comment]
  %s snap list
  %s snap restore [-f] snap-id dest-file
  %s snap rm snap-id
`, Z, cfg.SnapshotDir, Z, Z, Z, Z)
		os.Exit(0)

	default:
		Die("Unknown snap subcommand '%s'. Try '%s snap help'", sub, Z)
	}
}

func snapStore(cfg *Config) *volume.SnapshotStore {
	st, err := volume.OpenSnapshotStore(cfg.SnapshotDir)
	if err != nil {
		Die("%s", err)
	}
	return st
}

func snapCreate(cfg *Config, args []string) {
	if len(args) < 1 {
		Die("Missing volume path. Try '%s snap help'", Z)
	}

	comment := ""
	if len(args) > 1 {
		comment = args[1]
	}

	s, err := snapStore(cfg).Create(args[0], comment)
	if err != nil {
		Die("%s", err)
	}
	fmt.Println(s.ID)
}

func snapList(cfg *Config, args []string) {
	v, err := snapStore(cfg).List()
	if err != nil {
		Die("%s", err)
	}

	fmt.Printf("%-44s %-20s %8s  %s\n", "SNAPSHOT", "CREATED", "SIZE", "COMMENT")
	for _, s := range v {
		fmt.Printf("%-44s %-20s %8s  %s\n", s.ID,
			s.Created.Local().Format(time.DateTime),
			utils.HumanizeSize(uint64(s.Size)), s.Comment)
	}
}

func snapRestore(cfg *Config, args []string) {
	var force bool

	fs := flag.NewFlagSet("snap restore", flag.ExitOnError)
	fs.BoolVarP(&force, "force", "f", false, "Overwrite the destination if it exists")
	fs.Parse(args)

	args = fs.Args()
	if len(args) < 2 {
		Die("Need snap-id and destination. Try '%s snap help'", Z)
	}

	if err := snapStore(cfg).Restore(args[0], args[1], force); err != nil {
		Die("%s", err)
	}
	Warn("%s: restored to %s", args[0], args[1])
}

func snapDelete(cfg *Config, args []string) {
	if len(args) < 1 {
		Die("Missing snap-id. Try '%s snap help'", Z)
	}

	if err := snapStore(cfg).Delete(args[0]); err != nil {
		Die("%s", err)
	}
}
