// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command tananfs formats, mounts, audits, inspects, and snapshots
// TananFS volumes.
//
//	tananfs mkfs --device disk.img --size 64M --block-size 512
//	tananfs mount --device disk.img --mountpoint /mnt/tanan
//	tananfs check --device disk.img
//	tananfs inspect --device disk.img
//	tananfs image save --device disk.img --output vol.tnfsnap
//	tananfs image restore --device disk.img --input vol.tnfsnap
package main

import (
	"fmt"
	"log/slog"
	"os"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}
	switch args[0] {
	case "mkfs":
		return runMkfs(args[1:])
	case "mount":
		return runMount(args[1:])
	case "check":
		return runCheck(args[1:])
	case "inspect":
		return runInspect(args[1:])
	case "image":
		return runImage(args[1:])
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: tananfs <subcommand> [flags]

subcommands:
  mkfs     format a device or image file
  mount    mount a volume through FUSE
  check    audit a volume's invariants
  inspect  interactively examine superblock, inodes, and blocks
  image    save or restore a volume snapshot

run 'tananfs <subcommand> --help' for flags.`)
}

// newLogger builds the standard tool logger: JSON on stderr at Info
// level, or Debug with --verbose.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
