// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/tananfs/lib/blockdev"
	"github.com/bureau-foundation/tananfs/lib/fs"
	"github.com/bureau-foundation/tananfs/lib/layout"
)

func runInspect(args []string) error {
	flags := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	devicePath := flags.String("device", "", "device or image file holding the volume (required)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *devicePath == "" {
		return fmt.Errorf("--device is required")
	}

	device, err := blockdev.OpenFile(*devicePath)
	if err != nil {
		return err
	}
	defer device.Close()

	if _, err := layout.Detect(device); err != nil {
		return err
	}
	fsys, err := fs.Mount(device, fs.Options{})
	if err != nil {
		return err
	}

	// No prompt when input is piped in; scripts get clean output.
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Println("commands: s | i <ordinal> | d <ordinal> | b <ordinal> | check | q")
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print(">> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "q" || fields[0] == "quit" {
			return nil
		}
		if err := inspectCommand(fsys, fields); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func inspectCommand(fsys *fs.Filesystem, fields []string) error {
	switch fields[0] {
	case "s":
		super := fsys.Superblock()
		fmt.Printf("block size:   %d\n", super.BlockSize)
		fmt.Printf("inodes:       %d total, %d free\n", super.InodeCount, super.FreeInodes)
		fmt.Printf("blocks:       %d total, %d free\n", super.BlockCount, super.FreeBlocks)
		fmt.Printf("inode region: byte %d\n", super.InodeRegionStart())
		fmt.Printf("block region: byte %d\n", super.BlockRegionStart())
		return nil

	case "i":
		ordinal, err := parseOrdinal(fields)
		if err != nil {
			return err
		}
		inode, err := fsys.Getattr(ordinal)
		if err != nil {
			return err
		}
		fmt.Printf("inode %d: %s mode %04o uid %d gid %d\n",
			inode.Ordinal, inode.Type, inode.Mode, inode.UID, inode.GID)
		fmt.Printf("  size %d bytes in %d blocks, chain %d..%d\n",
			inode.Size, inode.BlockCount, inode.FirstBlock, inode.LastBlock)
		fmt.Printf("  atime %d mtime %d ctime %d\n", inode.Atime, inode.MtimeData, inode.MtimeMeta)
		fmt.Printf("  slots %v\n", inode.Metadata)
		return nil

	case "d":
		ordinal, err := parseOrdinal(fields)
		if err != nil {
			return err
		}
		entries, err := fsys.Readdir(ordinal)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			fmt.Printf("%8d  %-9s %s\n", entry.Ino, entry.Type, entry.Name)
		}
		return nil

	case "b":
		ordinal, err := parseOrdinal(fields)
		if err != nil {
			return err
		}
		return dumpBlock(fsys, ordinal)

	case "check":
		findings, err := fsys.Check()
		if err != nil {
			return err
		}
		if len(findings) == 0 {
			fmt.Println("volume is consistent")
			return nil
		}
		for _, finding := range findings {
			fmt.Println(finding)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func parseOrdinal(fields []string) (uint64, error) {
	if len(fields) < 2 {
		return 0, fmt.Errorf("%s needs an ordinal", fields[0])
	}
	return strconv.ParseUint(fields[1], 10, 64)
}

// dumpBlock prints a block's chain pointer and the head of its
// payload as a hex dump.
func dumpBlock(fsys *fs.Filesystem, ordinal uint64) error {
	block, err := fsys.ReadRawBlock(ordinal)
	if err != nil {
		return err
	}
	next := layout.NextPointer(block)
	if next == layout.NIL {
		fmt.Println("next: NIL")
	} else {
		fmt.Printf("next: %d\n", next)
	}

	payload := block[layout.NextPointerLen:]
	const rows = 8
	for row := 0; row < rows && row*16 < len(payload); row++ {
		line := payload[row*16 : min(row*16+16, len(payload))]
		fmt.Printf("%04x  % x\n", row*16, line)
	}
	return nil
}
