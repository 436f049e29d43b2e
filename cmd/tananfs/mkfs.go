// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/tananfs/lib/blockdev"
	"github.com/bureau-foundation/tananfs/lib/config"
	"github.com/bureau-foundation/tananfs/lib/fs"
	"github.com/bureau-foundation/tananfs/lib/layout"
)

func runMkfs(args []string) error {
	flags := pflag.NewFlagSet("mkfs", pflag.ContinueOnError)
	devicePath := flags.String("device", "", "device or image file to format (required)")
	sizeSpec := flags.String("size", "", "create the image file at this size (e.g. 64M); omit to format an existing device")
	blockSize := flags.Uint32("block-size", 0, "block size in bytes (512, 1024, 2048, or 4096; default: the device's sector size, else 512)")
	configPath := flags.String("config", "", "YAML options file")
	rootUID := flags.Uint32("root-uid", 0, "owner uid of the root directory")
	rootGID := flags.Uint32("root-gid", 0, "owner gid of the root directory")
	verbose := flags.Bool("verbose", false, "debug logging")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *devicePath == "" {
		return fmt.Errorf("--device is required")
	}

	options, err := loadOptions(*configPath)
	if err != nil {
		return err
	}
	if flags.Changed("block-size") {
		options.BlockSize = *blockSize
	}
	if flags.Changed("root-uid") {
		options.RootUID = *rootUID
	}
	if flags.Changed("root-gid") {
		options.RootGID = *rootGID
	}
	options.Logger = newLogger(*verbose)

	var device *blockdev.FileDevice
	if *sizeSpec != "" {
		size, err := parseSize(*sizeSpec)
		if err != nil {
			return err
		}
		device, err = blockdev.CreateFile(*devicePath, size)
		if err != nil {
			return err
		}
	} else {
		device, err = blockdev.OpenFile(*devicePath)
		if err != nil {
			return err
		}
	}

	// Without an explicit block size, follow the device's own sector
	// size when it is in the valid range.
	if options.BlockSize == 0 {
		if sector, err := device.SectorSize(); err == nil && layout.ValidBlockSize(sector) {
			options.BlockSize = sector
		}
	}

	fsys, err := fs.Format(device, options)
	if err != nil {
		device.Close()
		return err
	}
	stats := fsys.Statfs()
	if err := fsys.Unmount(); err != nil {
		return err
	}

	fmt.Printf("formatted %s: block size %d, %d inodes, %d blocks\n",
		*devicePath, stats.BlockSize, stats.TotalInodes, stats.TotalBlocks)
	return nil
}

// loadOptions reads the YAML options file, or returns defaults when
// no file is given.
func loadOptions(path string) (fs.Options, error) {
	if path == "" {
		return config.Default().FilesystemOptions(), nil
	}
	loaded, err := config.Load(path)
	if err != nil {
		return fs.Options{}, err
	}
	return loaded.FilesystemOptions(), nil
}

// parseSize understands plain byte counts and K/M/G suffixes.
func parseSize(spec string) (int64, error) {
	multiplier := int64(1)
	trimmed := strings.TrimSpace(spec)
	switch {
	case strings.HasSuffix(trimmed, "K"):
		multiplier = 1 << 10
		trimmed = strings.TrimSuffix(trimmed, "K")
	case strings.HasSuffix(trimmed, "M"):
		multiplier = 1 << 20
		trimmed = strings.TrimSuffix(trimmed, "M")
	case strings.HasSuffix(trimmed, "G"):
		multiplier = 1 << 30
		trimmed = strings.TrimSuffix(trimmed, "G")
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("bad size %q", spec)
	}
	return value * multiplier, nil
}
