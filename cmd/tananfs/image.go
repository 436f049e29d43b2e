// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/tananfs/lib/blockdev"
	"github.com/bureau-foundation/tananfs/lib/image"
)

func runImage(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("image needs a subcommand: save or restore")
	}
	switch args[0] {
	case "save":
		return runImageSave(args[1:])
	case "restore":
		return runImageRestore(args[1:])
	default:
		return fmt.Errorf("unknown image subcommand %q", args[0])
	}
}

func runImageSave(args []string) error {
	flags := pflag.NewFlagSet("image save", pflag.ContinueOnError)
	devicePath := flags.String("device", "", "device or image file holding the volume (required)")
	outputPath := flags.String("output", "", "snapshot file to write (required)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *devicePath == "" || *outputPath == "" {
		return fmt.Errorf("--device and --output are required")
	}

	device, err := blockdev.OpenFile(*devicePath)
	if err != nil {
		return err
	}
	defer device.Close()

	output, err := os.Create(*outputPath)
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	defer output.Close()

	manifest, err := image.Save(device, output, time.Now())
	if err != nil {
		os.Remove(*outputPath)
		return err
	}
	if err := output.Close(); err != nil {
		return fmt.Errorf("finishing snapshot file: %w", err)
	}

	fmt.Printf("saved %d-byte image of %s (block size %d, %d blocks) to %s\n",
		manifest.ImageLen, *devicePath, manifest.BlockSize, manifest.BlockCount, *outputPath)
	return nil
}

func runImageRestore(args []string) error {
	flags := pflag.NewFlagSet("image restore", pflag.ContinueOnError)
	devicePath := flags.String("device", "", "device or image file to restore onto (required)")
	inputPath := flags.String("input", "", "snapshot file to read (required)")
	create := flags.Bool("create", false, "create the target image file sized to the snapshot")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *devicePath == "" || *inputPath == "" {
		return fmt.Errorf("--device and --input are required")
	}

	input, err := os.Open(*inputPath)
	if err != nil {
		return fmt.Errorf("opening snapshot file: %w", err)
	}
	defer input.Close()

	var device blockdev.Device
	if *create {
		// Size the target from the manifest, then rewind for the
		// real restore pass.
		manifest, err := image.ReadManifest(input)
		if err != nil {
			return err
		}
		if _, err := input.Seek(0, 0); err != nil {
			return err
		}
		device, err = blockdev.CreateFile(*devicePath, int64(manifest.ImageLen))
		if err != nil {
			return err
		}
	} else {
		device, err = blockdev.OpenFile(*devicePath)
		if err != nil {
			return err
		}
	}
	defer device.Close()

	manifest, err := image.Restore(input, device)
	if err != nil {
		return err
	}
	if err := device.Sync(); err != nil {
		return err
	}

	fmt.Printf("restored %d-byte image (captured %s) onto %s\n",
		manifest.ImageLen, time.Unix(manifest.CreatedAt, 0).UTC().Format(time.RFC3339), *devicePath)
	return nil
}
