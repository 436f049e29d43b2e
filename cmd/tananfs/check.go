// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/tananfs/lib/blockdev"
	"github.com/bureau-foundation/tananfs/lib/fs"
	"github.com/bureau-foundation/tananfs/lib/layout"
)

func runCheck(args []string) error {
	flags := pflag.NewFlagSet("check", pflag.ContinueOnError)
	devicePath := flags.String("device", "", "device or image file holding the volume (required)")
	verbose := flags.Bool("verbose", false, "debug logging")
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

	// Mount would format a blank device; an audit must never write
	// one.
	if _, err := layout.Detect(device); err != nil {
		return err
	}

	fsys, err := fs.Mount(device, fs.Options{Logger: newLogger(*verbose)})
	if err != nil {
		return err
	}
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
	return fmt.Errorf("%d invariant violations", len(findings))
}
