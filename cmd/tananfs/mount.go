// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/tananfs/lib/blockdev"
	"github.com/bureau-foundation/tananfs/lib/fs"
	"github.com/bureau-foundation/tananfs/lib/fuse"
)

func runMount(args []string) error {
	flags := pflag.NewFlagSet("mount", pflag.ContinueOnError)
	devicePath := flags.String("device", "", "device or image file holding the volume (required)")
	mountpoint := flags.String("mountpoint", "", "directory to mount at (required)")
	configPath := flags.String("config", "", "YAML options file")
	allowOther := flags.Bool("allow-other", false, "permit other users to access the mount")
	verbose := flags.Bool("verbose", false, "debug logging")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *devicePath == "" {
		return fmt.Errorf("--device is required")
	}
	if *mountpoint == "" {
		return fmt.Errorf("--mountpoint is required")
	}

	options, err := loadOptions(*configPath)
	if err != nil {
		return err
	}
	logger := newLogger(*verbose)
	options.Logger = logger

	device, err := blockdev.OpenFile(*devicePath)
	if err != nil {
		return err
	}
	fsys, err := fs.Mount(device, options)
	if err != nil {
		device.Close()
		return err
	}

	server, err := fuse.Mount(fuse.Options{
		Mountpoint:    *mountpoint,
		Filesystem:    fsys,
		FlushInterval: options.FlushInterval,
		AllowOther:    *allowOther,
		Logger:        logger,
	})
	if err != nil {
		fsys.Unmount()
		return err
	}

	// Unmount cleanly on SIGINT/SIGTERM; an external umount ends
	// Wait on its own.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		logger.Info("signal received, unmounting")
		if err := server.Unmount(); err != nil {
			logger.Error("unmount failed", "error", err)
		}
	}()

	server.Wait()
	// Covers the external-umount path, where no signal arrives but
	// the kernel connection is already gone.
	return server.Unmount()
}
