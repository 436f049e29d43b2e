// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for TananFS packages.
//
// [DeviceFile] creates a zero-filled backing file sized for a small
// test volume; [Volume] formats an in-memory volume ready for
// operations. Helpers call t.Fatalf on failure rather than returning
// errors, since test setup failures are not recoverable.
//
// This package has no dependencies on the packages it serves tests
// for beyond lib/fs and lib/blockdev; packages below those in the
// dependency order keep their own local helpers.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/tananfs/lib/blockdev"
	"github.com/bureau-foundation/tananfs/lib/fs"
)

// DeviceFile creates a zero-filled file of the given size in a
// per-test temp directory and returns its path. The file is removed
// when the test completes.
func DeviceFile(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.img")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("creating device file: %v", err)
	}
	return path
}

// Volume formats a fresh in-memory volume and returns it together
// with its backing device.
func Volume(t *testing.T, size int64, blockSize uint32) (*fs.Filesystem, *blockdev.MemDevice) {
	t.Helper()
	device := blockdev.NewMem(size)
	fsys, err := fs.Format(device, fs.Options{BlockSize: blockSize})
	if err != nil {
		t.Fatalf("formatting test volume: %v", err)
	}
	return fsys, device
}
