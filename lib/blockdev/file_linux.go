// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockdev

import "golang.org/x/sys/unix"

// blockDeviceSize returns the byte length of a raw block device.
func blockDeviceSize(fd int) (int64, error) {
	size, err := unix.IoctlGetInt(fd, unix.BLKGETSIZE64)
	if err != nil {
		return 0, err
	}
	return int64(size), nil
}

// sectorSize returns the logical sector size of a raw block device.
func sectorSize(fd int) (uint32, error) {
	size, err := unix.IoctlGetInt(fd, unix.BLKSSZGET)
	if err != nil {
		return 0, err
	}
	return uint32(size), nil
}
