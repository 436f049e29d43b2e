// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockdev

import "golang.org/x/sys/unix"

// blockDeviceSize returns the byte length of a raw block device:
// block count times block size via the DKIOCGETBLOCKCOUNT and
// DKIOCGETBLOCKSIZE ioctls.
func blockDeviceSize(fd int) (int64, error) {
	count, err := unix.IoctlGetInt(fd, unix.DKIOCGETBLOCKCOUNT)
	if err != nil {
		return 0, err
	}
	size, err := unix.IoctlGetInt(fd, unix.DKIOCGETBLOCKSIZE)
	if err != nil {
		return 0, err
	}
	return int64(count) * int64(size), nil
}

// sectorSize returns the logical sector size of a raw block device.
func sectorSize(fd int) (uint32, error) {
	size, err := unix.IoctlGetInt(fd, unix.DKIOCGETBLOCKSIZE)
	if err != nil {
		return 0, err
	}
	return uint32(size), nil
}
