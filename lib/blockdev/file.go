// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package blockdev

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FileDevice backs a volume with a regular file or a raw block
// device. All I/O goes through pread/pwrite so concurrent offsets
// never race on a shared file position.
//
// FileDevice serializes nothing itself; the filesystem above it holds
// a single mutex across every operation.
type FileDevice struct {
	path string
	fd   int
	size int64
}

// OpenFile opens the file or block device at path for read-write
// access and determines its length. For a block device the length
// comes from the BLKGETSIZE64 ioctl on Linux and from
// DKIOCGETBLOCKCOUNT times DKIOCGETBLOCKSIZE on Darwin; for a regular
// file, from fstat.
func OpenFile(path string) (*FileDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening device %s: %w", path, err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stating device %s: %w", path, err)
	}

	size := stat.Size
	if stat.Mode&unix.S_IFMT == unix.S_IFBLK {
		size, err = blockDeviceSize(fd)
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("sizing block device %s: %w", path, err)
		}
	}

	return &FileDevice{path: path, fd: fd, size: size}, nil
}

// CreateFile creates (or truncates) a regular file of the given size
// and opens it as a device. Used by mkfs when formatting into a file.
func CreateFile(path string, size int64) (*FileDevice, error) {
	if size <= 0 {
		return nil, fmt.Errorf("device size must be positive, got %d", size)
	}

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating device %s: %w", path, err)
	}
	if err := unix.Ftruncate(fd, size); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("truncating device %s to %d bytes: %w", path, size, err)
	}

	return &FileDevice{path: path, fd: fd, size: size}, nil
}

// SectorSize reports the logical sector size of the underlying
// storage. Regular files report 512; raw block devices are probed
// with the BLKSSZGET ioctl on Linux.
func (d *FileDevice) SectorSize() (uint32, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(d.fd, &stat); err != nil {
		return 0, fmt.Errorf("stating device %s: %w", d.path, err)
	}
	if stat.Mode&unix.S_IFMT != unix.S_IFBLK {
		return 512, nil
	}
	return sectorSize(d.fd)
}

// ReadAt fills p starting at byte offset off, looping over short
// preads until p is full.
func (d *FileDevice) ReadAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > d.size {
		return fmt.Errorf("read at offset %d with length %d exceeds device size %d",
			off, len(p), d.size)
	}

	for len(p) > 0 {
		n, err := unix.Pread(d.fd, p, off)
		if err != nil {
			return fmt.Errorf("pread %s at offset %d: %w", d.path, off, err)
		}
		if n == 0 {
			return fmt.Errorf("pread %s at offset %d: unexpected end of device", d.path, off)
		}
		p = p[n:]
		off += int64(n)
	}
	return nil
}

// WriteAt writes p starting at byte offset off, looping over short
// pwrites until p is drained.
func (d *FileDevice) WriteAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > d.size {
		return fmt.Errorf("write at offset %d with length %d exceeds device size %d",
			off, len(p), d.size)
	}

	for len(p) > 0 {
		n, err := unix.Pwrite(d.fd, p, off)
		if err != nil {
			return fmt.Errorf("pwrite %s at offset %d: %w", d.path, off, err)
		}
		p = p[n:]
		off += int64(n)
	}
	return nil
}

// Size returns the device length in bytes.
func (d *FileDevice) Size() int64 { return d.size }

// Sync flushes pending writes to stable storage.
func (d *FileDevice) Sync() error {
	if err := unix.Fsync(d.fd); err != nil {
		return fmt.Errorf("fsync %s: %w", d.path, err)
	}
	return nil
}

// Close closes the file descriptor.
func (d *FileDevice) Close() error {
	if err := unix.Close(d.fd); err != nil {
		return fmt.Errorf("closing %s: %w", d.path, err)
	}
	d.fd = -1
	return nil
}
