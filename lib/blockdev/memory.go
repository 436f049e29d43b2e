// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockdev

import "fmt"

// MemDevice is an in-memory Device. Tests use it to exercise the full
// stack without touching the host filesystem.
type MemDevice struct {
	data []byte
}

// NewMem returns a zero-filled in-memory device of the given size.
func NewMem(size int64) *MemDevice {
	return &MemDevice{data: make([]byte, size)}
}

// NewMemFrom wraps an existing buffer as a device. The buffer is used
// directly, not copied.
func NewMemFrom(data []byte) *MemDevice {
	return &MemDevice{data: data}
}

// Bytes exposes the backing buffer, for tests that assert on raw
// device contents.
func (d *MemDevice) Bytes() []byte { return d.data }

// ReadAt fills p from the buffer starting at off.
func (d *MemDevice) ReadAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return fmt.Errorf("read at offset %d with length %d exceeds device size %d",
			off, len(p), len(d.data))
	}
	copy(p, d.data[off:])
	return nil
}

// WriteAt writes p to the buffer starting at off.
func (d *MemDevice) WriteAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return fmt.Errorf("write at offset %d with length %d exceeds device size %d",
			off, len(p), len(d.data))
	}
	copy(d.data[off:], p)
	return nil
}

// Size returns the buffer length.
func (d *MemDevice) Size() int64 { return int64(len(d.data)) }

// Sync is a no-op for memory devices.
func (d *MemDevice) Sync() error { return nil }

// Close is a no-op for memory devices.
func (d *MemDevice) Close() error { return nil }
