// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"fmt"
	"io"

	"github.com/bureau-foundation/tananfs/lib/layout"
)

// Read returns up to length bytes of the file starting at offset.
// The result is shorter than length when the file ends first; an
// offset at or past the end of the file is out of range.
func (fs *Filesystem) Read(ino uint64, offset uint64, length uint64) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode, err := fs.loadInode(ino)
	if err != nil {
		return nil, err
	}
	if inode.Type != layout.TypeRegularFile {
		return nil, fmt.Errorf("%w: inode %d", ErrIsDirectory, ino)
	}
	if length == 0 {
		return nil, nil
	}
	if offset >= inode.Size {
		return nil, fmt.Errorf("%w: offset %d in file of %d bytes", ErrOutOfRange, offset, inode.Size)
	}
	if offset+length > inode.Size {
		length = inode.Size - offset
	}

	file := loadByteFile(fs, inode)
	if _, err := file.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, err
	}
	buffer := make([]byte, length)
	if err := file.Read(buffer); err != nil {
		return nil, err
	}

	inode.TouchAccess(fs.clk.Now())
	if err := fs.cache.PutInode(inode); err != nil {
		return nil, err
	}
	if err := fs.maintain(); err != nil {
		return nil, err
	}
	return buffer, nil
}

// Write stores data into the file at offset, extending it as needed,
// and returns the number of bytes written. A failed extension leaves
// the file exactly as it was.
func (fs *Filesystem) Write(ino uint64, offset uint64, data []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode, err := fs.loadInode(ino)
	if err != nil {
		return 0, err
	}
	if inode.Type != layout.TypeRegularFile {
		return 0, fmt.Errorf("%w: inode %d", ErrIsDirectory, ino)
	}

	file := loadByteFile(fs, inode)
	originalSize := inode.Size

	// A write past the end zero-fills the gap first.
	if offset > inode.Size {
		if err := file.Grow(offset); err != nil {
			return 0, err
		}
	}
	if _, err := file.Seek(int64(offset), io.SeekStart); err != nil {
		return 0, err
	}
	if err := file.Write(data); err != nil {
		if offset > originalSize {
			if shrinkErr := file.Shrink(originalSize); shrinkErr != nil {
				fs.logger.Error("failed to undo zero-fill after write error", "inode", ino, "error", shrinkErr)
			}
		}
		return 0, err
	}

	if err := fs.maintain(); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Fallocate extends the file to newSize with zeros. It never shrinks;
// a newSize at or below the current size is a no-op.
func (fs *Filesystem) Fallocate(ino uint64, newSize uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode, err := fs.loadInode(ino)
	if err != nil {
		return err
	}
	if inode.Type != layout.TypeRegularFile {
		return fmt.Errorf("%w: inode %d", ErrIsDirectory, ino)
	}
	if newSize <= inode.Size {
		return nil
	}

	file := loadByteFile(fs, inode)
	if err := file.Grow(newSize); err != nil {
		return err
	}
	return fs.maintain()
}
