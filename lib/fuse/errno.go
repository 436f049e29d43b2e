// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"errors"
	"syscall"

	"github.com/bureau-foundation/tananfs/lib/fs"
	"github.com/bureau-foundation/tananfs/lib/layout"
)

// errnoFrom maps the core's error kinds onto the errno values the
// kernel expects. Unknown errors surface as EIO.
func errnoFrom(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, fs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, fs.ErrExists):
		return syscall.EEXIST
	case errors.Is(err, fs.ErrNameTooLong):
		return syscall.ENAMETOOLONG
	case errors.Is(err, fs.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, fs.ErrOutOfSpace):
		return syscall.ENOSPC
	case errors.Is(err, fs.ErrOutOfRange):
		return syscall.ERANGE
	case errors.Is(err, fs.ErrNotDirectory):
		return syscall.ENOTDIR
	case errors.Is(err, fs.ErrIsDirectory):
		return syscall.EISDIR
	case errors.Is(err, layout.ErrInvalidBlockSize):
		return syscall.EINVAL
	case errors.Is(err, layout.ErrOutOfBounds):
		return syscall.ENOENT
	default:
		return syscall.EIO
	}
}
