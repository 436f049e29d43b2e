// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/bureau-foundation/tananfs/lib/fs"
	"github.com/bureau-foundation/tananfs/lib/layout"
)

func TestErrnoMapping(t *testing.T) {
	cases := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{fs.ErrNotFound, syscall.ENOENT},
		{fs.ErrExists, syscall.EEXIST},
		{fs.ErrNameTooLong, syscall.ENAMETOOLONG},
		{fs.ErrNotEmpty, syscall.ENOTEMPTY},
		{fs.ErrOutOfSpace, syscall.ENOSPC},
		{fs.ErrOutOfRange, syscall.ERANGE},
		{fs.ErrNotDirectory, syscall.ENOTDIR},
		{fs.ErrIsDirectory, syscall.EISDIR},
		{layout.ErrInvalidBlockSize, syscall.EINVAL},
		{fs.ErrCorruptChain, syscall.EIO},
		{errors.New("anything else"), syscall.EIO},
	}
	for _, c := range cases {
		if got := errnoFrom(c.err); got != c.want {
			t.Errorf("errnoFrom(%v) = %v, want %v", c.err, got, c.want)
		}
	}

	// Wrapped errors must map the same as their kinds.
	wrapped := fmt.Errorf("mkdir: %w", fs.ErrExists)
	if got := errnoFrom(wrapped); got != syscall.EEXIST {
		t.Errorf("wrapped ErrExists = %v, want EEXIST", got)
	}
}
