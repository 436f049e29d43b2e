// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/bureau-foundation/tananfs/lib/layout"
)

// newTestFile creates an empty regular file in the root directory and
// returns its byte-file view.
func newTestFile(t *testing.T, fsys *Filesystem, name string) *ByteFile {
	t.Helper()
	ordinal, err := fsys.Mknod(RootInode, name, 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Mknod failed: %v", err)
	}
	inode, err := fsys.loadInode(ordinal)
	if err != nil {
		t.Fatal(err)
	}
	return loadByteFile(fsys, inode)
}

func TestByteFileSeek(t *testing.T) {
	fsys, _, _ := newTestFS(t, 1<<22, 512)
	file := newTestFile(t, fsys, "seek.bin")
	if err := file.Grow(10_000); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		offset int64
		whence int
		want   uint64
	}{
		{1000, io.SeekStart, 1000},
		{111, io.SeekCurrent, 1111},
		{-50, io.SeekCurrent, 1061},
		{-999, io.SeekEnd, 9001},
		{0, io.SeekEnd, 10_000},
	}
	for _, c := range cases {
		got, err := file.Seek(c.offset, c.whence)
		if err != nil {
			t.Fatalf("Seek(%d, %d) failed: %v", c.offset, c.whence, err)
		}
		if got != c.want {
			t.Errorf("Seek(%d, %d) = %d, want %d", c.offset, c.whence, got, c.want)
		}
	}

	for _, c := range []struct {
		offset int64
		whence int
	}{
		{11_000, io.SeekStart},
		{-1, io.SeekStart},
		{1, io.SeekEnd},
		{1_000, io.SeekCurrent}, // cursor is at 10_000
	} {
		if _, err := file.Seek(c.offset, c.whence); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Seek(%d, %d): got %v, want ErrOutOfRange", c.offset, c.whence, err)
		}
	}
}

func TestByteFileWriteReadAcrossChain(t *testing.T) {
	fsys, _, _ := newTestFS(t, 1<<23, 512)
	file := newTestFile(t, fsys, "data.bin")

	// Spans many 504-byte payloads.
	data := make([]byte, 100_000)
	for i := range data {
		data[i] = byte(i / 504)
	}
	if err := file.Write(data); err != nil {
		t.Fatal(err)
	}
	if file.Size() != 100_000 {
		t.Fatalf("Size = %d, want 100000", file.Size())
	}

	readBack := make([]byte, len(data))
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if err := file.Read(readBack); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(readBack, data) {
		t.Fatal("read-back differs from written data")
	}

	// Random access inside the chain.
	middle := make([]byte, 1000)
	if _, err := file.Seek(50_017, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if err := file.Read(middle); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(middle, data[50_017:51_017]) {
		t.Error("random-access read differs")
	}

	requireClean(t, fsys)
}

func TestByteFileMidFileOverwrite(t *testing.T) {
	fsys, _, _ := newTestFS(t, 1<<22, 512)
	file := newTestFile(t, fsys, "overwrite.bin")

	if err := file.Write(bytes.Repeat([]byte{0xAA}, 3000)); err != nil {
		t.Fatal(err)
	}
	before := fsys.Statfs().FreeBlocks

	// Overwriting inside the file must reuse the existing blocks.
	if _, err := file.Seek(700, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	patch := bytes.Repeat([]byte{0xBB}, 1200)
	if err := file.Write(patch); err != nil {
		t.Fatal(err)
	}
	if fsys.Statfs().FreeBlocks != before {
		t.Error("mid-file overwrite changed block allocation")
	}
	if file.Size() != 3000 {
		t.Errorf("Size = %d, want 3000", file.Size())
	}

	readBack := make([]byte, 3000)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if err := file.Read(readBack); err != nil {
		t.Fatal(err)
	}
	for i, b := range readBack {
		want := byte(0xAA)
		if i >= 700 && i < 1900 {
			want = 0xBB
		}
		if b != want {
			t.Fatalf("byte %d = %#x, want %#x", i, b, want)
		}
	}
}

func TestByteFileShortRead(t *testing.T) {
	fsys, _, _ := newTestFS(t, 1<<22, 512)
	file := newTestFile(t, fsys, "short.bin")
	if err := file.Write([]byte("0123456789")); err != nil {
		t.Fatal(err)
	}

	if _, err := file.Seek(5, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	buffer := make([]byte, 6)
	if err := file.Read(buffer); !errors.Is(err, ErrShortRead) {
		t.Errorf("read past end: got %v, want ErrShortRead", err)
	}
	// The failed read must not have moved the cursor.
	if file.Tell() != 5 {
		t.Errorf("cursor moved to %d after failed read", file.Tell())
	}
}

func TestByteFileGrowShrinkAccounting(t *testing.T) {
	fsys, _, _ := newTestFS(t, 1<<22, 512)
	baseline := fsys.Statfs().FreeBlocks
	file := newTestFile(t, fsys, "resize.bin")

	// Payload is 504 bytes per block at block size 512.
	steps := []struct {
		op     string
		size   uint64
		blocks uint64
	}{
		{"grow", 1024, 3},
		{"grow", 90_000, 179},
		{"shrink", 80_000, 159},
		{"shrink", 2000, 4},
		{"shrink", 1800, 4},
		{"shrink", 100, 1},
		{"shrink", 1, 1},
		{"shrink", 0, 0},
	}
	for _, step := range steps {
		var err error
		if step.op == "grow" {
			err = file.Grow(step.size)
		} else {
			err = file.Shrink(step.size)
		}
		if err != nil {
			t.Fatalf("%s to %d failed: %v", step.op, step.size, err)
		}
		if file.inode.BlockCount != step.blocks {
			t.Errorf("%s to %d: block count = %d, want %d",
				step.op, step.size, file.inode.BlockCount, step.blocks)
		}
		if file.Size() != step.size {
			t.Errorf("%s to %d: size = %d", step.op, step.size, file.Size())
		}
	}

	if free := fsys.Statfs().FreeBlocks; free != baseline {
		t.Errorf("free blocks = %d after shrink to zero, want %d", free, baseline)
	}
	if file.inode.FirstBlock != layout.NIL || file.inode.LastBlock != layout.NIL {
		t.Error("chain pointers not NIL after shrink to zero")
	}
	requireClean(t, fsys)
}

func TestByteFileGrowReadsZero(t *testing.T) {
	fsys, _, _ := newTestFS(t, 1<<22, 512)
	file := newTestFile(t, fsys, "zeros.bin")

	if err := file.Write(bytes.Repeat([]byte{0x77}, 50)); err != nil {
		t.Fatal(err)
	}
	if err := file.Grow(2000); err != nil {
		t.Fatal(err)
	}

	readBack := make([]byte, 2000)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if err := file.Read(readBack); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		if readBack[i] != 0x77 {
			t.Fatalf("byte %d = %#x, want 0x77", i, readBack[i])
		}
	}
	for i := 50; i < 2000; i++ {
		if readBack[i] != 0 {
			t.Fatalf("grown byte %d = %#x, want 0", i, readBack[i])
		}
	}
}

func TestWriteOutOfSpaceRollsBack(t *testing.T) {
	// A volume this small runs out of blocks long before 10 MiB.
	fsys, _, _ := newTestFS(t, 1<<20, 512)
	ordinal, err := fsys.Mknod(RootInode, "big", 0o644, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	statsBefore := fsys.Statfs()
	_, err = fsys.Write(ordinal, 0, make([]byte, 10*1024*1024))
	if !errors.Is(err, ErrOutOfSpace) {
		t.Fatalf("oversized write: got %v, want ErrOutOfSpace", err)
	}

	inode, err := fsys.Getattr(ordinal)
	if err != nil {
		t.Fatal(err)
	}
	if inode.Size != 0 {
		t.Errorf("size after failed write = %d, want 0", inode.Size)
	}
	if inode.BlockCount != 0 || inode.FirstBlock != layout.NIL {
		t.Errorf("chain not rolled back: count=%d first=%d", inode.BlockCount, inode.FirstBlock)
	}

	statsAfter := fsys.Statfs()
	if statsAfter.FreeBlocks != statsBefore.FreeBlocks {
		t.Errorf("free blocks %d, want %d", statsAfter.FreeBlocks, statsBefore.FreeBlocks)
	}
	if statsAfter.FreeInodes != statsBefore.FreeInodes {
		t.Errorf("free inodes %d, want %d", statsAfter.FreeInodes, statsBefore.FreeInodes)
	}
	requireClean(t, fsys)
}

func TestWriteOutOfSpaceMidFilePreservesContent(t *testing.T) {
	fsys, _, _ := newTestFS(t, 1<<20, 512)
	ordinal, err := fsys.Mknod(RootInode, "partial", 0o644, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fsys.Write(ordinal, 0, bytes.Repeat([]byte{0x5A}, 1000)); err != nil {
		t.Fatal(err)
	}

	// Extending from inside the file must fail and leave both the
	// size and the overlapped bytes alone.
	_, err = fsys.Write(ordinal, 500, make([]byte, 10*1024*1024))
	if !errors.Is(err, ErrOutOfSpace) {
		t.Fatalf("got %v, want ErrOutOfSpace", err)
	}
	inode, err := fsys.Getattr(ordinal)
	if err != nil {
		t.Fatal(err)
	}
	if inode.Size != 1000 {
		t.Errorf("size = %d after failed extension, want 1000", inode.Size)
	}
	content, err := fsys.Read(ordinal, 0, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(content, bytes.Repeat([]byte{0x5A}, 1000)) {
		t.Error("content changed by failed extension")
	}
	requireClean(t, fsys)
}
