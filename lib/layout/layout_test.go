// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package layout

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/tananfs/lib/blockdev"
)

func TestSuperblockEncodeLayout(t *testing.T) {
	sb := &Superblock{
		InodeCount: 4096,
		FreeInodes: 4000,
		BlockCount: 31732,
		FreeBlocks: 30000,
		BlockSize:  512,
	}
	raw := sb.Encode()
	if len(raw) != SuperblockLen {
		t.Fatalf("encoded length = %d, want %d", len(raw), SuperblockLen)
	}
	if got := binary.LittleEndian.Uint64(raw[0:]); got != 4096 {
		t.Errorf("inode count at offset 0 = %d, want 4096", got)
	}
	if got := binary.LittleEndian.Uint64(raw[8:]); got != 4000 {
		t.Errorf("free inodes at offset 8 = %d, want 4000", got)
	}
	if got := binary.LittleEndian.Uint64(raw[16:]); got != 31732 {
		t.Errorf("block count at offset 16 = %d, want 31732", got)
	}
	if got := binary.LittleEndian.Uint64(raw[24:]); got != 30000 {
		t.Errorf("free blocks at offset 24 = %d, want 30000", got)
	}
	if got := binary.LittleEndian.Uint32(raw[32:]); got != 512 {
		t.Errorf("block size at offset 32 = %d, want 512", got)
	}
	if got := binary.LittleEndian.Uint64(raw[56:]); got != Magic {
		t.Errorf("magic at offset 56 = %#x, want %#x", got, Magic)
	}
}

func TestNewSuperblockSixteenMiB(t *testing.T) {
	// 16 MiB at block size 512: 4096 inodes, and the block count
	// must account for boot sector, superblock, bitmaps, and the
	// inode region.
	sb, err := NewSuperblock(16*1024*1024, 512)
	if err != nil {
		t.Fatal(err)
	}
	if sb.InodeCount != 4096 {
		t.Errorf("InodeCount = %d, want 4096", sb.InodeCount)
	}
	if sb.FreeInodes != sb.InodeCount || sb.FreeBlocks != sb.BlockCount {
		t.Errorf("fresh superblock not fully free: %+v", sb)
	}
	if sb.BlockRegionEnd() > 16*1024*1024 {
		t.Errorf("block region end %d exceeds device", sb.BlockRegionEnd())
	}
	// The region after the last block must be smaller than one more
	// block, or the fixpoint left space on the table.
	if slack := 16*1024*1024 - sb.BlockRegionEnd(); slack >= 512 {
		t.Errorf("%d bytes of unused space after block region", slack)
	}
}

func TestSuperblockRegions(t *testing.T) {
	for _, blockSize := range BlockSizes {
		sb, err := NewSuperblock(100_000_000, blockSize)
		if err != nil {
			t.Fatalf("block size %d: %v", blockSize, err)
		}
		if sb.BitmapRegionStart() != uint64(blockSize)+SuperblockLen {
			t.Errorf("block size %d: bitmap region at %d", blockSize, sb.BitmapRegionStart())
		}
		for name, position := range map[string]uint64{
			"inode region": sb.InodeRegionStart(),
			"block region": sb.BlockRegionStart(),
		} {
			if position%uint64(blockSize) != 0 {
				t.Errorf("block size %d: %s at %d not block-aligned", blockSize, name, position)
			}
		}
		if sb.InodeRegionStart() < sb.BlockBitmapStart()+sb.BlockBitmapLen() {
			t.Errorf("block size %d: inode region overlaps bitmaps", blockSize)
		}
		if sb.BlockRegionStart() < sb.InodeRegionStart()+sb.InodeCount*InodeLen {
			t.Errorf("block size %d: block region overlaps inode region", blockSize)
		}
	}
}

func TestNewSuperblockRejectsBadSizes(t *testing.T) {
	for _, blockSize := range []uint32{0, 256, 513, 8192} {
		if _, err := NewSuperblock(1<<24, blockSize); !errors.Is(err, ErrInvalidBlockSize) {
			t.Errorf("block size %d: got %v, want ErrInvalidBlockSize", blockSize, err)
		}
	}
	if _, err := NewSuperblock(2048, 512); !errors.Is(err, ErrDeviceTooSmall) {
		t.Errorf("tiny device: got %v, want ErrDeviceTooSmall", err)
	}
}

func TestDetect(t *testing.T) {
	device := blockdev.NewMem(1 << 24)
	if _, err := Detect(device); !errors.Is(err, ErrNotFormatted) {
		t.Fatalf("blank device: got %v, want ErrNotFormatted", err)
	}

	sb, err := NewSuperblock(device.Size(), 1024)
	if err != nil {
		t.Fatal(err)
	}
	if err := sb.Flush(device); err != nil {
		t.Fatal(err)
	}

	detected, err := Detect(device)
	if err != nil {
		t.Fatal(err)
	}
	if detected.BlockSize != 1024 || detected.InodeCount != sb.InodeCount {
		t.Errorf("detected %+v, want %+v", detected, sb)
	}
}

func TestDetectPrefersLargerBlockSize(t *testing.T) {
	// A reformat at a larger block size can leave a stale magic at
	// the smaller offset; detection must resolve to the larger.
	device := blockdev.NewMem(1 << 24)
	small, err := NewSuperblock(device.Size(), 512)
	if err != nil {
		t.Fatal(err)
	}
	if err := small.Flush(device); err != nil {
		t.Fatal(err)
	}
	large, err := NewSuperblock(device.Size(), 4096)
	if err != nil {
		t.Fatal(err)
	}
	if err := large.Flush(device); err != nil {
		t.Fatal(err)
	}

	detected, err := Detect(device)
	if err != nil {
		t.Fatal(err)
	}
	if detected.BlockSize != 4096 {
		t.Errorf("detected block size %d, want 4096", detected.BlockSize)
	}
}

func TestInodeRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	inode := NewInode(42, TypeDirectory, 0o750, 1000, 1000, now)
	inode.Size = 12345
	inode.BlockCount = 3
	inode.Metadata = [MetadataSlots]uint64{7, 2, 4, 0, 0}
	inode.FirstBlock = 10
	inode.LastBlock = 30

	raw := inode.Encode()
	if len(raw) != InodeLen {
		t.Fatalf("encoded length = %d, want %d", len(raw), InodeLen)
	}
	if got := binary.LittleEndian.Uint64(raw[0:]); got != 42 {
		t.Errorf("ordinal at offset 0 = %d", got)
	}
	if got := binary.LittleEndian.Uint16(raw[8:]); got != 0o750 {
		t.Errorf("mode at offset 8 = %#o", got)
	}
	if raw[10] != uint8(TypeDirectory) {
		t.Errorf("type at offset 10 = %d", raw[10])
	}
	if got := binary.LittleEndian.Uint64(raw[112:]); got != 10 {
		t.Errorf("first block at offset 112 = %d", got)
	}
	if got := binary.LittleEndian.Uint64(raw[120:]); got != 30 {
		t.Errorf("last block at offset 120 = %d", got)
	}

	decoded, err := DecodeInode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded.Encode(), raw) {
		t.Error("encode/decode/encode is not byte-identical")
	}
	if decoded.Type != TypeDirectory || decoded.Size != 12345 || decoded.Metadata[SlotParent] != 7 {
		t.Errorf("decoded fields wrong: %+v", decoded)
	}
	if decoded.Dtime != DtimeLive {
		t.Errorf("Dtime = %#x, want DtimeLive", decoded.Dtime)
	}
}

func TestInodeReservedBytesPreserved(t *testing.T) {
	raw := make([]byte, InodeLen)
	for i := range raw {
		raw[i] = byte(i)
	}
	decoded, err := DecodeInode(raw)
	if err != nil {
		t.Fatal(err)
	}
	reencoded := decoded.Encode()
	if !bytes.Equal(reencoded[107:112], raw[107:112]) {
		t.Errorf("reserved bytes not preserved: got % x, want % x", reencoded[107:112], raw[107:112])
	}
}

func TestChainPointer(t *testing.T) {
	block := make([]byte, 512)
	SetNextPointer(block, NIL)
	if got := NextPointer(block); got != NIL {
		t.Errorf("next pointer = %#x, want NIL", got)
	}
	SetNextPointer(block, 99)
	if got := NextPointer(block); got != 99 {
		t.Errorf("next pointer = %d, want 99", got)
	}
	if PayloadLen(512) != 504 {
		t.Errorf("PayloadLen(512) = %d, want 504", PayloadLen(512))
	}
}
