// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package layout

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bureau-foundation/tananfs/lib/bitmap"
	"github.com/bureau-foundation/tananfs/lib/blockdev"
)

// Magic is the TananFS signature, stored little-endian at byte 56 of
// the superblock. The bytes spell "!SFnanaT" on disk.
const Magic uint64 = 0x54616E616E465321

// SuperblockLen is the on-disk footprint of the superblock in bytes.
const SuperblockLen = 1024

// DataPerInode is the provisioning ratio used when formatting: one
// inode per this many bytes of device capacity.
const DataPerInode = 4096

// BlockSizes lists the valid block sizes, smallest first.
var BlockSizes = [...]uint32{512, 1024, 2048, 4096}

// Sentinel errors for volume detection and formatting.
var (
	// ErrNotFormatted means no candidate block size produced a
	// superblock with a valid magic.
	ErrNotFormatted = errors.New("layout: device holds no TananFS volume")

	// ErrInvalidBlockSize means the requested block size is not a
	// power of two in [512, 4096].
	ErrInvalidBlockSize = errors.New("layout: block size must be a power of two in [512, 4096]")

	// ErrOutOfBounds means an inode or block ordinal falls outside
	// its region.
	ErrOutOfBounds = errors.New("layout: ordinal out of range")

	// ErrDeviceTooSmall means the device cannot hold even a minimal
	// volume at the requested block size.
	ErrDeviceTooSmall = errors.New("layout: device too small")
)

// Superblock describes a volume: how many inodes and blocks it has,
// how many are free, and the block size everything is laid out in.
type Superblock struct {
	// InodeCount is the total number of inodes in the inode region.
	InodeCount uint64
	// FreeInodes counts inodes whose bitmap bit is clear.
	FreeInodes uint64
	// BlockCount is the total number of data blocks.
	BlockCount uint64
	// FreeBlocks counts blocks whose bitmap bit is clear.
	FreeBlocks uint64
	// BlockSize is the block size in bytes.
	BlockSize uint32
}

// Superblock field offsets within the 1024-byte record.
const (
	superOffInodeCount = 0
	superOffFreeInodes = 8
	superOffBlockCount = 16
	superOffFreeBlocks = 24
	superOffBlockSize  = 32
	superOffMagic      = 56
)

// ValidBlockSize reports whether size is a legal volume block size.
func ValidBlockSize(size uint32) bool {
	for _, candidate := range BlockSizes {
		if size == candidate {
			return true
		}
	}
	return false
}

// NewSuperblock computes the geometry for formatting a device of
// deviceSize bytes with the given block size. The inode count is the
// upper bound given the device size (one inode per 4 KiB); the block
// count is whatever remains after boot sector, superblock, bitmaps,
// and inode region, shrunk to a fixpoint since the block bitmap's
// size depends on the block count it covers.
func NewSuperblock(deviceSize int64, blockSize uint32) (*Superblock, error) {
	if !ValidBlockSize(blockSize) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBlockSize, blockSize)
	}

	inodeCount := uint64(deviceSize) / DataPerInode
	blockCount := uint64(deviceSize) / uint64(blockSize)
	for {
		sb := &Superblock{
			InodeCount: inodeCount,
			BlockCount: blockCount,
			BlockSize:  blockSize,
		}
		var fit uint64
		if start := sb.BlockRegionStart(); start < uint64(deviceSize) {
			fit = (uint64(deviceSize) - start) / uint64(blockSize)
		}
		if fit >= blockCount {
			break
		}
		blockCount = fit
		if blockCount == 0 {
			break
		}
	}
	if blockCount == 0 || inodeCount == 0 {
		return nil, fmt.Errorf("%w: %d bytes at block size %d", ErrDeviceTooSmall, deviceSize, blockSize)
	}

	return &Superblock{
		InodeCount: inodeCount,
		FreeInodes: inodeCount,
		BlockCount: blockCount,
		FreeBlocks: blockCount,
		BlockSize:  blockSize,
	}, nil
}

// Detect probes the device for a superblock. Each candidate block
// size is tried at its corresponding offset; the largest candidate
// whose magic matches wins, so a volume reformatted at a larger block
// size over an older, smaller-block volume resolves deterministically.
// Returns ErrNotFormatted when nothing matches.
func Detect(device blockdev.Device) (*Superblock, error) {
	for i := len(BlockSizes) - 1; i >= 0; i-- {
		candidate := BlockSizes[i]
		offset := int64(candidate)
		if offset+SuperblockLen > device.Size() {
			continue
		}
		raw := make([]byte, SuperblockLen)
		if err := device.ReadAt(raw, offset); err != nil {
			return nil, fmt.Errorf("probing block size %d: %w", candidate, err)
		}
		if binary.LittleEndian.Uint64(raw[superOffMagic:]) != Magic {
			continue
		}
		sb := decodeSuperblock(raw)
		return sb, nil
	}
	return nil, ErrNotFormatted
}

// LoadSuperblock reads the superblock for a known block size.
func LoadSuperblock(device blockdev.Device, blockSize uint32) (*Superblock, error) {
	if !ValidBlockSize(blockSize) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBlockSize, blockSize)
	}
	raw := make([]byte, SuperblockLen)
	if err := device.ReadAt(raw, int64(blockSize)); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	if binary.LittleEndian.Uint64(raw[superOffMagic:]) != Magic {
		return nil, ErrNotFormatted
	}
	return decodeSuperblock(raw), nil
}

// Flush writes the superblock to the device at its fixed position.
func (s *Superblock) Flush(device blockdev.Device) error {
	if err := device.WriteAt(s.Encode(), int64(s.BlockSize)); err != nil {
		return fmt.Errorf("writing superblock: %w", err)
	}
	return nil
}

// Encode renders the superblock into its 1024-byte on-disk form.
// Reserved bytes are zero.
func (s *Superblock) Encode() []byte {
	raw := make([]byte, SuperblockLen)
	binary.LittleEndian.PutUint64(raw[superOffInodeCount:], s.InodeCount)
	binary.LittleEndian.PutUint64(raw[superOffFreeInodes:], s.FreeInodes)
	binary.LittleEndian.PutUint64(raw[superOffBlockCount:], s.BlockCount)
	binary.LittleEndian.PutUint64(raw[superOffFreeBlocks:], s.FreeBlocks)
	binary.LittleEndian.PutUint32(raw[superOffBlockSize:], s.BlockSize)
	binary.LittleEndian.PutUint64(raw[superOffMagic:], Magic)
	return raw
}

func decodeSuperblock(raw []byte) *Superblock {
	return &Superblock{
		InodeCount: binary.LittleEndian.Uint64(raw[superOffInodeCount:]),
		FreeInodes: binary.LittleEndian.Uint64(raw[superOffFreeInodes:]),
		BlockCount: binary.LittleEndian.Uint64(raw[superOffBlockCount:]),
		FreeBlocks: binary.LittleEndian.Uint64(raw[superOffFreeBlocks:]),
		BlockSize:  binary.LittleEndian.Uint32(raw[superOffBlockSize:]),
	}
}

// BitmapRegionStart is the byte offset of the inode bitmap: right
// after the boot sector and the superblock.
func (s *Superblock) BitmapRegionStart() uint64 {
	return uint64(s.BlockSize) + SuperblockLen
}

// InodeBitmapLen is the serialized length of the inode bitmap.
func (s *Superblock) InodeBitmapLen() uint64 {
	return bitmap.SerializedLen(s.InodeCount)
}

// BlockBitmapStart is the byte offset of the block bitmap.
func (s *Superblock) BlockBitmapStart() uint64 {
	return s.BitmapRegionStart() + s.InodeBitmapLen()
}

// BlockBitmapLen is the serialized length of the block bitmap.
func (s *Superblock) BlockBitmapLen() uint64 {
	return bitmap.SerializedLen(s.BlockCount)
}

// InodeRegionStart is the byte offset of the inode region: the end of
// the block bitmap aligned up to the next block boundary.
func (s *Superblock) InodeRegionStart() uint64 {
	return s.alignToBlock(s.BlockBitmapStart() + s.BlockBitmapLen())
}

// BlockRegionStart is the byte offset of the block region: the end of
// the inode region aligned up to the next block boundary.
func (s *Superblock) BlockRegionStart() uint64 {
	return s.alignToBlock(s.InodeRegionStart() + s.InodeCount*InodeLen)
}

// BlockRegionEnd is the byte offset one past the last data block.
func (s *Superblock) BlockRegionEnd() uint64 {
	return s.BlockRegionStart() + s.BlockCount*uint64(s.BlockSize)
}

// InodePosition returns the byte offset of the inode with the given
// ordinal.
func (s *Superblock) InodePosition(ordinal uint64) (uint64, error) {
	if ordinal >= s.InodeCount {
		return 0, fmt.Errorf("%w: inode %d of %d", ErrOutOfBounds, ordinal, s.InodeCount)
	}
	return s.InodeRegionStart() + ordinal*InodeLen, nil
}

// BlockPosition returns the byte offset of the block with the given
// ordinal.
func (s *Superblock) BlockPosition(ordinal uint64) (uint64, error) {
	if ordinal >= s.BlockCount {
		return 0, fmt.Errorf("%w: block %d of %d", ErrOutOfBounds, ordinal, s.BlockCount)
	}
	return s.BlockRegionStart() + ordinal*uint64(s.BlockSize), nil
}

func (s *Superblock) alignToBlock(position uint64) uint64 {
	blockSize := uint64(s.BlockSize)
	if position%blockSize == 0 {
		return position
	}
	return position + blockSize - position%blockSize
}
