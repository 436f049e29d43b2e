// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"fmt"
	"io"

	"github.com/bureau-foundation/tananfs/lib/layout"
)

// zeroFillChunkBlocks bounds the scratch buffer Grow uses to push
// zeros through the write path.
const zeroFillChunkBlocks = 64

// ByteFile is a random-access byte stream over an inode's singly
// linked block chain. A logical offset maps to (offset / (B−8)) for
// the chain index and 8 + offset mod (B−8) within the block, since
// the first eight bytes of every block hold the next pointer.
//
// The cursor remembers the ordinal of the block it sits in, so
// sequential access does not re-walk the chain. Random access walks
// forward from the cursor's block when the target lies at or after
// it, and from the head of the chain otherwise, at one cached block
// read per link; the final block is reached directly via last_block.
//
// ByteFile methods assume the filesystem's operation mutex is held;
// Filesystem hands out byte files only under it.
type ByteFile struct {
	fs    *Filesystem
	inode *layout.Inode

	cursor uint64
	// curBlock is the ordinal of the block containing the cursor,
	// or layout.NIL when the cached position is invalid.
	curBlock uint64
	// curIndex is curBlock's index along the chain.
	curIndex uint64
}

// loadByteFile wraps an inode as a byte file. No blocks are fetched
// until they are needed.
func loadByteFile(fs *Filesystem, inode *layout.Inode) *ByteFile {
	return &ByteFile{fs: fs, inode: inode, curBlock: layout.NIL}
}

func (b *ByteFile) payload() uint64 {
	return layout.PayloadLen(b.fs.super.BlockSize)
}

// Size returns the logical length in bytes.
func (b *ByteFile) Size() uint64 { return b.inode.Size }

// Tell returns the cursor's logical offset.
func (b *ByteFile) Tell() uint64 { return b.cursor }

// Seek moves the cursor. Whence is io.SeekStart, io.SeekCurrent, or
// io.SeekEnd. The cursor may land anywhere in [0, size]; size changes
// go through Grow and Shrink, so seeking past the end is an error.
func (b *ByteFile) Seek(offset int64, whence int) (uint64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = int64(b.cursor) + offset
	case io.SeekEnd:
		target = int64(b.inode.Size) + offset
	default:
		return 0, fmt.Errorf("%w: bad seek whence %d", ErrOutOfRange, whence)
	}
	if target < 0 || uint64(target) > b.inode.Size {
		return 0, fmt.Errorf("%w: seek to %d in file of %d bytes", ErrOutOfRange, target, b.inode.Size)
	}

	position := uint64(target)
	if b.curBlock != layout.NIL && position/b.payload() != b.curIndex {
		b.invalidateCursor()
	}
	b.cursor = position
	return position, nil
}

func (b *ByteFile) invalidateCursor() {
	b.curBlock = layout.NIL
	b.curIndex = 0
}

// blockAt resolves the ordinal of the index-th block in the chain,
// starting from the cursor's cached block when that saves walking.
func (b *ByteFile) blockAt(index uint64) (uint64, error) {
	if index >= b.inode.BlockCount {
		return 0, fmt.Errorf("%w: block %d of a %d-block chain", ErrOutOfRange, index, b.inode.BlockCount)
	}
	if index == b.inode.BlockCount-1 {
		return b.inode.LastBlock, nil
	}

	ordinal := b.inode.FirstBlock
	walked := uint64(0)
	if b.curBlock != layout.NIL && b.curIndex <= index {
		ordinal = b.curBlock
		walked = b.curIndex
	}

	for ; walked < index; walked++ {
		block, err := b.fs.cache.GetBlock(ordinal)
		if err != nil {
			return 0, err
		}
		next := layout.NextPointer(block)
		if err := b.validateChainLink(next); err != nil {
			return 0, err
		}
		ordinal = next
	}
	return ordinal, nil
}

// validateChainLink rejects next pointers that leave the block region
// or land on a block the bitmap says is free.
func (b *ByteFile) validateChainLink(next uint64) error {
	if next == layout.NIL {
		return fmt.Errorf("%w: chain ends before block_count on inode %d", ErrCorruptChain, b.inode.Ordinal)
	}
	set, err := b.fs.blockBitmap.IsSet(next)
	if err != nil {
		return fmt.Errorf("%w: next pointer %d outside block region on inode %d", ErrCorruptChain, next, b.inode.Ordinal)
	}
	if !set {
		return fmt.Errorf("%w: next pointer %d names a free block on inode %d", ErrCorruptChain, next, b.inode.Ordinal)
	}
	return nil
}

// Read copies exactly len(buf) bytes from the cursor, advancing it.
// Asking for more bytes than remain before the end of the file is
// ErrShortRead and moves nothing.
func (b *ByteFile) Read(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if b.cursor+uint64(len(buf)) > b.inode.Size {
		return fmt.Errorf("%w: %d bytes at offset %d in file of %d bytes",
			ErrShortRead, len(buf), b.cursor, b.inode.Size)
	}

	payload := b.payload()
	remaining := buf
	for len(remaining) > 0 {
		index := b.cursor / payload
		ordinal, err := b.blockAt(index)
		if err != nil {
			return err
		}
		block, err := b.fs.cache.GetBlock(ordinal)
		if err != nil {
			return err
		}

		start := layout.NextPointerLen + b.cursor%payload
		copied := copy(remaining, block[start:])
		remaining = remaining[copied:]
		b.cursor += uint64(copied)
		b.curBlock = ordinal
		b.curIndex = index
	}
	return nil
}

// chainSnapshot captures the inode fields a failed extension must
// restore.
type chainSnapshot struct {
	firstBlock uint64
	lastBlock  uint64
	blockCount uint64
	size       uint64
}

func (b *ByteFile) snapshot() chainSnapshot {
	return chainSnapshot{
		firstBlock: b.inode.FirstBlock,
		lastBlock:  b.inode.LastBlock,
		blockCount: b.inode.BlockCount,
		size:       b.inode.Size,
	}
}

// rollback undoes a failed extension: every block acquired by the
// operation is released, the previous tail gets its NIL terminator
// back, and the inode fields return to the snapshot.
func (b *ByteFile) rollback(snap chainSnapshot, acquired []uint64) {
	for _, ordinal := range acquired {
		if err := b.fs.freeBlock(ordinal); err != nil {
			b.fs.logger.Error("rollback failed to release block", "block", ordinal, "error", err)
		}
	}
	if snap.lastBlock != layout.NIL {
		if block, err := b.fs.cache.GetBlock(snap.lastBlock); err == nil {
			layout.SetNextPointer(block, layout.NIL)
			if err := b.fs.cache.PutBlock(snap.lastBlock, block); err != nil {
				b.fs.logger.Error("rollback failed to restore tail", "block", snap.lastBlock, "error", err)
			}
		}
	}
	b.inode.FirstBlock = snap.firstBlock
	b.inode.LastBlock = snap.lastBlock
	b.inode.BlockCount = snap.blockCount
	b.inode.Size = snap.size
	b.invalidateCursor()
	if b.cursor > b.inode.Size {
		b.cursor = b.inode.Size
	}
}

// appendBlock chains one zeroed block onto the tail and records it in
// acquired for rollback.
func (b *ByteFile) appendBlock(acquired *[]uint64) error {
	ordinal, err := b.fs.allocBlock()
	if err != nil {
		return err
	}
	*acquired = append(*acquired, ordinal)

	fresh := make([]byte, b.fs.super.BlockSize)
	layout.SetNextPointer(fresh, layout.NIL)

	if b.inode.FirstBlock == layout.NIL {
		if err := b.fs.cache.PutBlock(ordinal, fresh); err != nil {
			return err
		}
		b.inode.FirstBlock = ordinal
		b.inode.LastBlock = ordinal
		b.inode.BlockCount = 1
		return nil
	}

	tail, err := b.fs.cache.GetBlock(b.inode.LastBlock)
	if err != nil {
		return err
	}
	layout.SetNextPointer(tail, ordinal)
	if err := b.fs.cache.PutBlock(b.inode.LastBlock, tail); err != nil {
		return err
	}
	if err := b.fs.cache.PutBlock(ordinal, fresh); err != nil {
		return err
	}
	b.inode.LastBlock = ordinal
	b.inode.BlockCount++
	return nil
}

// Write copies buf into the file at the cursor, advancing it. Writes
// beyond the current size chain new blocks onto the tail; mid-file
// writes reuse existing blocks. On an allocation failure the chain
// and the inode are restored to their state before the call.
func (b *ByteFile) Write(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if b.cursor+uint64(len(buf)) > layout.NIL {
		return fmt.Errorf("%w: write would end at %d, past the addressable limit",
			ErrOutOfRange, b.cursor+uint64(len(buf)))
	}

	snap := b.snapshot()
	var acquired []uint64

	// Chain every block the write needs before touching any data, so
	// an allocation failure leaves existing bytes unmodified.
	payload := b.payload()
	needed := (b.cursor + uint64(len(buf)) + payload - 1) / payload
	for b.inode.BlockCount < needed {
		if err := b.appendBlock(&acquired); err != nil {
			b.rollback(snap, acquired)
			return err
		}
	}

	remaining := buf
	for len(remaining) > 0 {
		index := b.cursor / payload
		ordinal, err := b.blockAt(index)
		if err != nil {
			b.rollback(snap, acquired)
			return err
		}
		block, err := b.fs.cache.GetBlock(ordinal)
		if err != nil {
			b.rollback(snap, acquired)
			return err
		}

		start := layout.NextPointerLen + b.cursor%payload
		copied := copy(block[start:], remaining)
		if err := b.fs.cache.PutBlock(ordinal, block); err != nil {
			b.rollback(snap, acquired)
			return err
		}
		remaining = remaining[copied:]
		b.cursor += uint64(copied)
		b.curBlock = ordinal
		b.curIndex = index
	}

	if b.cursor > b.inode.Size {
		b.inode.Size = b.cursor
	}
	b.inode.TouchData(b.fs.clk.Now())
	return b.fs.cache.PutInode(b.inode)
}

// Grow extends the file to newSize with zeros. Growing to the current
// size is a no-op; growing smaller is an error.
func (b *ByteFile) Grow(newSize uint64) error {
	if newSize < b.inode.Size {
		return fmt.Errorf("%w: grow from %d to %d bytes", ErrOutOfRange, b.inode.Size, newSize)
	}
	if newSize == b.inode.Size {
		return nil
	}
	if newSize > layout.NIL {
		return fmt.Errorf("%w: size %d past the addressable limit", ErrOutOfRange, newSize)
	}

	oldSize := b.inode.Size
	savedCursor := b.cursor
	b.cursor = oldSize
	b.invalidateCursor()

	zeros := make([]byte, min(newSize-oldSize, zeroFillChunkBlocks*b.payload()))
	for b.inode.Size < newSize {
		chunk := zeros[:min(uint64(len(zeros)), newSize-b.inode.Size)]
		if err := b.Write(chunk); err != nil {
			// Each Write call rolls its own extension back; undo
			// the chunks that did land so the whole Grow is
			// all-or-nothing.
			if shrinkErr := b.Shrink(oldSize); shrinkErr != nil {
				b.fs.logger.Error("failed to undo partial grow", "inode", b.inode.Ordinal, "error", shrinkErr)
			}
			b.cursor = min(savedCursor, b.inode.Size)
			b.invalidateCursor()
			return err
		}
	}

	b.cursor = savedCursor
	b.invalidateCursor()
	return b.fs.cache.PutInode(b.inode)
}

// Shrink truncates the file to newSize, releasing every block past
// the new tail. The cursor is clamped into the shrunk file and its
// cached block is always invalidated.
func (b *ByteFile) Shrink(newSize uint64) error {
	if newSize > b.inode.Size {
		return fmt.Errorf("%w: shrink from %d to %d bytes", ErrOutOfRange, b.inode.Size, newSize)
	}
	if newSize == b.inode.Size {
		return nil
	}

	payload := b.payload()
	if newSize == 0 {
		ordinal := b.inode.FirstBlock
		for walked := uint64(0); walked < b.inode.BlockCount; walked++ {
			if ordinal == layout.NIL {
				return fmt.Errorf("%w: chain ends after %d of %d blocks on inode %d",
					ErrCorruptChain, walked, b.inode.BlockCount, b.inode.Ordinal)
			}
			block, err := b.fs.cache.GetBlock(ordinal)
			if err != nil {
				return err
			}
			next := layout.NextPointer(block)
			if err := b.fs.freeBlock(ordinal); err != nil {
				return err
			}
			ordinal = next
		}
		b.inode.FirstBlock = layout.NIL
		b.inode.LastBlock = layout.NIL
		b.inode.BlockCount = 0
	} else {
		tailIndex := (newSize - 1) / payload
		tailOrdinal, err := b.blockAt(tailIndex)
		if err != nil {
			return err
		}
		tail, err := b.fs.cache.GetBlock(tailOrdinal)
		if err != nil {
			return err
		}
		ordinal := layout.NextPointer(tail)
		layout.SetNextPointer(tail, layout.NIL)
		if err := b.fs.cache.PutBlock(tailOrdinal, tail); err != nil {
			return err
		}

		for index := tailIndex + 1; index < b.inode.BlockCount; index++ {
			if ordinal == layout.NIL {
				return fmt.Errorf("%w: chain ends after %d of %d blocks on inode %d",
					ErrCorruptChain, index, b.inode.BlockCount, b.inode.Ordinal)
			}
			block, err := b.fs.cache.GetBlock(ordinal)
			if err != nil {
				return err
			}
			next := layout.NextPointer(block)
			if err := b.fs.freeBlock(ordinal); err != nil {
				return err
			}
			ordinal = next
		}
		b.inode.LastBlock = tailOrdinal
		b.inode.BlockCount = tailIndex + 1
	}

	b.inode.Size = newSize
	if b.cursor > newSize {
		b.cursor = newSize
	}
	b.invalidateCursor()
	b.inode.TouchData(b.fs.clk.Now())
	return b.fs.cache.PutInode(b.inode)
}

// Truncate grows or shrinks to newSize.
func (b *ByteFile) Truncate(newSize uint64) error {
	if newSize > b.inode.Size {
		return b.Grow(newSize)
	}
	return b.Shrink(newSize)
}

// Destroy releases every block in the chain. Releasing the inode
// itself is the caller's job.
func (b *ByteFile) Destroy() error {
	return b.Shrink(0)
}
