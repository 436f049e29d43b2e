// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"fmt"

	"github.com/bureau-foundation/tananfs/lib/layout"
)

// Check audits the volume's cross-structure invariants and returns
// one finding per violation. An empty slice means the volume is
// consistent. Check reads through the cache, so it sees the same
// state the operations do; it mutates nothing.
//
// Audited invariants: the free counters match the bitmap popcounts;
// every live inode's chain visits exactly block_count distinct,
// bitmap-backed blocks and terminates with NIL at last_block; no
// block belongs to two chains; every bitmap-set block is reachable
// from some live inode; directory payloads parse to exactly the
// recorded child count with unique names; and file sizes fit their
// block counts.
func (fs *Filesystem) Check() ([]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var findings []string

	if free := fs.super.InodeCount - fs.inodeBitmap.Popcount(); free != fs.super.FreeInodes {
		findings = append(findings, fmt.Sprintf(
			"superblock says %d free inodes, bitmap says %d", fs.super.FreeInodes, free))
	}
	if free := fs.super.BlockCount - fs.blockBitmap.Popcount(); free != fs.super.FreeBlocks {
		findings = append(findings, fmt.Sprintf(
			"superblock says %d free blocks, bitmap says %d", fs.super.FreeBlocks, free))
	}

	// blockOwner maps each visited block to the inode whose chain
	// claimed it; a second claim is a shared block.
	blockOwner := make(map[uint64]uint64)

	for ordinal := uint64(0); ordinal < fs.super.InodeCount; ordinal++ {
		set, err := fs.inodeBitmap.IsSet(ordinal)
		if err != nil {
			return nil, err
		}
		if !set {
			continue
		}

		inode, err := fs.cache.GetInode(ordinal)
		if err != nil {
			return nil, err
		}
		if inode.Type == layout.TypeFree {
			findings = append(findings, fmt.Sprintf(
				"inode %d is allocated in the bitmap but typed free", ordinal))
			continue
		}
		if inode.Ordinal != ordinal {
			findings = append(findings, fmt.Sprintf(
				"inode %d records ordinal %d", ordinal, inode.Ordinal))
			continue
		}

		findings = append(findings, fs.checkChain(inode, blockOwner)...)
		findings = append(findings, fs.checkSizeBounds(inode)...)

		if inode.Type == layout.TypeDirectory {
			findings = append(findings, fs.checkDirectory(inode)...)
		}
	}

	// Every allocated block must have been claimed by some chain.
	for ordinal := uint64(0); ordinal < fs.super.BlockCount; ordinal++ {
		set, err := fs.blockBitmap.IsSet(ordinal)
		if err != nil {
			return nil, err
		}
		if set {
			if _, claimed := blockOwner[ordinal]; !claimed {
				findings = append(findings, fmt.Sprintf(
					"block %d is allocated but no chain reaches it", ordinal))
			}
		}
	}

	return findings, nil
}

// checkChain walks an inode's chain and verifies the block count, the
// terminator, bitmap backing, and single ownership.
func (fs *Filesystem) checkChain(inode *layout.Inode, blockOwner map[uint64]uint64) []string {
	var findings []string

	if inode.BlockCount == 0 {
		if inode.FirstBlock != layout.NIL || inode.LastBlock != layout.NIL {
			findings = append(findings, fmt.Sprintf(
				"inode %d has no blocks but chain pointers %d/%d",
				inode.Ordinal, inode.FirstBlock, inode.LastBlock))
		}
		return findings
	}

	current := inode.FirstBlock
	for index := uint64(0); index < inode.BlockCount; index++ {
		if current == layout.NIL {
			findings = append(findings, fmt.Sprintf(
				"inode %d chain ends after %d of %d blocks", inode.Ordinal, index, inode.BlockCount))
			return findings
		}
		set, err := fs.blockBitmap.IsSet(current)
		if err != nil {
			findings = append(findings, fmt.Sprintf(
				"inode %d chain points outside the block region at %d", inode.Ordinal, current))
			return findings
		}
		if !set {
			findings = append(findings, fmt.Sprintf(
				"inode %d chain visits free block %d", inode.Ordinal, current))
		}
		if owner, claimed := blockOwner[current]; claimed {
			findings = append(findings, fmt.Sprintf(
				"block %d appears in the chains of inodes %d and %d", current, owner, inode.Ordinal))
			return findings
		}
		blockOwner[current] = inode.Ordinal

		block, err := fs.cache.GetBlock(current)
		if err != nil {
			findings = append(findings, fmt.Sprintf(
				"inode %d block %d is unreadable: %v", inode.Ordinal, current, err))
			return findings
		}
		next := layout.NextPointer(block)

		if index == inode.BlockCount-1 {
			if current != inode.LastBlock {
				findings = append(findings, fmt.Sprintf(
					"inode %d chain ends at block %d, last_block says %d",
					inode.Ordinal, current, inode.LastBlock))
			}
			if next != layout.NIL {
				findings = append(findings, fmt.Sprintf(
					"inode %d tail block %d points to %d instead of NIL",
					inode.Ordinal, current, next))
			}
		}
		current = next
	}
	return findings
}

// checkSizeBounds verifies size_bytes against block_count: the data
// must fit the chain, and the chain must not carry a wholly unused
// tail block.
func (fs *Filesystem) checkSizeBounds(inode *layout.Inode) []string {
	payload := layout.PayloadLen(fs.super.BlockSize)
	var findings []string
	if inode.Size > inode.BlockCount*payload {
		findings = append(findings, fmt.Sprintf(
			"inode %d holds %d bytes in %d blocks of %d payload bytes",
			inode.Ordinal, inode.Size, inode.BlockCount, payload))
	}
	if inode.BlockCount > 0 && inode.Size <= (inode.BlockCount-1)*payload {
		findings = append(findings, fmt.Sprintf(
			"inode %d holds %d bytes but chains %d blocks",
			inode.Ordinal, inode.Size, inode.BlockCount))
	}
	return findings
}

// checkDirectory verifies that the payload parses to exactly the
// recorded child count with unique names, and that every entry names
// a live inode.
func (fs *Filesystem) checkDirectory(inode *layout.Inode) []string {
	dir, err := loadDirectory(fs, inode.Ordinal)
	if err != nil {
		return []string{fmt.Sprintf("directory %d does not parse: %v", inode.Ordinal, err)}
	}

	var findings []string
	if parsed := dir.file.Tell(); parsed != inode.Size {
		findings = append(findings, fmt.Sprintf(
			"directory %d payload holds %d bytes past its %d entries",
			inode.Ordinal, inode.Size-parsed, dir.ChildCount()))
	}
	for _, entry := range dir.List() {
		set, err := fs.inodeBitmap.IsSet(entry.Ino)
		if err != nil || !set {
			findings = append(findings, fmt.Sprintf(
				"directory %d entry %q names dead inode %d", inode.Ordinal, entry.Name, entry.Ino))
		}
	}
	return findings
}
