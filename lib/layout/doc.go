// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package layout defines the on-disk format of a TananFS volume and
// the codecs for its two fixed-size records, the superblock and the
// inode.
//
// A volume is partitioned, in order: a boot sector of one block
// (unused), the 1024-byte superblock, the inode bitmap, the block
// bitmap, padding to the next block boundary, the inode region
// (128 bytes per inode), padding to the next block boundary, and the
// block region. All multi-byte integers are little-endian.
//
// The geometry is fully determined by three numbers stored in the
// superblock — inode count, block count, and block size — so a volume
// is mountable from its superblock alone. [Detect] finds the
// superblock by probing the candidate block sizes for the magic
// signature.
package layout
