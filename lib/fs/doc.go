// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fs is the TananFS core: the byte-file abstraction over
// block chains, directories, and the filesystem object that composes
// them with the superblock, the bitmaps, and the write-back cache.
//
// [Filesystem] is the API the host-OS driver shim consumes. Every
// public operation takes a single filesystem-wide mutex for its whole
// duration; there is no finer-grained locking. [ByteFile] and
// [Directory] are the building blocks underneath — the filesystem
// hands them out only while holding that mutex.
//
// All reads and writes of blocks and inodes go through the cache.
// The superblock and the bitmaps live in memory for the whole mount
// and reach the device directly on sync and unmount.
package fs
