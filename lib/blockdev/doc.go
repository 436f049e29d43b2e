// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blockdev provides raw, sector-granular access to the device
// backing a TananFS volume.
//
// A [Device] is a flat byte array addressed by absolute offset. The
// two implementations are [FileDevice], which wraps a regular file or
// a raw block device through pread/pwrite, and [MemDevice], an
// in-memory device for tests. Neither caches anything: the write-back
// cache in lib/cache is the only caching layer, and it sits above
// this package.
//
// Callers are expected to issue whole-sector I/O. Sub-sector updates
// (the 1024-byte superblock on a 4096-byte-sector device, say) are
// the caller's responsibility via read-modify-write.
package blockdev
