// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package image saves and restores volume snapshots.
//
// A snapshot is a portable single-file copy of a volume: a CBOR
// manifest (geometry, image length, BLAKE3 digest, creation time)
// followed by the zstd-compressed raw image, covering the device from
// the boot sector through the end of the block region. Bytes past the
// block region are not part of the volume and are not captured.
//
// Restore decompresses into memory, verifies the digest, and only
// then touches the target device, so a damaged snapshot never leaves
// a half-written volume behind.
package image
