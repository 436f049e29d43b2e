// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package layout

import "encoding/binary"

// NIL is the reserved block ordinal meaning "no next block". It also
// bounds the logical address space: the largest addressable byte
// position in any file is NIL − 1.
const NIL uint64 = 0x00FFFFFFFFFFFFFF

// NextPointerLen is the size of the chain pointer at the head of
// every data block.
const NextPointerLen = 8

// PayloadLen is the number of payload bytes per data block: the block
// size minus the chain pointer.
func PayloadLen(blockSize uint32) uint64 {
	return uint64(blockSize) - NextPointerLen
}

// NextPointer reads the chain pointer from a raw block.
func NextPointer(block []byte) uint64 {
	return binary.LittleEndian.Uint64(block[:NextPointerLen])
}

// SetNextPointer writes the chain pointer into a raw block.
func SetNextPointer(block []byte, next uint64) {
	binary.LittleEndian.PutUint64(block[:NextPointerLen], next)
}
