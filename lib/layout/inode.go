// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package layout

import (
	"encoding/binary"
	"fmt"
	"time"
)

// InodeLen is the on-disk footprint of one inode in bytes.
const InodeLen = 128

// MetadataSlots is the number of general-purpose u64 slots in an
// inode. Directories use slot 0 for the parent ordinal, slot 1 for
// the child count, and slot 2 for the length of their own name;
// regular files use slot 0 for the parent ordinal.
const MetadataSlots = 5

// Well-known metadata slot indexes.
const (
	SlotParent     = 0
	SlotChildCount = 1
	SlotNameLen    = 2
)

// DtimeLive is the dtime value of an inode that has never been
// deleted.
const DtimeLive uint64 = 0xFFFFFFFFFFFFFFFF

// FileType discriminates what an inode describes.
type FileType uint8

const (
	// TypeFree marks an inode slot that holds no file.
	TypeFree FileType = iota
	// TypeRegularFile marks a regular file.
	TypeRegularFile
	// TypeDirectory marks a directory.
	TypeDirectory
)

func (t FileType) String() string {
	switch t {
	case TypeFree:
		return "free"
	case TypeRegularFile:
		return "file"
	case TypeDirectory:
		return "directory"
	default:
		return fmt.Sprintf("filetype(%d)", uint8(t))
	}
}

// Inode field offsets within the 128-byte record.
const (
	inodeOffOrdinal    = 0
	inodeOffMode       = 8
	inodeOffType       = 10
	inodeOffSize       = 11
	inodeOffUID        = 19
	inodeOffGID        = 23
	inodeOffAtime      = 27
	inodeOffMtimeMeta  = 35
	inodeOffMtimeData  = 43
	inodeOffDtime      = 51
	inodeOffBlockCount = 59
	inodeOffMetadata   = 67
	inodeOffReserved   = 107
	inodeOffFirstBlock = 112
	inodeOffLastBlock  = 120

	inodeReservedLen = inodeOffFirstBlock - inodeOffReserved
)

// Inode is the fixed-size metadata record for one file or directory.
// Everything about the object except its name lives here; names are
// stored in the parent directory's payload.
type Inode struct {
	// Ordinal is the inode's own index in the inode region, stored
	// in place for validation.
	Ordinal uint64
	// Mode holds the permission bits. Recorded, never enforced.
	Mode uint16
	// Type tells files from directories from free slots.
	Type FileType
	// Size is the logical byte length of the object's payload.
	Size uint64
	// UID and GID record ownership.
	UID uint32
	GID uint32
	// Atime is the last access, in seconds since the epoch.
	Atime uint64
	// MtimeMeta is the last metadata change, in seconds.
	MtimeMeta uint64
	// MtimeData is the last data change, in seconds.
	MtimeData uint64
	// Dtime is the deletion time in seconds, or DtimeLive.
	Dtime uint64
	// BlockCount is the number of blocks in the object's chain.
	BlockCount uint64
	// Metadata is the five general-purpose slots.
	Metadata [MetadataSlots]uint64
	// FirstBlock and LastBlock delimit the block chain; NIL when the
	// object has no blocks.
	FirstBlock uint64
	LastBlock  uint64

	// reserved preserves the unnamed gap byte-for-byte across a
	// decode/encode round-trip.
	reserved [inodeReservedLen]byte
}

// NewInode returns a live inode of the given type with no blocks,
// all three timestamps set to now, and both chain pointers NIL.
func NewInode(ordinal uint64, fileType FileType, mode uint16, uid, gid uint32, now time.Time) *Inode {
	seconds := uint64(now.Unix())
	return &Inode{
		Ordinal:    ordinal,
		Mode:       mode,
		Type:       fileType,
		UID:        uid,
		GID:        gid,
		Atime:      seconds,
		MtimeMeta:  seconds,
		MtimeData:  seconds,
		Dtime:      DtimeLive,
		FirstBlock: NIL,
		LastBlock:  NIL,
	}
}

// Encode renders the inode into its 128-byte on-disk form.
func (i *Inode) Encode() []byte {
	raw := make([]byte, InodeLen)
	binary.LittleEndian.PutUint64(raw[inodeOffOrdinal:], i.Ordinal)
	binary.LittleEndian.PutUint16(raw[inodeOffMode:], i.Mode)
	raw[inodeOffType] = uint8(i.Type)
	binary.LittleEndian.PutUint64(raw[inodeOffSize:], i.Size)
	binary.LittleEndian.PutUint32(raw[inodeOffUID:], i.UID)
	binary.LittleEndian.PutUint32(raw[inodeOffGID:], i.GID)
	binary.LittleEndian.PutUint64(raw[inodeOffAtime:], i.Atime)
	binary.LittleEndian.PutUint64(raw[inodeOffMtimeMeta:], i.MtimeMeta)
	binary.LittleEndian.PutUint64(raw[inodeOffMtimeData:], i.MtimeData)
	binary.LittleEndian.PutUint64(raw[inodeOffDtime:], i.Dtime)
	binary.LittleEndian.PutUint64(raw[inodeOffBlockCount:], i.BlockCount)
	for slot, value := range i.Metadata {
		binary.LittleEndian.PutUint64(raw[inodeOffMetadata+slot*8:], value)
	}
	copy(raw[inodeOffReserved:inodeOffFirstBlock], i.reserved[:])
	binary.LittleEndian.PutUint64(raw[inodeOffFirstBlock:], i.FirstBlock)
	binary.LittleEndian.PutUint64(raw[inodeOffLastBlock:], i.LastBlock)
	return raw
}

// DecodeInode parses a 128-byte on-disk inode record.
func DecodeInode(raw []byte) (*Inode, error) {
	if len(raw) < InodeLen {
		return nil, fmt.Errorf("layout: inode record is %d bytes, need %d", len(raw), InodeLen)
	}
	inode := &Inode{
		Ordinal:    binary.LittleEndian.Uint64(raw[inodeOffOrdinal:]),
		Mode:       binary.LittleEndian.Uint16(raw[inodeOffMode:]),
		Type:       FileType(raw[inodeOffType]),
		Size:       binary.LittleEndian.Uint64(raw[inodeOffSize:]),
		UID:        binary.LittleEndian.Uint32(raw[inodeOffUID:]),
		GID:        binary.LittleEndian.Uint32(raw[inodeOffGID:]),
		Atime:      binary.LittleEndian.Uint64(raw[inodeOffAtime:]),
		MtimeMeta:  binary.LittleEndian.Uint64(raw[inodeOffMtimeMeta:]),
		MtimeData:  binary.LittleEndian.Uint64(raw[inodeOffMtimeData:]),
		Dtime:      binary.LittleEndian.Uint64(raw[inodeOffDtime:]),
		BlockCount: binary.LittleEndian.Uint64(raw[inodeOffBlockCount:]),
		FirstBlock: binary.LittleEndian.Uint64(raw[inodeOffFirstBlock:]),
		LastBlock:  binary.LittleEndian.Uint64(raw[inodeOffLastBlock:]),
	}
	for slot := range inode.Metadata {
		inode.Metadata[slot] = binary.LittleEndian.Uint64(raw[inodeOffMetadata+slot*8:])
	}
	copy(inode.reserved[:], raw[inodeOffReserved:inodeOffFirstBlock])
	return inode, nil
}

// TouchAccess sets the access timestamp to now.
func (i *Inode) TouchAccess(now time.Time) { i.Atime = uint64(now.Unix()) }

// TouchMeta sets the metadata-change timestamp to now.
func (i *Inode) TouchMeta(now time.Time) { i.MtimeMeta = uint64(now.Unix()) }

// TouchData sets the data-change timestamp to now.
func (i *Inode) TouchData(now time.Time) { i.MtimeData = uint64(now.Unix()) }
