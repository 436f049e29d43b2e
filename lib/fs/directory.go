// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bureau-foundation/tananfs/lib/layout"
)

// MaxNameLen is the longest name a directory entry can record: the
// entry stores the length in a u16.
const MaxNameLen = 65535

// entryHeaderLen is the fixed part of a directory entry: the child's
// inode ordinal (u64) and the name length (u16).
const entryHeaderLen = 10

// Directory is a byte file whose payload holds the directory's own
// name followed by its entries. While open it keeps a parsed
// name-to-ordinal map for O(1) lookup; the payload is the source of
// truth on reload.
//
// Directory methods assume the filesystem's operation mutex is held.
type Directory struct {
	fs    *Filesystem
	inode *layout.Inode
	file  *ByteFile

	name string
	// names lists children in payload order; children maps each
	// name to its inode ordinal.
	names    []string
	children map[string]uint64
}

// loadDirectory reads and parses the directory with the given
// ordinal.
func loadDirectory(fs *Filesystem, ordinal uint64) (*Directory, error) {
	inode, err := fs.loadInode(ordinal)
	if err != nil {
		return nil, err
	}
	if inode.Type != layout.TypeDirectory {
		return nil, fmt.Errorf("%w: inode %d", ErrNotDirectory, ordinal)
	}

	dir := &Directory{
		fs:       fs,
		inode:    inode,
		file:     loadByteFile(fs, inode),
		children: make(map[string]uint64),
	}
	if err := dir.parse(); err != nil {
		return nil, err
	}
	return dir, nil
}

// createDirectory allocates an inode for a new empty directory and
// writes its own name into the payload. The caller links it into the
// parent.
func createDirectory(fs *Filesystem, parent uint64, name string, mode uint16, uid, gid uint32) (*Directory, error) {
	ordinal, err := fs.allocInode()
	if err != nil {
		return nil, err
	}

	inode := layout.NewInode(ordinal, layout.TypeDirectory, mode, uid, gid, fs.clk.Now())
	inode.Metadata[layout.SlotParent] = parent
	inode.Metadata[layout.SlotChildCount] = 0
	inode.Metadata[layout.SlotNameLen] = uint64(len(name))
	if err := fs.cache.PutInode(inode); err != nil {
		return nil, err
	}

	dir := &Directory{
		fs:       fs,
		inode:    inode,
		file:     loadByteFile(fs, inode),
		name:     name,
		children: make(map[string]uint64),
	}
	if err := dir.file.Write([]byte(name)); err != nil {
		// The payload write failed; give the inode back so the
		// caller sees an unchanged filesystem.
		if freeErr := fs.freeInode(ordinal); freeErr != nil {
			fs.logger.Error("failed to release inode of stillborn directory", "inode", ordinal, "error", freeErr)
		}
		return nil, err
	}
	return dir, nil
}

// parse rebuilds the in-memory view from the payload.
func (d *Directory) parse() error {
	if _, err := d.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	nameLen := d.inode.Metadata[layout.SlotNameLen]
	if nameLen > d.inode.Size {
		return fmt.Errorf("%w: directory %d name length %d exceeds payload of %d bytes",
			ErrCorruptChain, d.inode.Ordinal, nameLen, d.inode.Size)
	}
	nameRaw := make([]byte, nameLen)
	if err := d.file.Read(nameRaw); err != nil {
		return err
	}
	d.name = string(nameRaw)

	count := d.inode.Metadata[layout.SlotChildCount]
	d.names = make([]string, 0, count)
	d.children = make(map[string]uint64, count)

	header := make([]byte, entryHeaderLen)
	for i := uint64(0); i < count; i++ {
		if err := d.file.Read(header); err != nil {
			return fmt.Errorf("%w: directory %d entry %d of %d: %v",
				ErrCorruptChain, d.inode.Ordinal, i, count, err)
		}
		childOrdinal := binary.LittleEndian.Uint64(header)
		childNameLen := binary.LittleEndian.Uint16(header[8:])

		childName := make([]byte, childNameLen)
		if err := d.file.Read(childName); err != nil {
			return fmt.Errorf("%w: directory %d entry %d name: %v",
				ErrCorruptChain, d.inode.Ordinal, i, err)
		}

		name := string(childName)
		if _, dup := d.children[name]; dup {
			return fmt.Errorf("%w: directory %d repeats name %q", ErrCorruptChain, d.inode.Ordinal, name)
		}
		d.names = append(d.names, name)
		d.children[name] = childOrdinal
	}
	return nil
}

// Name returns the directory's own name.
func (d *Directory) Name() string { return d.name }

// ChildCount returns the number of entries.
func (d *Directory) ChildCount() uint64 {
	return d.inode.Metadata[layout.SlotChildCount]
}

// Lookup resolves a child name to its inode ordinal.
func (d *Directory) Lookup(name string) (uint64, error) {
	ordinal, ok := d.children[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q in directory %d", ErrNotFound, name, d.inode.Ordinal)
	}
	return ordinal, nil
}

// List returns the children in payload order.
func (d *Directory) List() []DirEntry {
	entries := make([]DirEntry, 0, len(d.names))
	for _, name := range d.names {
		entries = append(entries, DirEntry{Name: name, Ino: d.children[name]})
	}
	return entries
}

// Insert appends an entry for name pointing at the given inode
// ordinal.
func (d *Directory) Insert(name string, ordinal uint64) error {
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}
	if _, exists := d.children[name]; exists {
		return fmt.Errorf("%w: %q in directory %d", ErrExists, name, d.inode.Ordinal)
	}

	entry := make([]byte, entryHeaderLen+len(name))
	binary.LittleEndian.PutUint64(entry, ordinal)
	binary.LittleEndian.PutUint16(entry[8:], uint16(len(name)))
	copy(entry[entryHeaderLen:], name)

	if _, err := d.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	if err := d.file.Write(entry); err != nil {
		return err
	}

	d.names = append(d.names, name)
	d.children[name] = ordinal
	return d.storeCounts()
}

// Remove deletes the entry for name and compacts the payload: the
// trailing entries shift down over the hole and the file shrinks by
// the entry's length.
func (d *Directory) Remove(name string) error {
	position := -1
	for i, candidate := range d.names {
		if candidate == name {
			position = i
			break
		}
	}
	if position < 0 {
		return fmt.Errorf("%w: %q in directory %d", ErrNotFound, name, d.inode.Ordinal)
	}

	start := d.entryOffset(position)
	entryLen := uint64(entryHeaderLen + len(name))
	trailingLen := d.inode.Size - (start + entryLen)

	if trailingLen > 0 {
		trailing := make([]byte, trailingLen)
		if _, err := d.file.Seek(int64(start+entryLen), io.SeekStart); err != nil {
			return err
		}
		if err := d.file.Read(trailing); err != nil {
			return err
		}
		if _, err := d.file.Seek(int64(start), io.SeekStart); err != nil {
			return err
		}
		if err := d.file.Write(trailing); err != nil {
			return err
		}
	}
	if err := d.file.Shrink(d.inode.Size - entryLen); err != nil {
		return err
	}

	d.names = append(d.names[:position], d.names[position+1:]...)
	delete(d.children, name)
	return d.storeCounts()
}

// Rename moves an entry from old to new within this directory.
func (d *Directory) Rename(old, new string) error {
	ordinal, ok := d.children[old]
	if !ok {
		return fmt.Errorf("%w: %q in directory %d", ErrNotFound, old, d.inode.Ordinal)
	}
	if _, exists := d.children[new]; exists {
		return fmt.Errorf("%w: %q in directory %d", ErrExists, new, d.inode.Ordinal)
	}
	if len(new) > MaxNameLen {
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(new))
	}

	if err := d.Remove(old); err != nil {
		return err
	}
	return d.Insert(new, ordinal)
}

// entryOffset returns the payload offset of the position-th entry.
func (d *Directory) entryOffset(position int) uint64 {
	offset := uint64(len(d.name))
	for i := 0; i < position; i++ {
		offset += uint64(entryHeaderLen + len(d.names[i]))
	}
	return offset
}

// storeCounts writes the child count back to the inode and stamps
// the data mtime.
func (d *Directory) storeCounts() error {
	d.inode.Metadata[layout.SlotChildCount] = uint64(len(d.names))
	d.inode.TouchData(d.fs.clk.Now())
	return d.fs.cache.PutInode(d.inode)
}

// setOwnName rewrites the payload under a new directory name, moving
// every entry. Directories record their own name in their payload, so
// renaming one touches the directory itself, not just the parent.
func (d *Directory) setOwnName(name string) error {
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}

	rebuilt := make([]byte, 0, uint64(len(name))+d.inode.Size-uint64(len(d.name)))
	rebuilt = append(rebuilt, name...)
	for _, childName := range d.names {
		entry := make([]byte, entryHeaderLen+len(childName))
		binary.LittleEndian.PutUint64(entry, d.children[childName])
		binary.LittleEndian.PutUint16(entry[8:], uint16(len(childName)))
		copy(entry[entryHeaderLen:], childName)
		rebuilt = append(rebuilt, entry...)
	}

	if _, err := d.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := d.file.Write(rebuilt); err != nil {
		return err
	}
	if uint64(len(rebuilt)) < d.inode.Size {
		if err := d.file.Shrink(uint64(len(rebuilt))); err != nil {
			return err
		}
	}

	d.name = name
	d.inode.Metadata[layout.SlotNameLen] = uint64(len(name))
	d.inode.TouchMeta(d.fs.clk.Now())
	return d.fs.cache.PutInode(d.inode)
}

// destroy releases the directory's payload chain. The caller removes
// the parent entry and frees the inode.
func (d *Directory) destroy() error {
	return d.file.Destroy()
}
