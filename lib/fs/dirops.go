// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"fmt"

	"github.com/bureau-foundation/tananfs/lib/layout"
)

// Lookup resolves name inside the parent directory to an inode
// ordinal.
func (fs *Filesystem) Lookup(parent uint64, name string) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, err := loadDirectory(fs, parent)
	if err != nil {
		return 0, err
	}
	return dir.Lookup(name)
}

// Mkdir creates an empty directory under parent and returns its
// ordinal.
func (fs *Filesystem) Mkdir(parent uint64, name string, mode uint16, uid, gid uint32) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, err := loadDirectory(fs, parent)
	if err != nil {
		return 0, err
	}
	if len(name) > MaxNameLen {
		return 0, fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}
	if _, err := dir.Lookup(name); err == nil {
		return 0, fmt.Errorf("%w: %q in directory %d", ErrExists, name, parent)
	}

	child, err := createDirectory(fs, parent, name, mode, uid, gid)
	if err != nil {
		return 0, err
	}
	if err := dir.Insert(name, child.inode.Ordinal); err != nil {
		fs.discardInode(child.inode, child.file)
		return 0, err
	}
	if err := fs.maintain(); err != nil {
		return 0, err
	}
	fs.logger.Debug("directory created", "parent", parent, "name", name, "inode", child.inode.Ordinal)
	return child.inode.Ordinal, nil
}

// Rmdir removes an empty directory from parent.
func (fs *Filesystem) Rmdir(parent uint64, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, err := loadDirectory(fs, parent)
	if err != nil {
		return err
	}
	ordinal, err := dir.Lookup(name)
	if err != nil {
		return err
	}
	child, err := loadDirectory(fs, ordinal)
	if err != nil {
		return err
	}
	if child.ChildCount() > 0 {
		return fmt.Errorf("%w: %q has %d children", ErrNotEmpty, name, child.ChildCount())
	}

	if err := dir.Remove(name); err != nil {
		return err
	}
	fs.discardInode(child.inode, child.file)
	if err := fs.maintain(); err != nil {
		return err
	}
	fs.logger.Debug("directory removed", "parent", parent, "name", name, "inode", ordinal)
	return nil
}

// Mknod creates an empty regular file under parent and returns its
// ordinal.
func (fs *Filesystem) Mknod(parent uint64, name string, mode uint16, uid, gid uint32) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, err := loadDirectory(fs, parent)
	if err != nil {
		return 0, err
	}
	if len(name) > MaxNameLen {
		return 0, fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}
	if _, err := dir.Lookup(name); err == nil {
		return 0, fmt.Errorf("%w: %q in directory %d", ErrExists, name, parent)
	}

	ordinal, err := fs.allocInode()
	if err != nil {
		return 0, err
	}
	inode := layout.NewInode(ordinal, layout.TypeRegularFile, mode, uid, gid, fs.clk.Now())
	inode.Metadata[layout.SlotParent] = parent
	if err := fs.cache.PutInode(inode); err != nil {
		return 0, err
	}

	if err := dir.Insert(name, ordinal); err != nil {
		fs.discardInode(inode, nil)
		return 0, err
	}
	if err := fs.maintain(); err != nil {
		return 0, err
	}
	fs.logger.Debug("file created", "parent", parent, "name", name, "inode", ordinal)
	return ordinal, nil
}

// Unlink removes a regular file from parent and releases its inode
// and blocks.
func (fs *Filesystem) Unlink(parent uint64, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, err := loadDirectory(fs, parent)
	if err != nil {
		return err
	}
	ordinal, err := dir.Lookup(name)
	if err != nil {
		return err
	}
	inode, err := fs.loadInode(ordinal)
	if err != nil {
		return err
	}
	if inode.Type != layout.TypeRegularFile {
		return fmt.Errorf("%w: %q", ErrIsDirectory, name)
	}

	if err := dir.Remove(name); err != nil {
		return err
	}
	fs.discardInode(inode, loadByteFile(fs, inode))
	if err := fs.maintain(); err != nil {
		return err
	}
	fs.logger.Debug("file unlinked", "parent", parent, "name", name, "inode", ordinal)
	return nil
}

// Readdir lists the directory's children in payload order.
func (fs *Filesystem) Readdir(ino uint64) ([]DirEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, err := loadDirectory(fs, ino)
	if err != nil {
		return nil, err
	}
	entries := dir.List()
	for i := range entries {
		child, err := fs.loadInode(entries[i].Ino)
		if err != nil {
			return nil, err
		}
		entries[i].Type = child.Type
	}
	return entries, nil
}

// Rename moves an entry between directories (or within one). The
// whole move happens under the filesystem mutex, so no external
// observer can see the entry absent from both directories.
func (fs *Filesystem) Rename(oldParent uint64, oldName string, newParent uint64, newName string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	source, err := loadDirectory(fs, oldParent)
	if err != nil {
		return err
	}

	if oldParent == newParent && oldName == newName {
		_, err := source.Lookup(oldName)
		return err
	}

	if oldParent == newParent {
		if err := source.Rename(oldName, newName); err != nil {
			return err
		}
		return fs.finishRename(source.children[newName], newParent, oldName, newName)
	}

	target, err := loadDirectory(fs, newParent)
	if err != nil {
		return err
	}
	ordinal, err := source.Lookup(oldName)
	if err != nil {
		return err
	}
	if _, err := target.Lookup(newName); err == nil {
		return fmt.Errorf("%w: %q in directory %d", ErrExists, newName, newParent)
	}
	if len(newName) > MaxNameLen {
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(newName))
	}

	if err := source.Remove(oldName); err != nil {
		return err
	}
	if err := target.Insert(newName, ordinal); err != nil {
		// Put the entry back where it was; the rename fails whole.
		if restoreErr := source.Insert(oldName, ordinal); restoreErr != nil {
			fs.logger.Error("rename rollback failed", "inode", ordinal, "error", restoreErr)
		}
		return err
	}
	return fs.finishRename(ordinal, newParent, oldName, newName)
}

// finishRename updates the moved inode: its parent slot, and for a
// directory whose name changed, the name recorded in its own payload.
func (fs *Filesystem) finishRename(ordinal, newParent uint64, oldName, newName string) error {
	inode, err := fs.loadInode(ordinal)
	if err != nil {
		return err
	}
	inode.Metadata[layout.SlotParent] = newParent
	inode.TouchMeta(fs.clk.Now())
	if err := fs.cache.PutInode(inode); err != nil {
		return err
	}

	if inode.Type == layout.TypeDirectory && oldName != newName {
		moved, err := loadDirectory(fs, ordinal)
		if err != nil {
			return err
		}
		if err := moved.setOwnName(newName); err != nil {
			return err
		}
	}
	return fs.maintain()
}

// discardInode releases an inode and its chain after a delete or a
// failed create: the record is marked free (the mark reaches the
// device on the next flush), the payload blocks are returned, and the
// bitmap bit is cleared.
func (fs *Filesystem) discardInode(inode *layout.Inode, file *ByteFile) {
	if file != nil {
		if err := file.Destroy(); err != nil {
			fs.logger.Error("failed to release block chain", "inode", inode.Ordinal, "error", err)
		}
	}
	inode.Type = layout.TypeFree
	inode.Dtime = uint64(fs.clk.Now().Unix())
	if err := fs.cache.PutInode(inode); err != nil {
		fs.logger.Error("failed to store freed inode", "inode", inode.Ordinal, "error", err)
	}
	if err := fs.freeInode(inode.Ordinal); err != nil {
		fs.logger.Error("failed to release inode", "inode", inode.Ordinal, "error", err)
	}
}
