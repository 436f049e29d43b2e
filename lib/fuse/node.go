// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"errors"
	"syscall"

	"github.com/bureau-foundation/tananfs/lib/fs"
	"github.com/bureau-foundation/tananfs/lib/layout"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// node represents one core inode to the kernel. The same node type
// serves files and directories; the core decides what each operation
// means for the inode's actual type.
type node struct {
	gofuse.Inode
	server  *Server
	ordinal uint64
}

var _ gofuse.InodeEmbedder = (*node)(nil)
var _ gofuse.NodeLookuper = (*node)(nil)
var _ gofuse.NodeGetattrer = (*node)(nil)
var _ gofuse.NodeSetattrer = (*node)(nil)
var _ gofuse.NodeReaddirer = (*node)(nil)
var _ gofuse.NodeMkdirer = (*node)(nil)
var _ gofuse.NodeRmdirer = (*node)(nil)
var _ gofuse.NodeMknoder = (*node)(nil)
var _ gofuse.NodeCreater = (*node)(nil)
var _ gofuse.NodeUnlinker = (*node)(nil)
var _ gofuse.NodeRenamer = (*node)(nil)
var _ gofuse.NodeOpener = (*node)(nil)
var _ gofuse.NodeOpendirer = (*node)(nil)
var _ gofuse.NodeReader = (*node)(nil)
var _ gofuse.NodeWriter = (*node)(nil)
var _ gofuse.NodeFlusher = (*node)(nil)
var _ gofuse.NodeFsyncer = (*node)(nil)
var _ gofuse.NodeAllocater = (*node)(nil)
var _ gofuse.NodeStatfser = (*node)(nil)

// fillAttr translates an inode record into the kernel's attribute
// shape.
func (n *node) fillAttr(inode *layout.Inode, out *fuse.Attr) {
	mode := uint32(inode.Mode)
	switch inode.Type {
	case layout.TypeDirectory:
		mode |= syscall.S_IFDIR
	default:
		mode |= syscall.S_IFREG
	}
	out.Ino = inode.Ordinal
	out.Mode = mode
	out.Nlink = 1
	out.Size = inode.Size
	out.Blocks = inode.BlockCount
	out.Blksize = n.server.blockSize
	out.Atime = inode.Atime
	out.Mtime = inode.MtimeData
	out.Ctime = inode.MtimeMeta
	out.Owner = fuse.Owner{Uid: inode.UID, Gid: inode.GID}
}

// childInode wraps a core ordinal as a kernel inode, reusing a live
// node when the kernel already knows the child.
func (n *node) childInode(ctx context.Context, inode *layout.Inode) *gofuse.Inode {
	mode := uint32(syscall.S_IFREG)
	if inode.Type == layout.TypeDirectory {
		mode = syscall.S_IFDIR
	}
	child := &node{server: n.server, ordinal: inode.Ordinal}
	return n.NewInode(ctx, child, gofuse.StableAttr{Mode: mode, Ino: inode.Ordinal})
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	ordinal, err := n.server.fsys.Lookup(n.ordinal, name)
	if err != nil {
		return nil, errnoFrom(err)
	}
	inode, err := n.server.fsys.Getattr(ordinal)
	if err != nil {
		return nil, errnoFrom(err)
	}
	n.fillAttr(inode, &out.Attr)
	return n.childInode(ctx, inode), 0
}

func (n *node) Getattr(_ context.Context, _ gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	inode, err := n.server.fsys.Getattr(n.ordinal)
	if err != nil {
		return errnoFrom(err)
	}
	n.fillAttr(inode, &out.Attr)
	return 0
}

func (n *node) Setattr(_ context.Context, _ gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	var patch fs.SetattrPatch
	if mode, ok := in.GetMode(); ok {
		value := uint16(mode & 0o7777)
		patch.Mode = &value
	}
	if uid, ok := in.GetUID(); ok {
		patch.UID = &uid
	}
	if gid, ok := in.GetGID(); ok {
		patch.GID = &gid
	}
	if size, ok := in.GetSize(); ok {
		patch.Size = &size
	}

	inode, err := n.server.fsys.Setattr(n.ordinal, patch)
	if err != nil {
		return errnoFrom(err)
	}
	n.fillAttr(inode, &out.Attr)
	return 0
}

func (n *node) Readdir(_ context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, err := n.server.fsys.Readdir(n.ordinal)
	if err != nil {
		return nil, errnoFrom(err)
	}

	listing := make([]fuse.DirEntry, 0, len(entries))
	for _, entry := range entries {
		mode := uint32(syscall.S_IFREG)
		if entry.Type == layout.TypeDirectory {
			mode = syscall.S_IFDIR
		}
		listing = append(listing, fuse.DirEntry{Name: entry.Name, Ino: entry.Ino, Mode: mode})
	}
	return gofuse.NewListDirStream(listing), 0
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	caller := callerOwner(ctx)
	ordinal, err := n.server.fsys.Mkdir(n.ordinal, name, uint16(mode&0o7777), caller.Uid, caller.Gid)
	if err != nil {
		return nil, errnoFrom(err)
	}
	inode, err := n.server.fsys.Getattr(ordinal)
	if err != nil {
		return nil, errnoFrom(err)
	}
	n.fillAttr(inode, &out.Attr)
	return n.childInode(ctx, inode), 0
}

func (n *node) Rmdir(_ context.Context, name string) syscall.Errno {
	return errnoFrom(n.server.fsys.Rmdir(n.ordinal, name))
}

func (n *node) Mknod(ctx context.Context, name string, mode uint32, _ uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	caller := callerOwner(ctx)
	ordinal, err := n.server.fsys.Mknod(n.ordinal, name, uint16(mode&0o7777), caller.Uid, caller.Gid)
	if err != nil {
		return nil, errnoFrom(err)
	}
	inode, err := n.server.fsys.Getattr(ordinal)
	if err != nil {
		return nil, errnoFrom(err)
	}
	n.fillAttr(inode, &out.Attr)
	return n.childInode(ctx, inode), 0
}

func (n *node) Create(ctx context.Context, name string, _ uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	child, errno := n.Mknod(ctx, name, mode, 0, out)
	if errno != 0 {
		return nil, nil, 0, errno
	}
	return child, nil, 0, 0
}

func (n *node) Unlink(_ context.Context, name string) syscall.Errno {
	return errnoFrom(n.server.fsys.Unlink(n.ordinal, name))
}

func (n *node) Rename(_ context.Context, name string, newParent gofuse.InodeEmbedder, newName string, _ uint32) syscall.Errno {
	target, ok := newParent.(*node)
	if !ok {
		return syscall.EXDEV
	}
	return errnoFrom(n.server.fsys.Rename(n.ordinal, name, target.ordinal, newName))
}

// Open hands out a zero-valued handle; the core keeps no per-handle
// state.
func (n *node) Open(_ context.Context, _ uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	inode, err := n.server.fsys.Getattr(n.ordinal)
	if err != nil {
		return nil, 0, errnoFrom(err)
	}
	if inode.Type != layout.TypeRegularFile {
		return nil, 0, syscall.EISDIR
	}
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (n *node) Opendir(_ context.Context) syscall.Errno {
	inode, err := n.server.fsys.Getattr(n.ordinal)
	if err != nil {
		return errnoFrom(err)
	}
	if inode.Type != layout.TypeDirectory {
		return syscall.ENOTDIR
	}
	return 0
}

func (n *node) Read(_ context.Context, _ gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := n.server.fsys.Read(n.ordinal, uint64(off), uint64(len(dest)))
	if err != nil {
		// Reading at or past the end of the file is EOF to the
		// kernel, not an error.
		if errors.Is(err, fs.ErrOutOfRange) {
			return fuse.ReadResultData(nil), 0
		}
		return nil, errnoFrom(err)
	}
	return fuse.ReadResultData(data), 0
}

func (n *node) Write(_ context.Context, _ gofuse.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	written, err := n.server.fsys.Write(n.ordinal, uint64(off), data)
	if err != nil {
		return 0, errnoFrom(err)
	}
	return uint32(written), 0
}

func (n *node) Flush(_ context.Context, _ gofuse.FileHandle) syscall.Errno {
	return errnoFrom(n.server.fsys.Flush())
}

func (n *node) Fsync(_ context.Context, _ gofuse.FileHandle, _ uint32) syscall.Errno {
	return errnoFrom(n.server.fsys.Fsync())
}

func (n *node) Allocate(_ context.Context, _ gofuse.FileHandle, off uint64, size uint64, _ uint32) syscall.Errno {
	return errnoFrom(n.server.fsys.Fallocate(n.ordinal, off+size))
}

func (n *node) Statfs(_ context.Context, out *fuse.StatfsOut) syscall.Errno {
	stats := n.server.fsys.Statfs()
	out.Bsize = stats.BlockSize
	out.Frsize = stats.BlockSize
	out.Blocks = stats.TotalBlocks
	out.Bfree = stats.FreeBlocks
	out.Bavail = stats.FreeBlocks
	out.Files = stats.TotalInodes
	out.Ffree = stats.FreeInodes
	out.NameLen = fs.MaxNameLen
	return 0
}

// callerOwner extracts the requesting process's uid/gid so new files
// are owned by their creator.
func callerOwner(ctx context.Context) fuse.Owner {
	if caller, ok := fuse.FromContext(ctx); ok {
		return caller.Owner
	}
	return fuse.Owner{}
}
