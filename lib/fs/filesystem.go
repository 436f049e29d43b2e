// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/tananfs/lib/bitmap"
	"github.com/bureau-foundation/tananfs/lib/blockdev"
	"github.com/bureau-foundation/tananfs/lib/cache"
	"github.com/bureau-foundation/tananfs/lib/clock"
	"github.com/bureau-foundation/tananfs/lib/layout"
)

// RootInode is the ordinal of the root directory. It is always 0,
// and the root is its own parent.
const RootInode uint64 = 0

// RootName is the name recorded in the root directory's own payload.
const RootName = "root"

// Options configures a mount.
type Options struct {
	// BlockSize is used when the device is not yet formatted. Zero
	// picks 512.
	BlockSize uint32

	// CacheCapacity is the cache entry limit. Zero picks the cache
	// default.
	CacheCapacity int

	// FlushInterval is the write-back period. Zero picks the cache
	// default.
	FlushInterval time.Duration

	// DirtyWatermark forces a cache flush when more than this many
	// entries are dirty. Zero disables it.
	DirtyWatermark int

	// RootUID and RootGID own the root directory when the device is
	// formatted by this mount.
	RootUID uint32
	RootGID uint32

	// Clock supplies timestamps and drives the flush interval. Nil
	// means the real wall clock.
	Clock clock.Clock

	// Logger receives operational diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Stats is the statfs result.
type Stats struct {
	BlockSize   uint32
	TotalInodes uint64
	FreeInodes  uint64
	TotalBlocks uint64
	FreeBlocks  uint64
}

// DirEntry is one readdir row.
type DirEntry struct {
	Name string
	Ino  uint64
	Type layout.FileType
}

// SetattrPatch names the inode fields Setattr may change. Nil fields
// are left alone.
type SetattrPatch struct {
	Mode *uint16
	UID  *uint32
	GID  *uint32
	// Size delegates to Truncate.
	Size *uint64
}

// Filesystem composes the device, superblock, bitmaps, and cache into
// the API the driver shim consumes. A single mutex serializes every
// operation.
type Filesystem struct {
	mu sync.Mutex

	device      blockdev.Device
	super       *layout.Superblock
	inodeBitmap *bitmap.Bitmap
	blockBitmap *bitmap.Bitmap
	cache       *cache.Cache
	clk         clock.Clock
	logger      *slog.Logger

	flushInterval time.Duration
	lastMetaSync  time.Time
}

// Mount opens the volume on device, formatting it first when no
// superblock is found.
func Mount(device blockdev.Device, options Options) (*Filesystem, error) {
	super, err := layout.Detect(device)
	if errors.Is(err, layout.ErrNotFormatted) {
		return Format(device, options)
	}
	if err != nil {
		return nil, err
	}

	fs, err := assemble(device, super, options)
	if err != nil {
		return nil, err
	}

	if err := fs.loadBitmaps(); err != nil {
		return nil, err
	}
	fs.logger.Info("volume mounted",
		"block_size", super.BlockSize,
		"inodes", super.InodeCount,
		"blocks", super.BlockCount,
		"free_blocks", super.FreeBlocks,
	)
	return fs, nil
}

// Format writes a fresh volume onto device: zeroed bitmaps, full free
// counters, and an empty root directory at inode 0 named "root",
// owned by the configured root uid/gid.
func Format(device blockdev.Device, options Options) (*Filesystem, error) {
	blockSize := options.BlockSize
	if blockSize == 0 {
		blockSize = 512
	}
	super, err := layout.NewSuperblock(device.Size(), blockSize)
	if err != nil {
		return nil, err
	}

	fs, err := assemble(device, super, options)
	if err != nil {
		return nil, err
	}

	if err := fs.createRoot(options.RootUID, options.RootGID); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}
	if err := fs.syncAll(); err != nil {
		return nil, err
	}
	fs.logger.Info("volume formatted",
		"block_size", super.BlockSize,
		"inodes", super.InodeCount,
		"blocks", super.BlockCount,
	)
	return fs, nil
}

func assemble(device blockdev.Device, super *layout.Superblock, options Options) (*Filesystem, error) {
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	flushInterval := options.FlushInterval
	if flushInterval == 0 {
		flushInterval = cache.DefaultFlushInterval
	}

	fs := &Filesystem{
		device:        device,
		super:         super,
		inodeBitmap:   bitmap.New(super.InodeCount),
		blockBitmap:   bitmap.New(super.BlockCount),
		clk:           clk,
		logger:        logger,
		flushInterval: flushInterval,
		lastMetaSync:  clk.Now(),
	}
	fs.cache = cache.New(device, super, clk, cache.Config{
		Capacity:       options.CacheCapacity,
		FlushInterval:  flushInterval,
		DirtyWatermark: options.DirtyWatermark,
		Logger:         logger,
	})
	return fs, nil
}

// createRoot allocates inode 0 and writes the root directory's own
// name into its payload.
func (fs *Filesystem) createRoot(uid, gid uint32) error {
	ordinal, err := fs.allocInode()
	if err != nil {
		return err
	}
	if ordinal != RootInode {
		return fmt.Errorf("fresh volume allocated inode %d for root, want %d", ordinal, RootInode)
	}

	inode := layout.NewInode(RootInode, layout.TypeDirectory, 0o750, uid, gid, fs.clk.Now())
	inode.Metadata[layout.SlotParent] = RootInode
	inode.Metadata[layout.SlotChildCount] = 0
	inode.Metadata[layout.SlotNameLen] = uint64(len(RootName))
	if err := fs.cache.PutInode(inode); err != nil {
		return err
	}

	file := loadByteFile(fs, inode)
	if err := file.Write([]byte(RootName)); err != nil {
		return err
	}
	return nil
}

// loadBitmaps reads both bitmaps from their on-disk regions.
func (fs *Filesystem) loadBitmaps() error {
	inodeRaw := make([]byte, fs.super.InodeBitmapLen())
	if err := fs.device.ReadAt(inodeRaw, int64(fs.super.BitmapRegionStart())); err != nil {
		return fmt.Errorf("reading inode bitmap: %w", err)
	}
	if err := fs.inodeBitmap.Deserialize(inodeRaw); err != nil {
		return err
	}

	blockRaw := make([]byte, fs.super.BlockBitmapLen())
	if err := fs.device.ReadAt(blockRaw, int64(fs.super.BlockBitmapStart())); err != nil {
		return fmt.Errorf("reading block bitmap: %w", err)
	}
	return fs.blockBitmap.Deserialize(blockRaw)
}

// syncAll flushes the cache and writes the superblock and both
// bitmaps directly to the device. This is the only direct device
// write path outside the cache.
func (fs *Filesystem) syncAll() error {
	if err := fs.cache.Flush(); err != nil {
		return err
	}
	if err := fs.super.Flush(fs.device); err != nil {
		return err
	}
	if err := fs.device.WriteAt(fs.inodeBitmap.Serialize(), int64(fs.super.BitmapRegionStart())); err != nil {
		return fmt.Errorf("writing inode bitmap: %w", err)
	}
	if err := fs.device.WriteAt(fs.blockBitmap.Serialize(), int64(fs.super.BlockBitmapStart())); err != nil {
		return fmt.Errorf("writing block bitmap: %w", err)
	}
	fs.lastMetaSync = fs.clk.Now()
	return nil
}

// maintain runs at the end of every operation: cache upkeep always,
// and a full metadata sync once per flush interval so that a crash
// loses at most one interval of allocation state.
func (fs *Filesystem) maintain() error {
	now := fs.clk.Now()
	if err := fs.cache.Maintain(now); err != nil {
		return err
	}
	if now.Sub(fs.lastMetaSync) >= fs.flushInterval {
		return fs.syncAll()
	}
	return nil
}

// allocInode claims the first free inode ordinal.
func (fs *Filesystem) allocInode() (uint64, error) {
	ordinal, err := fs.inodeBitmap.Allocate()
	if err != nil {
		if errors.Is(err, bitmap.ErrExhausted) {
			return 0, fmt.Errorf("%w: inodes", ErrOutOfSpace)
		}
		return 0, err
	}
	fs.super.FreeInodes--
	return ordinal, nil
}

// freeInode releases an inode ordinal. The cached record is kept:
// deletion marks it TypeFree, and that mark still has to reach the
// device on the next flush.
func (fs *Filesystem) freeInode(ordinal uint64) error {
	if err := fs.inodeBitmap.Free(ordinal); err != nil {
		if errors.Is(err, bitmap.ErrDoubleFree) {
			return fmt.Errorf("%w: inode %d released twice", ErrCorruptChain, ordinal)
		}
		return err
	}
	fs.super.FreeInodes++
	return nil
}

// allocBlock claims the first free block ordinal.
func (fs *Filesystem) allocBlock() (uint64, error) {
	ordinal, err := fs.blockBitmap.Allocate()
	if err != nil {
		if errors.Is(err, bitmap.ErrExhausted) {
			return 0, fmt.Errorf("%w: blocks", ErrOutOfSpace)
		}
		return 0, err
	}
	fs.super.FreeBlocks--
	return ordinal, nil
}

// freeBlock releases a block ordinal and drops any cached copy.
func (fs *Filesystem) freeBlock(ordinal uint64) error {
	if err := fs.blockBitmap.Free(ordinal); err != nil {
		if errors.Is(err, bitmap.ErrDoubleFree) {
			return fmt.Errorf("%w: block %d released twice", ErrCorruptChain, ordinal)
		}
		return err
	}
	fs.super.FreeBlocks++
	fs.cache.DropBlock(ordinal)
	return nil
}

// loadInode fetches a live inode through the cache. Ordinals whose
// bitmap bit is clear are ErrNotFound; a stored record contradicting
// its ordinal is a corruption.
func (fs *Filesystem) loadInode(ordinal uint64) (*layout.Inode, error) {
	set, err := fs.inodeBitmap.IsSet(ordinal)
	if err != nil {
		return nil, fmt.Errorf("%w: inode %d", ErrNotFound, ordinal)
	}
	if !set {
		return nil, fmt.Errorf("%w: inode %d", ErrNotFound, ordinal)
	}
	inode, err := fs.cache.GetInode(ordinal)
	if err != nil {
		return nil, err
	}
	if inode.Ordinal != ordinal || inode.Type == layout.TypeFree {
		return nil, fmt.Errorf("%w: inode %d record disagrees with its slot", ErrCorruptChain, ordinal)
	}
	return inode, nil
}

// Statfs reports geometry and free counts from the superblock.
func (fs *Filesystem) Statfs() Stats {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return Stats{
		BlockSize:   fs.super.BlockSize,
		TotalInodes: fs.super.InodeCount,
		FreeInodes:  fs.super.FreeInodes,
		TotalBlocks: fs.super.BlockCount,
		FreeBlocks:  fs.super.FreeBlocks,
	}
}

// Getattr returns a copy of the inode record.
func (fs *Filesystem) Getattr(ino uint64) (*layout.Inode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.loadInode(ino)
}

// Setattr applies a patch to the inode's mode, ownership, or size.
// Size changes delegate to truncation.
func (fs *Filesystem) Setattr(ino uint64, patch SetattrPatch) (*layout.Inode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode, err := fs.loadInode(ino)
	if err != nil {
		return nil, err
	}

	if patch.Size != nil && *patch.Size != inode.Size {
		if inode.Type != layout.TypeRegularFile {
			return nil, fmt.Errorf("%w: inode %d", ErrIsDirectory, ino)
		}
		file := loadByteFile(fs, inode)
		if err := file.Truncate(*patch.Size); err != nil {
			return nil, err
		}
	}
	if patch.Mode != nil {
		inode.Mode = *patch.Mode
	}
	if patch.UID != nil {
		inode.UID = *patch.UID
	}
	if patch.GID != nil {
		inode.GID = *patch.GID
	}
	inode.TouchMeta(fs.clk.Now())
	if err := fs.cache.PutInode(inode); err != nil {
		return nil, err
	}
	if err := fs.maintain(); err != nil {
		return nil, err
	}
	out := *inode
	return &out, nil
}

// Access always succeeds; permissions are recorded, not enforced.
func (fs *Filesystem) Access(ino uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, err := fs.loadInode(ino)
	return err
}

// Flush forces every dirty cache entry, the superblock, and the
// bitmaps to the device.
func (fs *Filesystem) Flush() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.syncAll()
}

// Fsync is Flush plus a device barrier.
func (fs *Filesystem) Fsync() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.syncAll(); err != nil {
		return err
	}
	return fs.device.Sync()
}

// Unmount flushes everything and releases the device. The filesystem
// must not be used afterwards.
func (fs *Filesystem) Unmount() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.cache.Close(); err != nil {
		return err
	}
	if err := fs.syncAll(); err != nil {
		return err
	}
	if err := fs.device.Sync(); err != nil {
		return err
	}
	fs.logger.Info("volume unmounted")
	return fs.device.Close()
}

// ReadRawBlock returns a copy of an allocated block's raw bytes, for
// inspection tools.
func (fs *Filesystem) ReadRawBlock(ordinal uint64) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	set, err := fs.blockBitmap.IsSet(ordinal)
	if err != nil || !set {
		return nil, fmt.Errorf("%w: block %d", ErrNotFound, ordinal)
	}
	return fs.cache.GetBlock(ordinal)
}

// Superblock returns a copy of the current superblock, for inspection
// tools.
func (fs *Filesystem) Superblock() layout.Superblock {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return *fs.super
}
