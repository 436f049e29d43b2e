// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache implements the write-back LRU cache that sits between
// the filesystem and the block device.
//
// The cache spans two key namespaces, block ordinals and inode
// ordinals, in one LRU. Reads return copies, so a caller can never
// mutate cache residency behind the cache's back: the only way to
// change cached state is PutBlock/PutInode, which mark the entry
// dirty. Dirty entries reach the device on the periodic flush, when
// the dirty watermark trips, when an over-capacity dirty entry is
// evicted, and on Close.
//
// Every filesystem-level read and write goes through here; the only
// direct device I/O in the system is the superblock and the bitmaps,
// read at mount and written on every filesystem sync (flush, fsync,
// the periodic sync, format and unmount).
package cache

import (
	"container/list"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/tananfs/lib/blockdev"
	"github.com/bureau-foundation/tananfs/lib/clock"
	"github.com/bureau-foundation/tananfs/lib/layout"
)

// DefaultCapacity is the default entry limit across both namespaces.
const DefaultCapacity = 131072

// DefaultFlushInterval is the default wall-clock period between
// write-backs of dirty entries.
const DefaultFlushInterval = time.Second

// Config tunes the cache.
type Config struct {
	// Capacity is the entry limit across blocks and inodes
	// together. Zero means DefaultCapacity.
	Capacity int

	// FlushInterval is the wall-clock period between write-backs.
	// Zero means DefaultFlushInterval.
	FlushInterval time.Duration

	// DirtyWatermark forces a flush whenever more than this many
	// entries are dirty. Zero disables the watermark.
	DirtyWatermark int

	// Logger receives eviction and flush diagnostics. Nil discards
	// them.
	Logger *slog.Logger
}

type entryKind uint8

const (
	kindBlock entryKind = iota
	kindInode
)

type entry struct {
	kind    entryKind
	ordinal uint64
	// block holds the raw block for kindBlock entries.
	block []byte
	// inode holds the record for kindInode entries.
	inode layout.Inode
	dirty bool
	elem  *list.Element
}

// Cache is the write-back LRU. It is not safe for concurrent use; the
// filesystem serializes access under its operation mutex.
type Cache struct {
	device blockdev.Device
	super  *layout.Superblock
	clk    clock.Clock
	config Config
	logger *slog.Logger

	blocks map[uint64]*entry
	inodes map[uint64]*entry
	// lru orders entries most-recently-used first; eviction and
	// flush both walk it from the back.
	lru        *list.List
	dirtyCount int
	lastFlush  time.Time
}

// New builds a cache over the given device and volume geometry.
func New(device blockdev.Device, super *layout.Superblock, clk clock.Clock, config Config) *Cache {
	if config.Capacity == 0 {
		config.Capacity = DefaultCapacity
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		device:    device,
		super:     super,
		clk:       clk,
		config:    config,
		logger:    logger,
		blocks:    make(map[uint64]*entry),
		inodes:    make(map[uint64]*entry),
		lru:       list.New(),
		lastFlush: clk.Now(),
	}
}

// GetBlock returns a copy of the block with the given ordinal,
// reading it from the device on a miss.
func (c *Cache) GetBlock(ordinal uint64) ([]byte, error) {
	if e, ok := c.blocks[ordinal]; ok {
		c.lru.MoveToFront(e.elem)
		out := make([]byte, len(e.block))
		copy(out, e.block)
		return out, nil
	}

	position, err := c.super.BlockPosition(ordinal)
	if err != nil {
		return nil, err
	}
	data := make([]byte, c.super.BlockSize)
	if err := c.device.ReadAt(data, int64(position)); err != nil {
		return nil, fmt.Errorf("cache: reading block %d: %w", ordinal, err)
	}

	e := &entry{kind: kindBlock, ordinal: ordinal, block: data}
	e.elem = c.lru.PushFront(e)
	c.blocks[ordinal] = e

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// PutBlock stores a block, overwriting any cached version, and marks
// it dirty. The data is copied.
func (c *Cache) PutBlock(ordinal uint64, data []byte) error {
	if uint32(len(data)) != c.super.BlockSize {
		return fmt.Errorf("cache: block %d is %d bytes, want %d", ordinal, len(data), c.super.BlockSize)
	}
	if _, err := c.super.BlockPosition(ordinal); err != nil {
		return err
	}

	if e, ok := c.blocks[ordinal]; ok {
		copy(e.block, data)
		if !e.dirty {
			e.dirty = true
			c.dirtyCount++
		}
		c.lru.MoveToFront(e.elem)
		return nil
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	e := &entry{kind: kindBlock, ordinal: ordinal, block: stored, dirty: true}
	e.elem = c.lru.PushFront(e)
	c.blocks[ordinal] = e
	c.dirtyCount++
	return nil
}

// GetInode returns a copy of the inode with the given ordinal,
// reading it from the device on a miss.
func (c *Cache) GetInode(ordinal uint64) (*layout.Inode, error) {
	if e, ok := c.inodes[ordinal]; ok {
		c.lru.MoveToFront(e.elem)
		out := e.inode
		return &out, nil
	}

	position, err := c.super.InodePosition(ordinal)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, layout.InodeLen)
	if err := c.device.ReadAt(raw, int64(position)); err != nil {
		return nil, fmt.Errorf("cache: reading inode %d: %w", ordinal, err)
	}
	inode, err := layout.DecodeInode(raw)
	if err != nil {
		return nil, err
	}

	e := &entry{kind: kindInode, ordinal: ordinal, inode: *inode}
	e.elem = c.lru.PushFront(e)
	c.inodes[ordinal] = e

	out := e.inode
	return &out, nil
}

// PutInode stores an inode, overwriting any cached version, and marks
// it dirty. The record is copied.
func (c *Cache) PutInode(inode *layout.Inode) error {
	if _, err := c.super.InodePosition(inode.Ordinal); err != nil {
		return err
	}

	if e, ok := c.inodes[inode.Ordinal]; ok {
		e.inode = *inode
		if !e.dirty {
			e.dirty = true
			c.dirtyCount++
		}
		c.lru.MoveToFront(e.elem)
		return nil
	}

	e := &entry{kind: kindInode, ordinal: inode.Ordinal, inode: *inode, dirty: true}
	e.elem = c.lru.PushFront(e)
	c.inodes[inode.Ordinal] = e
	c.dirtyCount++
	return nil
}

// DropBlock removes a block from the cache without writing it back.
// Truncation uses it to discard cached copies of freed blocks.
func (c *Cache) DropBlock(ordinal uint64) {
	if e, ok := c.blocks[ordinal]; ok {
		c.removeEntry(e)
	}
}

// DropInode removes an inode from the cache without writing it back.
func (c *Cache) DropInode(ordinal uint64) {
	if e, ok := c.inodes[ordinal]; ok {
		c.removeEntry(e)
	}
}

// Maintain runs the periodic duties: flush when the interval has
// elapsed or the dirty watermark is exceeded, then evict back down to
// capacity, least recently used first. Dirty evictees are written to
// the device before they are dropped.
func (c *Cache) Maintain(now time.Time) error {
	if now.Sub(c.lastFlush) >= c.config.FlushInterval {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	if c.config.DirtyWatermark > 0 && c.dirtyCount > c.config.DirtyWatermark {
		c.logger.Debug("dirty watermark exceeded", "dirty", c.dirtyCount, "watermark", c.config.DirtyWatermark)
		if err := c.Flush(); err != nil {
			return err
		}
	}

	for c.lru.Len() > c.config.Capacity {
		oldest := c.lru.Back().Value.(*entry)
		if oldest.dirty {
			if err := c.writeEntry(oldest); err != nil {
				return err
			}
			oldest.dirty = false
			c.dirtyCount--
		}
		c.removeEntry(oldest)
	}
	return nil
}

// Flush writes every dirty entry to the device in last-access
// ascending order and resets the flush timer.
func (c *Cache) Flush() error {
	flushed := 0
	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		e := elem.Value.(*entry)
		if !e.dirty {
			continue
		}
		if err := c.writeEntry(e); err != nil {
			return err
		}
		e.dirty = false
		flushed++
	}
	c.dirtyCount = 0
	c.lastFlush = c.clk.Now()
	if flushed > 0 {
		c.logger.Debug("cache flushed", "entries", flushed)
	}
	return nil
}

// Close flushes dirty entries and drops everything. The cache is
// empty but still usable afterwards; the filesystem discards it on
// unmount.
func (c *Cache) Close() error {
	if err := c.Flush(); err != nil {
		return err
	}
	c.blocks = make(map[uint64]*entry)
	c.inodes = make(map[uint64]*entry)
	c.lru.Init()
	c.dirtyCount = 0
	return nil
}

// Len returns the number of cached entries across both namespaces.
func (c *Cache) Len() int { return c.lru.Len() }

// DirtyLen returns the number of dirty entries.
func (c *Cache) DirtyLen() int { return c.dirtyCount }

func (c *Cache) writeEntry(e *entry) error {
	switch e.kind {
	case kindBlock:
		position, err := c.super.BlockPosition(e.ordinal)
		if err != nil {
			return err
		}
		if err := c.device.WriteAt(e.block, int64(position)); err != nil {
			return fmt.Errorf("cache: writing block %d: %w", e.ordinal, err)
		}
	case kindInode:
		position, err := c.super.InodePosition(e.ordinal)
		if err != nil {
			return err
		}
		if err := c.device.WriteAt(e.inode.Encode(), int64(position)); err != nil {
			return fmt.Errorf("cache: writing inode %d: %w", e.ordinal, err)
		}
	}
	return nil
}

func (c *Cache) removeEntry(e *entry) {
	c.lru.Remove(e.elem)
	if e.dirty {
		c.dirtyCount--
	}
	switch e.kind {
	case kindBlock:
		delete(c.blocks, e.ordinal)
	case kindInode:
		delete(c.inodes, e.ordinal)
	}
}
