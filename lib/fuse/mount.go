// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/bureau-foundation/tananfs/lib/cache"
	"github.com/bureau-foundation/tananfs/lib/clock"
	"github.com/bureau-foundation/tananfs/lib/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Options configures the mount.
type Options struct {
	// Mountpoint is the directory the volume appears under. It is
	// created if missing.
	Mountpoint string

	// Filesystem is the mounted core.
	Filesystem *fs.Filesystem

	// FlushInterval drives the idle-time background flush. Zero
	// uses the cache default.
	FlushInterval time.Duration

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Clock drives the background flush ticker. Nil means the real
	// wall clock.
	Clock clock.Clock

	// Logger receives diagnostic messages. Nil discards them.
	Logger *slog.Logger
}

// Server is a mounted volume: the kernel connection plus the
// background flush loop.
type Server struct {
	fuseServer *fuse.Server
	fsys       *fs.Filesystem
	logger     *slog.Logger
	blockSize  uint32

	ticker *clock.Ticker
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// Mount exposes the filesystem at the configured mountpoint. The
// caller must call Unmount on the returned Server when done.
func Mount(options Options) (*Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Filesystem == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.FlushInterval == 0 {
		options.FlushInterval = cache.DefaultFlushInterval
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	server := &Server{
		fsys:      options.Filesystem,
		logger:    options.Logger,
		blockSize: options.Filesystem.Statfs().BlockSize,
		done:      make(chan struct{}),
	}
	root := &node{server: server, ordinal: fs.RootInode}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	fuseServer, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout: &entryTimeout,
		AttrTimeout:  &attrTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "tananfs",
			Name:       "tananfs",
			AllowOther: options.AllowOther,
		},
		RootStableAttr: &gofuse.StableAttr{Mode: syscall.S_IFDIR, Ino: fs.RootInode},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}
	server.fuseServer = fuseServer

	// Idle volumes still flush within the interval: operations drive
	// the cache's own timer, this loop covers the gaps between them.
	server.ticker = options.Clock.NewTicker(options.FlushInterval)
	go server.flushLoop()

	options.Logger.Info("volume mounted", "mountpoint", options.Mountpoint)
	return server, nil
}

func (s *Server) flushLoop() {
	for {
		select {
		case <-s.ticker.C:
			if err := s.fsys.Flush(); err != nil {
				s.logger.Error("periodic flush failed", "error", err)
			}
		case <-s.done:
			return
		}
	}
}

// Wait blocks until the kernel connection ends (unmount or signal).
func (s *Server) Wait() {
	s.fuseServer.Wait()
}

// Unmount detaches from the kernel, stops the flush loop, and closes
// the core filesystem, flushing everything to the device. Safe to
// call again after an external umount already severed the kernel
// connection; the core still gets closed exactly once.
func (s *Server) Unmount() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.ticker.Stop()
	close(s.done)

	if err := s.fuseServer.Unmount(); err != nil {
		// The kernel side may already be gone (external umount);
		// the volume must still be flushed and released.
		s.logger.Warn("kernel unmount failed", "error", err)
	}
	if err := s.fsys.Unmount(); err != nil {
		return fmt.Errorf("closing volume: %w", err)
	}
	s.logger.Info("volume unmounted")
	return nil
}
