// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the TananFS
// tools.
//
// Configuration is loaded from a single file passed explicitly via
// --config. There are no fallbacks, no home-directory discovery, and
// no environment overrides. The file holds the format and cache
// options; the mkfs flags --block-size, --root-uid and --root-gid win
// over the matching file values, and nothing else influences the
// result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/tananfs/lib/fs"
	"github.com/bureau-foundation/tananfs/lib/layout"
)

// Config carries the recognized mount and format options.
type Config struct {
	// BlockSize is the volume block size used when formatting. Zero
	// means: use the device's sector size when it is a valid block
	// size, else 512.
	BlockSize uint32 `yaml:"block_size"`

	// CacheCapacity is the cache entry limit. Zero means the cache
	// default (131072 entries).
	CacheCapacity int `yaml:"cache_capacity"`

	// FlushIntervalSeconds is the write-back period. Zero means the
	// cache default (1 second).
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`

	// DirtyWatermark forces a flush when more than this many cache
	// entries are dirty. Zero disables the watermark.
	DirtyWatermark int `yaml:"dirty_watermark"`

	// RootUID and RootGID own the root directory of a freshly
	// formatted volume.
	RootUID uint32 `yaml:"root_uid"`
	RootGID uint32 `yaml:"root_gid"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{}
}

// Load reads and validates a configuration file.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	config := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return config, nil
}

// Validate rejects configurations the filesystem would refuse.
func (c Config) Validate() error {
	if c.BlockSize != 0 && !layout.ValidBlockSize(c.BlockSize) {
		return fmt.Errorf("block_size %d: %w", c.BlockSize, layout.ErrInvalidBlockSize)
	}
	if c.CacheCapacity < 0 {
		return errors.New("cache_capacity must not be negative")
	}
	if c.FlushIntervalSeconds < 0 {
		return errors.New("flush_interval_seconds must not be negative")
	}
	if c.DirtyWatermark < 0 {
		return errors.New("dirty_watermark must not be negative")
	}
	return nil
}

// FilesystemOptions translates the configuration into mount options
// for the core.
func (c Config) FilesystemOptions() fs.Options {
	return fs.Options{
		BlockSize:      c.BlockSize,
		CacheCapacity:  c.CacheCapacity,
		FlushInterval:  time.Duration(c.FlushIntervalSeconds) * time.Second,
		DirtyWatermark: c.DirtyWatermark,
		RootUID:        c.RootUID,
		RootGID:        c.RootGID,
	}
}
