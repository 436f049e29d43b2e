// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"testing"
	"time"

	"github.com/bureau-foundation/tananfs/lib/blockdev"
	"github.com/bureau-foundation/tananfs/lib/clock"
)

// newTestFS formats a fresh in-memory volume. The fake clock keeps
// flush timing deterministic; tests advance it explicitly.
func newTestFS(t *testing.T, size int64, blockSize uint32) (*Filesystem, *blockdev.MemDevice, *clock.FakeClock) {
	t.Helper()
	device := blockdev.NewMem(size)
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	fsys, err := Format(device, Options{
		BlockSize: blockSize,
		Clock:     fakeClock,
	})
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	return fsys, device, fakeClock
}

// requireClean fails the test when the invariant audit finds
// anything.
func requireClean(t *testing.T, fsys *Filesystem) {
	t.Helper()
	findings, err := fsys.Check()
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	for _, finding := range findings {
		t.Errorf("invariant violated: %s", finding)
	}
}
