// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall-clock access for testability.
// Production code injects Real(); tests inject Fake() and advance
// time deterministically. Code that would otherwise call time.Now or
// time.NewTicker takes a Clock parameter (or holds one in a struct
// field) instead.
package clock

import "time"

// Clock provides the time operations the filesystem needs: reading
// the current time for timestamps and flush-interval accounting, and
// periodic ticks for background cache maintenance.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker that delivers ticks on its C
	// channel at the given interval. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. Read ticks from C; call Stop when
// the Ticker is no longer needed. The C channel has capacity 1: if
// the consumer falls behind, ticks are dropped rather than queued.
type Ticker struct {
	// C delivers ticks.
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. No more ticks are sent on C after Stop
// returns. Stop does not close C.
func (t *Ticker) Stop() { t.stopFunc() }
