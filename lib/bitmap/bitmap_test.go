// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bitmap

import (
	"errors"
	"testing"
)

func TestSerializedLen(t *testing.T) {
	cases := []struct {
		count uint64
		want  uint64
	}{
		{0, 128},
		{1, 128},
		{1024, 128},
		{1025, 256},
		{4096, 512},
		{8192, 1024},
		{8200, 2048},
		{100_000, 16384},
	}
	for _, c := range cases {
		if got := SerializedLen(c.count); got != c.want {
			t.Errorf("SerializedLen(%d) = %d, want %d", c.count, got, c.want)
		}
	}
}

func TestAllocateOrder(t *testing.T) {
	b := New(200)
	for i := uint64(0); i < 200; i++ {
		index, err := b.Allocate()
		if err != nil {
			t.Fatalf("Allocate #%d failed: %v", i, err)
		}
		if index != i {
			t.Fatalf("Allocate #%d = %d, want %d", i, index, i)
		}
	}
	if _, err := b.Allocate(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("Allocate on full bitmap: got %v, want ErrExhausted", err)
	}
}

func TestAllocateReusesLowestFreed(t *testing.T) {
	b := New(1000)
	for i := 0; i < 300; i++ {
		if _, err := b.Allocate(); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Free(77); err != nil {
		t.Fatal(err)
	}
	if err := b.Free(250); err != nil {
		t.Fatal(err)
	}

	index, err := b.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if index != 77 {
		t.Errorf("Allocate after frees = %d, want 77", index)
	}
	index, err = b.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if index != 250 {
		t.Errorf("second Allocate after frees = %d, want 250", index)
	}
}

func TestFreeErrors(t *testing.T) {
	b := New(100)
	if err := b.Free(5); !errors.Is(err, ErrDoubleFree) {
		t.Errorf("Free of clear bit: got %v, want ErrDoubleFree", err)
	}
	if err := b.Free(100); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Free out of range: got %v, want ErrOutOfRange", err)
	}

	if err := b.Set(5); err != nil {
		t.Fatal(err)
	}
	if err := b.Free(5); err != nil {
		t.Errorf("Free of set bit failed: %v", err)
	}
	if err := b.Free(5); !errors.Is(err, ErrDoubleFree) {
		t.Errorf("second Free: got %v, want ErrDoubleFree", err)
	}
}

func TestIsSetAndPopcount(t *testing.T) {
	b := New(5000)
	for _, index := range []uint64{0, 63, 64, 100, 4999} {
		if err := b.Set(index); err != nil {
			t.Fatal(err)
		}
	}
	if got := b.Popcount(); got != 5 {
		t.Errorf("Popcount = %d, want 5", got)
	}

	set, err := b.IsSet(63)
	if err != nil || !set {
		t.Errorf("IsSet(63) = %v, %v; want true", set, err)
	}
	set, err = b.IsSet(62)
	if err != nil || set {
		t.Errorf("IsSet(62) = %v, %v; want false", set, err)
	}
	if _, err := b.IsSet(5000); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("IsSet out of range: got %v, want ErrOutOfRange", err)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	b := New(3000)
	for _, index := range []uint64{1, 2, 500, 1024, 2999} {
		if err := b.Set(index); err != nil {
			t.Fatal(err)
		}
	}

	data := b.Serialize()
	if uint64(len(data)) != SerializedLen(3000) {
		t.Fatalf("serialized length = %d, want %d", len(data), SerializedLen(3000))
	}

	// Bit i must land in byte i/8 at position i%8.
	if data[0]&0b0110 != 0b0110 {
		t.Errorf("bits 1,2 not set in byte 0: %08b", data[0])
	}
	if data[62]&(1<<4) == 0 {
		t.Errorf("bit 500 not set in byte 62: %08b", data[62])
	}

	loaded := New(3000)
	if err := loaded.Deserialize(data); err != nil {
		t.Fatal(err)
	}
	if loaded.Popcount() != b.Popcount() {
		t.Errorf("popcount after round-trip = %d, want %d", loaded.Popcount(), b.Popcount())
	}
	for _, index := range []uint64{1, 2, 500, 1024, 2999} {
		set, err := loaded.IsSet(index)
		if err != nil || !set {
			t.Errorf("IsSet(%d) after round-trip = %v, %v; want true", index, set, err)
		}
	}
}
