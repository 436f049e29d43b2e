// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bureau-foundation/tananfs/lib/layout"
)

func TestDirectoryInsertLookupRemove(t *testing.T) {
	fsys, _, _ := newTestFS(t, 1<<22, 512)
	dir, err := loadDirectory(fsys, RootInode)
	if err != nil {
		t.Fatal(err)
	}
	if dir.Name() != RootName {
		t.Errorf("root name = %q, want %q", dir.Name(), RootName)
	}

	if err := dir.Insert("alpha", 11); err != nil {
		t.Fatal(err)
	}
	if err := dir.Insert("beta", 22); err != nil {
		t.Fatal(err)
	}
	if dir.ChildCount() != 2 {
		t.Errorf("ChildCount = %d, want 2", dir.ChildCount())
	}

	ordinal, err := dir.Lookup("alpha")
	if err != nil || ordinal != 11 {
		t.Errorf("Lookup(alpha) = %d, %v", ordinal, err)
	}
	if _, err := dir.Lookup("gamma"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(gamma): got %v, want ErrNotFound", err)
	}

	if err := dir.Insert("alpha", 33); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate insert: got %v, want ErrExists", err)
	}

	if err := dir.Remove("alpha"); err != nil {
		t.Fatal(err)
	}
	if _, err := dir.Lookup("alpha"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup after remove: got %v, want ErrNotFound", err)
	}
	if err := dir.Remove("alpha"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove: got %v, want ErrNotFound", err)
	}
}

func TestDirectoryPayloadIsAuthoritative(t *testing.T) {
	fsys, _, _ := newTestFS(t, 1<<22, 512)
	dir, err := loadDirectory(fsys, RootInode)
	if err != nil {
		t.Fatal(err)
	}

	names := []string{"one", "two", "three", "four", "five"}
	for i, name := range names {
		if err := dir.Insert(name, uint64(100+i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := dir.Remove("two"); err != nil {
		t.Fatal(err)
	}

	// A fresh load must reconstruct the same view from the payload,
	// in payload order, with the removed entry compacted away.
	reloaded, err := loadDirectory(fsys, RootInode)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"one", "three", "four", "five"}
	entries := reloaded.List()
	if len(entries) != len(want) {
		t.Fatalf("reloaded %d entries, want %d", len(entries), len(want))
	}
	for i, entry := range entries {
		if entry.Name != want[i] {
			t.Errorf("entry %d = %q, want %q", i, entry.Name, want[i])
		}
	}
	if ordinal, _ := reloaded.Lookup("five"); ordinal != 104 {
		t.Errorf("five = %d, want 104", ordinal)
	}
}

func TestDirectoryPayloadSpansBlocks(t *testing.T) {
	fsys, _, _ := newTestFS(t, 1<<22, 512)
	dir, err := loadDirectory(fsys, RootInode)
	if err != nil {
		t.Fatal(err)
	}

	// Enough long names to spill the payload over several blocks.
	for i := 0; i < 40; i++ {
		name := fmt.Sprintf("%s-%02d", strings.Repeat("x", 60), i)
		if err := dir.Insert(name, uint64(i+1)); err != nil {
			t.Fatal(err)
		}
	}

	reloaded, err := loadDirectory(fsys, RootInode)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.ChildCount() != 40 {
		t.Fatalf("ChildCount = %d, want 40", reloaded.ChildCount())
	}
	if reloaded.inode.BlockCount < 2 {
		t.Errorf("payload fits one block; the test wants a chain")
	}
}

func TestDirectoryNameTooLong(t *testing.T) {
	fsys, _, _ := newTestFS(t, 1<<22, 512)
	dir, err := loadDirectory(fsys, RootInode)
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Insert(strings.Repeat("n", MaxNameLen+1), 5); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("got %v, want ErrNameTooLong", err)
	}
	if err := dir.Insert(strings.Repeat("n", MaxNameLen), 5); err != nil {
		t.Errorf("name at the limit rejected: %v", err)
	}
}

func TestDirectoryRename(t *testing.T) {
	fsys, _, _ := newTestFS(t, 1<<22, 512)
	dir, err := loadDirectory(fsys, RootInode)
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Insert("old", 9); err != nil {
		t.Fatal(err)
	}
	if err := dir.Insert("taken", 10); err != nil {
		t.Fatal(err)
	}

	if err := dir.Rename("missing", "new"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rename of missing entry: got %v, want ErrNotFound", err)
	}
	if err := dir.Rename("old", "taken"); !errors.Is(err, ErrExists) {
		t.Errorf("rename onto existing entry: got %v, want ErrExists", err)
	}

	if err := dir.Rename("old", "new"); err != nil {
		t.Fatal(err)
	}
	if _, err := dir.Lookup("old"); !errors.Is(err, ErrNotFound) {
		t.Error("old name still resolves")
	}
	ordinal, err := dir.Lookup("new")
	if err != nil || ordinal != 9 {
		t.Errorf("Lookup(new) = %d, %v; want 9", ordinal, err)
	}
}

func TestDirectoryOwnNameRewrite(t *testing.T) {
	fsys, _, _ := newTestFS(t, 1<<22, 512)
	ordinal, err := fsys.Mkdir(RootInode, "short", 0o755, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	dir, err := loadDirectory(fsys, ordinal)
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Insert("child", 99); err != nil {
		t.Fatal(err)
	}

	if err := dir.setOwnName("a-considerably-longer-name"); err != nil {
		t.Fatal(err)
	}

	reloaded, err := loadDirectory(fsys, ordinal)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Name() != "a-considerably-longer-name" {
		t.Errorf("name = %q", reloaded.Name())
	}
	child, err := reloaded.Lookup("child")
	if err != nil || child != 99 {
		t.Errorf("child entry lost across own-name rewrite: %d, %v", child, err)
	}
	if reloaded.inode.Metadata[layout.SlotNameLen] != uint64(len("a-considerably-longer-name")) {
		t.Error("name length slot not updated")
	}
}
