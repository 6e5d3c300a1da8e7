package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestFSStorePutGet(t *testing.T) {
	store := NewFSStore(t.TempDir(), zerolog.Nop())
	ctx := context.Background()

	body := []byte(`{"channel":"retro-gold"}`)
	if err := store.Put(ctx, "guides/2026-03-14/retro-gold.json", body, "application/json"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "guides/2026-03-14/retro-gold.json")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("got %q, want %q", got, body)
	}
}

func TestFSStorePutCreatesDirectories(t *testing.T) {
	root := t.TempDir()
	store := NewFSStore(root, zerolog.Nop())

	if err := store.Put(context.Background(), "a/b/c/d.json", []byte("{}"), ""); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "a", "b", "c", "d.json")); err != nil {
		t.Errorf("expected file on disk: %v", err)
	}
}

func TestFSStoreGetMissing(t *testing.T) {
	store := NewFSStore(t.TempDir(), zerolog.Nop())

	_, err := store.Get(context.Background(), "guides/nope.json")
	if err == nil {
		t.Fatal("expected error for missing object")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestFSStoreList(t *testing.T) {
	store := NewFSStore(t.TempDir(), zerolog.Nop())
	ctx := context.Background()

	objects := []string{
		"guides/2026-03-14/retro-gold.json",
		"guides/2026-03-14/cartoon-classics.json",
		"guides/2026-03-15/retro-gold.json",
		"blueprints/lineup.json",
	}
	for _, key := range objects {
		if err := store.Put(ctx, key, []byte("{}"), ""); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	keys, err := store.List(ctx, "guides/2026-03-14/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d: %v", len(keys), keys)
	}
	for _, key := range keys {
		if filepath.Ext(key) != ".json" {
			t.Errorf("unexpected key %s", key)
		}
	}

	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List all failed: %v", err)
	}
	if len(all) != len(objects) {
		t.Errorf("expected %d keys, got %d", len(objects), len(all))
	}
}

func TestFSStoreListMissingRoot(t *testing.T) {
	store := NewFSStore(filepath.Join(t.TempDir(), "never-created"), zerolog.Nop())

	keys, err := store.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}

func TestFSStoreCheckAccessCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "archive")
	store := NewFSStore(root, zerolog.Nop())

	if err := store.CheckAccess(context.Background()); err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		t.Errorf("expected root directory to exist: %v", err)
	}
}
