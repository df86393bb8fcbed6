package sqlitestore

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	tgrender "github.com/rmolchanov/go-tgrender"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorePutGet(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	fp := tgrender.Fingerprint("abc123")

	if _, ok, err := s.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get on empty store = ok=%v, err=%v", ok, err)
	}

	if err := s.Put(ctx, fp, []byte("artifact"), 0); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	data, ok, err := s.Get(ctx, fp)
	if err != nil || !ok {
		t.Fatalf("Get() = ok=%v, err=%v", ok, err)
	}
	if !bytes.Equal(data, []byte("artifact")) {
		t.Errorf("Get() = %q", data)
	}
}

func TestStorePutExistingKept(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	fp := tgrender.Fingerprint("abc")

	if err := s.Put(ctx, fp, []byte("first"), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, fp, []byte("second"), 0); err != nil {
		t.Fatal(err)
	}
	data, _, _ := s.Get(ctx, fp)
	if string(data) != "first" {
		t.Errorf("entry was replaced: %q", data)
	}
}

func TestStoreClearRemovesEntries(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	for _, fp := range []string{"a", "b", "c"} {
		if err := s.Put(ctx, tgrender.Fingerprint(fp), []byte(fp), 0); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := s.Len(ctx); n != 3 {
		t.Fatalf("Len = %d, want 3", n)
	}

	if err := s.Clear(ctx, 1); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if n, _ := s.Len(ctx); n != 0 {
		t.Errorf("Len after Clear = %d, want 0", n)
	}
}

func TestStoreRejectsStaleGenerationWrites(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Clear(ctx, 2); err != nil {
		t.Fatal(err)
	}

	// A render claimed before the clear writes with an old generation; the
	// write must be silently dropped.
	fp := tgrender.Fingerprint("stale")
	if err := s.Put(ctx, fp, []byte("old"), 1); err != nil {
		t.Fatalf("stale Put() error = %v", err)
	}
	if _, ok, _ := s.Get(ctx, fp); ok {
		t.Error("stale write survived the clear")
	}

	// Current-generation writes still land.
	if err := s.Put(ctx, fp, []byte("new"), 2); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, fp); !ok {
		t.Error("current-generation write was dropped")
	}
}

func TestStoreGenerationNeverRegresses(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Clear(ctx, 5); err != nil {
		t.Fatal(err)
	}
	// An out-of-order clear with an older generation must not lower it.
	if err := s.Clear(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, tgrender.Fingerprint("x"), []byte("v"), 4); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, tgrender.Fingerprint("x")); ok {
		t.Error("write below the high-water generation survived")
	}
}

func TestStoreReopenPersists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, tgrender.Fingerprint("keep"), []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	data, ok, err := s2.Get(ctx, tgrender.Fingerprint("keep"))
	if err != nil || !ok {
		t.Fatalf("Get after reopen = ok=%v, err=%v", ok, err)
	}
	if string(data) != "v" {
		t.Errorf("Get = %q", data)
	}
}
