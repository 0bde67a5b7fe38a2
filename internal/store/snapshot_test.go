package store

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zauberware/smshog/internal/ordered"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smshog.json")
	start := time.Date(2024, 3, 10, 8, 30, 15, 123456789, time.UTC)

	store := NewMemoryStore(
		WithSnapshot(path, time.Hour),
		WithClock(fakeClock(start, time.Millisecond)),
		WithLogger(testLogger()),
	)
	store.Accept("+15550001", "one", ordered.Map{
		{Key: "z", Value: "last-key-first"},
		{Key: "a", Value: ordered.Map{{Key: "DataType", Value: "String"}}},
	}, &Metadata{RequestID: "r1", SenderID: "S1", SMSType: "Promotional"})
	store.Accept("+15550002", "two", nil, nil)
	store.Accept("+15550003", "three", nil, &Metadata{ClientIP: "127.0.0.1"})

	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reloaded := NewMemoryStore(WithSnapshot(path, time.Hour), WithLogger(testLogger()))
	defer reloaded.Close()

	want := store.List()
	got := reloaded.List()
	if len(got) != len(want) {
		t.Fatalf("reloaded List() = %d items, want %d", len(got), len(want))
	}
	for i := range want {
		w, g := want[i], got[i]
		if g.ID != w.ID || g.PhoneNumber != w.PhoneNumber || g.Message != w.Message {
			t.Errorf("message %d = %+v, want %+v", i, g, w)
		}
		if !g.Timestamp.Equal(w.Timestamp) {
			t.Errorf("message %d timestamp = %v, want %v", i, g.Timestamp, w.Timestamp)
		}
		if (g.Metadata == nil) != (w.Metadata == nil) || (g.Metadata != nil && *g.Metadata != *w.Metadata) {
			t.Errorf("message %d metadata = %+v, want %+v", i, g.Metadata, w.Metadata)
		}
	}

	first := got[len(got)-1]
	if keys := first.MessageAttributes.Keys(); len(keys) != 2 || keys[0] != "z" || keys[1] != "a" {
		t.Errorf("reloaded attribute order = %v, want [z a]", keys)
	}
}

func TestSnapshot_ReloadPreservesTieOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ties.json")
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	store := NewMemoryStore(WithSnapshot(path, time.Hour), WithClock(func() time.Time { return at }), WithLogger(testLogger()))
	for i := 0; i < 4; i++ {
		store.Accept("+1", "same-instant", nil, nil)
	}
	want := store.List()
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reloaded := NewMemoryStore(WithSnapshot(path, time.Hour), WithLogger(testLogger()))
	defer reloaded.Close()

	got := reloaded.List()
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("List()[%d].ID = %q, want %q", i, got[i].ID, want[i].ID)
		}
	}
}

func TestSnapshot_WrittenAfterMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auto.json")
	store := NewMemoryStore(WithSnapshot(path, time.Hour), WithLogger(testLogger()))
	defer store.Close()

	msg := store.Accept("+1", "persist me", nil, nil)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && strings.Contains(string(data), msg.ID) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("snapshot was not written after Accept()")
}

func TestSnapshot_ClearWritesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clear.json")
	store := NewMemoryStore(WithSnapshot(path, time.Hour), WithLogger(testLogger()))
	store.Accept("+1", "x", nil, nil)
	store.Clear()
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("snapshot after Clear() = %s, want []", data)
	}
}

func TestSnapshot_MissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "missing.json")
	store := NewMemoryStore(WithSnapshot(path, time.Hour), WithLogger(testLogger()))

	if n := len(store.List()); n != 0 {
		t.Errorf("List() = %d items, want 0", n)
	}

	store.Accept("+1", "x", nil, nil)
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("snapshot not created in nested directory: %v", err)
	}
}

func TestSnapshot_CorruptFileIsNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	store := NewMemoryStore(WithSnapshot(path, time.Hour), WithLogger(testLogger()))
	defer store.Close()

	if n := len(store.List()); n != 0 {
		t.Errorf("List() = %d items, want 0", n)
	}
	msg := store.Accept("+1", "still works", nil, nil)
	if _, ok := store.Get(msg.ID); !ok {
		t.Error("store should accept messages after a failed load")
	}
}

func TestSnapshot_FlushFailureIsNotPropagated(t *testing.T) {
	dir := t.TempDir()
	// the snapshot path is an existing directory, so the rename always fails
	path := filepath.Join(dir, "is-a-dir")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	var mu sync.Mutex
	var flushErrs []error
	store := NewMemoryStore(
		WithSnapshot(path, time.Hour),
		WithLogger(testLogger()),
		WithFlushHook(func(err error, _ time.Duration) {
			mu.Lock()
			flushErrs = append(flushErrs, err)
			mu.Unlock()
		}),
	)

	msg := store.Accept("+1", "x", nil, nil)
	if _, ok := store.Get(msg.ID); !ok {
		t.Fatal("Accept() must succeed even when flushing fails")
	}

	if err := store.Close(); err == nil {
		t.Error("Close() should report the final flush failure")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(flushErrs) == 0 || flushErrs[len(flushErrs)-1] == nil {
		t.Errorf("flush hook errors = %v, want a failure recorded", flushErrs)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file %q left behind", e.Name())
		}
	}
}

func TestLoadSnapshot_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	msgs, err := loadSnapshot(path)
	if err != nil || msgs != nil {
		t.Errorf("loadSnapshot(empty) = %v, %v; want nil, nil", msgs, err)
	}
}

func TestWriteSnapshot_ReplacesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atomic.json")

	if err := writeSnapshot(path, []Message{{ID: "old"}}); err != nil {
		t.Fatalf("writeSnapshot() error = %v", err)
	}
	if err := writeSnapshot(path, []Message{{ID: "new"}}); err != nil {
		t.Fatalf("writeSnapshot() error = %v", err)
	}

	msgs, err := loadSnapshot(path)
	if err != nil {
		t.Fatalf("loadSnapshot() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "new" {
		t.Errorf("loadSnapshot() = %+v, want single message new", msgs)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the snapshot", len(entries))
	}
}
