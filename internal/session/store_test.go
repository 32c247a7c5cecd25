package session

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/architectagent/architect/internal/plan"
)

// testStore creates an in-memory store for testing and registers cleanup.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func TestSaveAndLoad(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	s := testSession(t, "A", "B")
	s.Claim("A")
	s.Resolve("A", json.RawMessage(`{"title":"t","decision":"d"}`), 2)
	s.Claim("B")
	s.Fail("B", errors.New("bad payload"), 1, false)
	cp := s.Checkpoint()

	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("Save(): %v", err)
	}
	got, err := store.Load(ctx, cp.RunID)
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if diff := cmp.Diff(cp, got); diff != "" {
		t.Errorf("loaded checkpoint mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveOverwrites(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	s := testSession(t, "A")
	s.Claim("A")
	first := s.Checkpoint()
	s.Resolve("A", json.RawMessage(`{"ok":true}`), 1)
	s.SetStatus(StatusResolved, nil)
	second := s.Checkpoint()

	if err := store.Save(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatal(err)
	}
	got, err := store.Load(ctx, s.ID())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(second, got); diff != "" {
		t.Errorf("Load() did not return the latest checkpoint (-want +got):\n%s", diff)
	}

	// An older, shorter checkpoint wins when written last
	if err := store.Save(ctx, first); err != nil {
		t.Fatal(err)
	}
	got, _ = store.Load(ctx, s.ID())
	if diff := cmp.Diff(first, got); diff != "" {
		t.Errorf("last write did not win (-want +got):\n%s", diff)
	}
}

func TestLoadNotFound(t *testing.T) {
	store := testStore(t)
	_, err := store.Load(context.Background(), "no-such-run")
	var nf *SessionNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Load() error = %v, want SessionNotFoundError", err)
	}
	if nf.RunID != "no-such-run" {
		t.Errorf("RunID = %q", nf.RunID)
	}
}

func TestList(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	older := testSession(t, "A", "B")
	older.Claim("A")
	older.Resolve("A", json.RawMessage(`{}`), 1)
	cpOld := older.Checkpoint()
	cpOld.CreatedAt = time.Now().Add(-time.Hour).UTC()

	newer := testSession(t, "X")
	cpNew := newer.Checkpoint()

	for _, cp := range []Checkpoint{cpOld, cpNew} {
		if err := store.Save(ctx, cp); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List(): %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List() returned %d runs, want 2", len(got))
	}
	if got[0].RunID != newer.ID() || got[1].RunID != older.ID() {
		t.Errorf("List() order = %s, %s; want newest first", got[0].RunID, got[1].RunID)
	}
	want := map[plan.Status]int{plan.StatusResolved: 1, plan.StatusPending: 1}
	if diff := cmp.Diff(want, got[1].Counts); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}
}

func TestListEmpty(t *testing.T) {
	got, err := testStore(t).List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("List() = %v, want empty slice", got)
	}
}

func TestMemoryStoresAreIsolated(t *testing.T) {
	a, b := testStore(t), testStore(t)
	cp := testSession(t, "A").Checkpoint()
	if err := a.Save(context.Background(), cp); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Load(context.Background(), cp.RunID); err == nil {
		t.Error("second memory store sees the first store's run")
	}
}

func TestSQLiteStoreOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "architect.db")

	store, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore(): %v", err)
	}
	cp := testSession(t, "A").Checkpoint()
	if err := store.Save(ctx, cp); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, err := reopened.Load(ctx, cp.RunID)
	if err != nil {
		t.Fatalf("Load() after reopen: %v", err)
	}
	if diff := cmp.Diff(cp, got); diff != "" {
		t.Errorf("checkpoint mismatch after reopen (-want +got):\n%s", diff)
	}
}

func TestSQLiteStoreConnectionPragmas(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "architect.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.pragma, func(t *testing.T) {
			var got string
			if err := store.db.QueryRowContext(ctx, "PRAGMA "+tt.pragma).Scan(&got); err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
			}
		})
	}
}

func TestSQLiteStoreConcurrentSaveAndList(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "architect.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	const writers, saves, readers = 6, 20, 3
	sessions := make([]*Session, writers)
	for i := range sessions {
		sessions[i] = testSession(t, "A", "B", "C")
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			for i := 0; i < saves; i++ {
				var err error
				if i%2 == 0 {
					_, err = sess.Claim("A")
				} else {
					err = sess.Requeue("A", 0, errors.New("interrupted"))
				}
				if err != nil {
					record(err)
					return
				}
				if err := store.Save(ctx, sess.Checkpoint()); err != nil {
					record(err)
					return
				}
			}
		}(sess)
	}
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < saves; i++ {
				if _, err := store.List(ctx); err != nil {
					record(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("%d concurrent store calls failed; first: %v", len(errs), errs[0])
	}
	list, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != writers {
		t.Errorf("List() returned %d runs, want %d", len(list), writers)
	}
	for _, sess := range sessions {
		got, err := store.Load(ctx, sess.ID())
		if err != nil {
			t.Fatalf("Load(%s): %v", sess.ID(), err)
		}
		if diff := cmp.Diff(sess.Checkpoint(), got); diff != "" {
			t.Errorf("final checkpoint mismatch (-want +got):\n%s", diff)
		}
	}
}
