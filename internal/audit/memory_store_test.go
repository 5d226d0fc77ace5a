package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreEvictsOldestAtCapacity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(1000)
	for i := 1; i <= 1001; i++ {
		if _, err := store.Append(ctx, entryAt(fmt.Sprintf("e%d", i), ActionView, baseTime.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if store.Len() != 1000 {
		t.Fatalf("expected 1000 entries, got %d", store.Len())
	}
	snap, _ := store.Snapshot(ctx)
	if snap[0].ID != "e2" {
		t.Fatalf("expected oldest retained entry e2, got %s", snap[0].ID)
	}
	if snap[len(snap)-1].ID != "e1001" {
		t.Fatalf("expected newest entry e1001, got %s", snap[len(snap)-1].ID)
	}
}

func TestMemoryStoreDefaultCapacity(t *testing.T) {
	if got := NewMemoryStore(0).Capacity(); got != DefaultCapacity {
		t.Fatalf("expected default capacity %d, got %d", DefaultCapacity, got)
	}
}

func TestMemoryStoreClampsOutOfOrderTimestamps(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)
	_, _ = store.Append(ctx, entryAt("a", ActionView, baseTime))
	stored, _ := store.Append(ctx, entryAt("b", ActionView, baseTime.Add(-time.Minute)))
	if !stored.CreatedAt.Equal(baseTime) {
		t.Fatalf("expected clamped timestamp %v, got %v", baseTime, stored.CreatedAt)
	}
}

func TestMemoryStoreSnapshotIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)
	e := entryAt("a", ActionView, baseTime)
	e.Details = map[string]any{"k": "v"}
	_, _ = store.Append(ctx, e)
	e.Details["k"] = "mutated"

	snap, _ := store.Snapshot(ctx)
	snap[0].Details["k"] = "changed"
	snap[0].UserID = "other"

	again, _ := store.Snapshot(ctx)
	if again[0].Details["k"] != "v" || again[0].UserID != "u1" {
		t.Fatalf("stored entry was mutated: %+v", again[0])
	}
}

func TestMemoryStoreAppendResultIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)
	e := entryAt("a", ActionView, baseTime)
	e.Details = map[string]any{"k": "orig"}
	stored, _ := store.Append(ctx, e)
	stored.Details["k"] = "tampered"

	snap, _ := store.Snapshot(ctx)
	if snap[0].Details["k"] != "orig" {
		t.Fatalf("stored details changed through append result: %v", snap[0].Details["k"])
	}
}

func TestRecorderEntryMutationDoesNotReachStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)
	r := NewRecorder(RecorderConfig{Store: store, Clock: fixedClock(baseTime)})
	entry := r.LogActivity(ctx, "u1", ActionView, "bookings", map[string]any{"k": "orig"}, nil)
	if entry == nil {
		t.Fatal("expected entry")
	}
	entry.Details["k"] = "tampered"

	snap, _ := store.Snapshot(ctx)
	if snap[0].Details["k"] != "orig" {
		t.Fatalf("stored details changed through returned entry: %v", snap[0].Details["k"])
	}
}

func TestMemoryStorePurgeRemovesPrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(4)
	for i := 0; i < 6; i++ {
		_, _ = store.Append(ctx, entryAt(fmt.Sprintf("e%d", i), ActionView, baseTime.Add(time.Duration(i)*time.Hour)))
	}
	removed, err := store.Purge(ctx, baseTime.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	snap, _ := store.Snapshot(ctx)
	if len(snap) != 2 || snap[0].ID != "e4" || snap[1].ID != "e5" {
		t.Fatalf("unexpected remaining entries: %+v", snap)
	}

	_, _ = store.Append(ctx, entryAt("e6", ActionView, baseTime.Add(6*time.Hour)))
	snap, _ = store.Snapshot(ctx)
	if len(snap) != 3 || snap[2].ID != "e6" {
		t.Fatalf("append after purge misplaced: %+v", snap)
	}

	removed, _ = store.Purge(ctx, baseTime.Add(24*time.Hour))
	if removed != 3 || store.Len() != 0 {
		t.Fatalf("expected full purge, removed %d, len %d", removed, store.Len())
	}
}

func TestMemoryStoreQueryFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)
	_, _ = store.Append(ctx, entryAt("a", ActionView, baseTime))
	other := entryAt("b", ActionView, baseTime.Add(time.Minute))
	other.UserID = "u2"
	_, _ = store.Append(ctx, other)
	_, _ = store.Append(ctx, entryAt("c", ActionCreate, baseTime.Add(2*time.Minute)))

	got, _ := store.Query(ctx, Filters{UserID: "u1"})
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "a" {
		t.Fatalf("unexpected query result: %+v", got)
	}
	got, _ = store.Query(ctx, Filters{From: baseTime.Add(time.Minute), To: baseTime.Add(2 * time.Minute)})
	if len(got) != 2 {
		t.Fatalf("expected inclusive range to match 2 entries, got %d", len(got))
	}
	got, _ = store.Query(ctx, Filters{Limit: 1})
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("limit should keep newest entry: %+v", got)
	}
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(1000)
	clock := newStepClock(baseTime, time.Millisecond)

	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = store.Append(ctx, entryAt(fmt.Sprintf("g%d-%d", g, i), ActionView, clock.Now()))
				if i%25 == 0 {
					_, _ = store.Snapshot(ctx)
				}
			}
		}(g)
	}
	wg.Wait()

	if store.Len() != 1000 {
		t.Fatalf("expected 1000 entries, got %d", store.Len())
	}
	snap, _ := store.Snapshot(ctx)
	for i := 1; i < len(snap); i++ {
		if snap[i].CreatedAt.Before(snap[i-1].CreatedAt) {
			t.Fatalf("entries out of order at %d", i)
		}
	}
}

func TestMemoryStorePurgeDuringAppendsKeepsFreshEntries(t *testing.T) {
	ctx := context.Background()
	const capacity = 2000
	store := NewMemoryStore(capacity)
	for i := 0; i < 500; i++ {
		_, _ = store.Append(ctx, entryAt(fmt.Sprintf("old-%d", i), ActionView, baseTime.Add(-time.Hour+time.Duration(i)*time.Millisecond)))
	}
	clock := newStepClock(baseTime, time.Millisecond)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = store.Append(ctx, entryAt(fmt.Sprintf("fresh-%d-%d", g, i), ActionView, clock.Now()))
			}
		}(g)
	}
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = store.Purge(ctx, baseTime)
				if store.Len() > capacity {
					t.Errorf("store exceeded capacity: %d", store.Len())
				}
			}
		}()
	}
	wg.Wait()
	_, _ = store.Purge(ctx, baseTime)

	snap, _ := store.Snapshot(ctx)
	if len(snap) != 1000 {
		t.Fatalf("expected all 1000 fresh entries to survive, got %d", len(snap))
	}
	seen := make(map[string]bool, len(snap))
	for i, e := range snap {
		if e.CreatedAt.Before(baseTime) {
			t.Fatalf("expired entry %s survived purge", e.ID)
		}
		if i > 0 && e.CreatedAt.Before(snap[i-1].CreatedAt) {
			t.Fatalf("entries out of order at %d", i)
		}
		seen[e.ID] = true
	}
	for g := 0; g < 10; g++ {
		for i := 0; i < 100; i++ {
			if id := fmt.Sprintf("fresh-%d-%d", g, i); !seen[id] {
				t.Fatalf("fresh entry %s lost", id)
			}
		}
	}
}
