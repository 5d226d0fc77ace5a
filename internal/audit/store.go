package audit

import (
	"context"
	"sort"
	"time"
)

// DefaultCapacity is the number of entries the bounded log keeps.
const DefaultCapacity = 1000

// Store persists audit entries. Implementations must be safe for concurrent
// use; Snapshot and Query return point-in-time copies.
type Store interface {
	// Append stores e, evicting the oldest entry when the store is bounded and
	// full. It returns the entry as stored.
	Append(ctx context.Context, e Entry) (Entry, error)
	// Query returns entries matching f, newest first. Limit <= 0 means no limit.
	Query(ctx context.Context, f Filters) ([]Entry, error)
	// Purge removes entries created before the cutoff and reports how many.
	Purge(ctx context.Context, before time.Time) (int, error)
	// Snapshot returns every retained entry in insertion order.
	Snapshot(ctx context.Context) ([]Entry, error)
}

// selectEntries filters, orders newest first and truncates entries. The input
// slice is not modified.
func selectEntries(entries []Entry, f Filters) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	sortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// sortNewestFirst orders by CreatedAt descending; ties keep later insertions first.
func sortNewestFirst(entries []Entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}
