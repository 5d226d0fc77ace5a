package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a bounded in-process ring buffer. When full, appending
// overwrites the oldest entry.
type MemoryStore struct {
	mu       sync.Mutex
	buf      []Entry
	start    int
	size     int
	capacity int
}

// NewMemoryStore constructs a ring buffer holding at most capacity entries.
// A non-positive capacity falls back to DefaultCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{buf: make([]Entry, capacity), capacity: capacity}
}

// Capacity reports the maximum number of retained entries.
func (s *MemoryStore) Capacity() int { return s.capacity }

// Len reports the number of retained entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Append implements Store. CreatedAt is clamped to the newest retained entry
// so insertion order and timestamp order agree.
func (s *MemoryStore) Append(_ context.Context, e Entry) (Entry, error) {
	e.Details = cloneDetails(e.Details)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size > 0 {
		tail := s.buf[s.index(s.size-1)]
		if e.CreatedAt.Before(tail.CreatedAt) {
			e.CreatedAt = tail.CreatedAt
		}
	}
	if s.size < s.capacity {
		s.buf[s.index(s.size)] = e
		s.size++
	} else {
		s.buf[s.start] = e
		s.start = (s.start + 1) % s.capacity
	}
	out := e
	out.Details = cloneDetails(e.Details)
	return out, nil
}

// Query implements Store.
func (s *MemoryStore) Query(_ context.Context, f Filters) ([]Entry, error) {
	return selectEntries(s.copyEntries(), f), nil
}

// Snapshot implements Store.
func (s *MemoryStore) Snapshot(context.Context) ([]Entry, error) {
	return s.copyEntries(), nil
}

// Purge implements Store. Entries are ordered by CreatedAt, so expired ones
// always form a prefix of the buffer.
func (s *MemoryStore) Purge(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for removed < s.size && s.buf[s.index(removed)].CreatedAt.Before(before) {
		s.buf[s.index(removed)] = Entry{}
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	s.start = s.index(removed)
	s.size -= removed
	if s.size == 0 {
		s.start = 0
	}
	return removed, nil
}

func (s *MemoryStore) copyEntries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, s.size)
	for i := 0; i < s.size; i++ {
		e := s.buf[s.index(i)]
		e.Details = cloneDetails(e.Details)
		out[i] = e
	}
	return out
}

func (s *MemoryStore) index(offset int) int {
	return (s.start + offset) % s.capacity
}
