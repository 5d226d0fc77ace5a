package audit

import (
	"sync"
	"time"
)

var baseTime = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

// stepClock advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newStepClock(start time.Time, step time.Duration) *stepClock {
	return &stepClock{t: start, step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func entryAt(id string, action Action, at time.Time) Entry {
	return Entry{ID: id, UserID: "u1", Action: action, Resource: "bookings", IPAddress: "10.0.0.1", CreatedAt: at}
}
