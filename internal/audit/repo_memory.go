package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps events in process; used by tests and the in-memory wiring.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything appended so far.
func (r *MemoryRepo) Events() []Event {
	return r.filter(func(Event) bool { return true })
}

func (r *MemoryRepo) OfType(typ EventType) []Event {
	return r.filter(func(e Event) bool { return e.Type == typ })
}

func (r *MemoryRepo) filter(keep func(Event) bool) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
