package pricing

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// MemoryRepo is an in-memory catalogue for tests and local runs.
type MemoryRepo struct {
	mu    sync.RWMutex
	tiers map[string]Tier

	// Reads counts catalogue list calls; tests use it to observe caching.
	Reads int
}

func NewMemoryRepo(tiers ...Tier) *MemoryRepo {
	r := &MemoryRepo{tiers: map[string]Tier{}}
	for _, t := range tiers {
		r.tiers[t.ID] = t
	}
	return r
}

func (r *MemoryRepo) ActiveTiers(_ context.Context) ([]Tier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reads++
	var out []Tier
	for _, t := range r.tiers {
		if t.Active {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b Tier) int {
		if c := a.PricePerSms.Cmp(b.PricePerSms); c != 0 {
			return c
		}
		return cmp.Compare(a.MinSmsCount, b.MinSmsCount)
	})
	return out, nil
}

func (r *MemoryRepo) ListTiers(_ context.Context) ([]Tier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reads++
	out := make([]Tier, 0, len(r.tiers))
	for _, t := range r.tiers {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Tier) int { return cmp.Compare(a.MinSmsCount, b.MinSmsCount) })
	return out, nil
}

func (r *MemoryRepo) GetTier(_ context.Context, id string) (Tier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tiers[id]
	if !ok {
		return Tier{}, ErrTierNotFound
	}
	return t, nil
}

func (r *MemoryRepo) InsertTier(_ context.Context, t Tier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers[t.ID] = t
	return nil
}

func (r *MemoryRepo) UpdateTier(_ context.Context, t Tier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tiers[t.ID]; !ok {
		return ErrTierNotFound
	}
	r.tiers[t.ID] = t
	return nil
}
