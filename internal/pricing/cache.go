package pricing

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	cacheKeyActive = "tiers:active"
	cacheKeyAll    = "tiers:all"
)

// CachedRepo keeps the tier catalogue in an in-process ristretto cache. The
// catalogue is tiny and read on every funding request; writes through this
// repo evict it.
type CachedRepo struct {
	Repository
	c   *ristretto.Cache[string, []Tier]
	ttl time.Duration
}

func NewCachedRepo(next Repository, ttl time.Duration) (*CachedRepo, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []Tier]{
		NumCounters:        100,
		MaxCost:            10,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &CachedRepo{Repository: next, c: c, ttl: ttl}, nil
}

func (r *CachedRepo) ActiveTiers(ctx context.Context) ([]Tier, error) {
	return r.load(ctx, cacheKeyActive, r.Repository.ActiveTiers)
}

func (r *CachedRepo) ListTiers(ctx context.Context) ([]Tier, error) {
	return r.load(ctx, cacheKeyAll, r.Repository.ListTiers)
}

func (r *CachedRepo) InsertTier(ctx context.Context, t Tier) error {
	defer r.evict()
	return r.Repository.InsertTier(ctx, t)
}

func (r *CachedRepo) UpdateTier(ctx context.Context, t Tier) error {
	defer r.evict()
	return r.Repository.UpdateTier(ctx, t)
}

func (r *CachedRepo) Close() { r.c.Close() }

func (r *CachedRepo) load(ctx context.Context, key string, fetch func(context.Context) ([]Tier, error)) ([]Tier, error) {
	if v, ok := r.c.Get(key); ok {
		return slices.Clone(v), nil
	}
	tiers, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	r.c.SetWithTTL(key, slices.Clone(tiers), 1, r.ttl)
	r.c.Wait()
	return tiers, nil
}

func (r *CachedRepo) evict() {
	r.c.Del(cacheKeyActive)
	r.c.Del(cacheKeyAll)
}
