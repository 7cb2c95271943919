package ledger

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"sms-gateway/pkg/utils"
)

// MemoryBook is an in-process Repository. It does no locking of its own; the
// owning store serializes access and restores a Clone when a unit of work fails.
type MemoryBook struct {
	balances map[string]int64
	updated  map[string]time.Time
	entries  []Entry
}

func NewMemoryBook() *MemoryBook {
	return &MemoryBook{balances: map[string]int64{}, updated: map[string]time.Time{}}
}

// Open registers a tenant with a starting balance.
func (b *MemoryBook) Open(tenantID string, credits int64) {
	b.balances[tenantID] = credits
}

func (b *MemoryBook) Clone() *MemoryBook {
	return &MemoryBook{
		balances: maps.Clone(b.balances),
		updated:  maps.Clone(b.updated),
		entries:  slices.Clone(b.entries),
	}
}

func (b *MemoryBook) LockBalance(_ context.Context, tenantID string) (int64, error) {
	bal, ok := b.balances[tenantID]
	if !ok {
		return 0, ErrTenantNotFound
	}
	return bal, nil
}

func (b *MemoryBook) SetBalance(_ context.Context, tenantID string, credits int64, at time.Time) error {
	if _, ok := b.balances[tenantID]; !ok {
		return ErrTenantNotFound
	}
	b.balances[tenantID] = credits
	b.updated[tenantID] = at
	return nil
}

func (b *MemoryBook) InsertEntry(_ context.Context, e Entry) error {
	b.entries = append(b.entries, e)
	return nil
}

func (b *MemoryBook) FindEntryByIdempotency(_ context.Context, tenantID, key string) (Entry, bool, error) {
	for _, e := range b.entries {
		if e.TenantID == tenantID && e.IdempotencyKey == key {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (b *MemoryBook) Balance(_ context.Context, tenantID string) (Balance, error) {
	bal, ok := b.balances[tenantID]
	if !ok {
		return Balance{}, ErrTenantNotFound
	}
	return Balance{TenantID: tenantID, Credits: bal, UpdatedAt: b.updated[tenantID]}, nil
}

func (b *MemoryBook) ListEntries(_ context.Context, tenantID string, p utils.Page) ([]Entry, int, error) {
	var all []Entry
	for i := len(b.entries) - 1; i >= 0; i-- {
		if b.entries[i].TenantID == tenantID {
			all = append(all, b.entries[i])
		}
	}
	start, end := p.Window(len(all))
	return all[start:end], len(all), nil
}

func (b *MemoryBook) EntriesSince(_ context.Context, tenantID string, since time.Time) ([]Entry, error) {
	var out []Entry
	for _, e := range b.entries {
		if e.TenantID == tenantID && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// MemoryStore wraps a MemoryBook with a store-wide lock and rollback on error.
type MemoryStore struct {
	mu   sync.Mutex
	book *MemoryBook
}

func NewMemoryStore(book *MemoryBook) *MemoryStore {
	if book == nil {
		book = NewMemoryBook()
	}
	return &MemoryStore{book: book}
}

func (s *MemoryStore) Open(tenantID string, credits int64) {
	s.mu.Lock()
	s.book.Open(tenantID, credits)
	s.mu.Unlock()
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	return s.Update(func(book *MemoryBook) error { return fn(ctx, book) })
}

// Update runs fn against the book under the store lock and restores the book
// if fn fails. Stores that share this ledger run their units of work through it.
func (s *MemoryStore) Update(fn func(book *MemoryBook) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.book.Clone()
	if err := fn(s.book); err != nil {
		*s.book = *snap
		return err
	}
	return nil
}

func (s *MemoryStore) Balance(ctx context.Context, tenantID string) (Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Balance(ctx, tenantID)
}

func (s *MemoryStore) ListEntries(ctx context.Context, tenantID string, p utils.Page) ([]Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.ListEntries(ctx, tenantID, p)
}

func (s *MemoryStore) EntriesSince(ctx context.Context, tenantID string, since time.Time) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.EntriesSince(ctx, tenantID, since)
}
