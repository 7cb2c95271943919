package funding

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"sms-gateway/internal/ledger"
	"sms-gateway/internal/tenant"
	"sms-gateway/pkg/utils"
)

// MemoryStore is a Store for tests and local runs. Confirmations run under the
// shared ledger's lock.
type MemoryStore struct {
	ledger *ledger.MemoryStore
	dir    *tenant.MemoryDirectory

	mu  sync.Mutex
	txs map[string]Transaction
}

func NewMemoryStore(l *ledger.MemoryStore, dir *tenant.MemoryDirectory) *MemoryStore {
	if l == nil {
		l = ledger.NewMemoryStore(nil)
	}
	if dir == nil {
		dir = tenant.NewMemoryDirectory()
	}
	return &MemoryStore{ledger: l, dir: dir, txs: map[string]Transaction{}}
}

type memTx struct {
	*ledger.MemoryBook
	s *MemoryStore
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.ledger.Update(func(book *ledger.MemoryBook) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		snap := maps.Clone(s.txs)
		if err := fn(ctx, &memTx{MemoryBook: book, s: s}); err != nil {
			s.txs = snap
			return err
		}
		return nil
	})
}

func (t *memTx) LockTransaction(_ context.Context, id string) (Transaction, error) {
	tr, ok := t.s.txs[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return tr, nil
}

func (t *memTx) SaveTransaction(_ context.Context, tr Transaction) error {
	return t.s.save(tr)
}

func (s *MemoryStore) GetTenant(ctx context.Context, id string) (tenant.Tenant, error) {
	return s.dir.GetTenant(ctx, id)
}

func (s *MemoryStore) InsertTransaction(_ context.Context, t Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[t.ID] = t
	return nil
}

func (s *MemoryStore) SetCheckoutURL(_ context.Context, id, url string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txs[id]
	if !ok {
		return ErrTransactionNotFound
	}
	cur.CheckoutURL = url
	cur.UpdatedAt = at
	s.txs[id] = cur
	return nil
}

func (s *MemoryStore) FailInProgress(_ context.Context, id, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txs[id]
	if !ok {
		return false, ErrTransactionNotFound
	}
	if cur.Status != StatusInProgress {
		return false, nil
	}
	cur.Status = StatusFailed
	cur.FailureReason = reason
	cur.UpdatedAt = at
	s.txs[id] = cur
	return true, nil
}

func (s *MemoryStore) save(t Transaction) error {
	cur, ok := s.txs[t.ID]
	if !ok {
		return ErrTransactionNotFound
	}
	cur.Status = t.Status
	cur.CheckoutURL = t.CheckoutURL
	cur.FailureReason = t.FailureReason
	cur.UpdatedAt = t.UpdatedAt
	s.txs[t.ID] = cur
	return nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, id string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return t, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, f Filter, p utils.Page) ([]Transaction, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Transaction
	for _, t := range s.txs {
		if (f.Status == "" || t.Status == f.Status) && (f.TenantID == "" || t.TenantID == f.TenantID) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	start, end := p.Window(len(out))
	return out[start:end], len(out), nil
}

func (s *MemoryStore) SuccessfulSince(_ context.Context, since time.Time) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Transaction
	for _, t := range s.txs {
		if t.Status == StatusSuccessful && !t.CreatedAt.Before(since) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b Transaction) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}
