package jobs

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"sms-gateway/internal/ledger"
	"sms-gateway/internal/tenant"
	"sms-gateway/pkg/utils"
)

// MemoryStore is a Store for tests and local runs. Units of work run under the
// shared ledger's lock, which stands in for the per-tenant row lock; a failed
// unit restores the snapshot taken when it began.
type MemoryStore struct {
	ledger *ledger.MemoryStore
	dir    *tenant.MemoryDirectory

	mu         sync.Mutex
	jobs       map[string]Job
	recipients []Recipient
}

func NewMemoryStore() *MemoryStore {
	return NewSharedMemoryStore(ledger.NewMemoryStore(nil), tenant.NewMemoryDirectory())
}

// NewSharedMemoryStore builds a store over a ledger and directory that other
// memory stores may use too.
func NewSharedMemoryStore(l *ledger.MemoryStore, dir *tenant.MemoryDirectory) *MemoryStore {
	return &MemoryStore{ledger: l, dir: dir, jobs: map[string]Job{}}
}

// AddTenant registers a tenant and opens its balance at t.CreditBalance.
func (s *MemoryStore) AddTenant(t tenant.Tenant) {
	s.dir.PutTenant(t)
	s.ledger.Open(t.ID, t.CreditBalance)
}

func (s *MemoryStore) AddSender(sn tenant.Sender) { s.dir.PutSender(sn) }

func (s *MemoryStore) Ledger() *ledger.MemoryStore { return s.ledger }

func (s *MemoryStore) Directory() *tenant.MemoryDirectory { return s.dir }

func (s *MemoryStore) Balance(ctx context.Context, tenantID string) (ledger.Balance, error) {
	return s.ledger.Balance(ctx, tenantID)
}

func (s *MemoryStore) Entries(ctx context.Context, tenantID string) ([]ledger.Entry, error) {
	items, _, err := s.ledger.ListEntries(ctx, tenantID, utils.Page{Size: utils.MaxPageSize})
	return items, err
}

type memTx struct {
	*ledger.MemoryBook
	*tenant.MemoryDirectory
	s *MemoryStore
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.ledger.Update(func(book *ledger.MemoryBook) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		jobs := maps.Clone(s.jobs)
		recipients := slices.Clone(s.recipients)
		if err := fn(ctx, &memTx{MemoryBook: book, MemoryDirectory: s.dir, s: s}); err != nil {
			s.jobs = jobs
			s.recipients = recipients
			return err
		}
		return nil
	})
}

// GetTenant reports the ledger's balance rather than the directory's copy.
func (t *memTx) GetTenant(ctx context.Context, id string) (tenant.Tenant, error) {
	tn, err := t.MemoryDirectory.GetTenant(ctx, id)
	if err != nil {
		return tenant.Tenant{}, err
	}
	if b, err := t.MemoryBook.Balance(ctx, id); err == nil {
		tn.CreditBalance = b.Credits
	}
	return tn, nil
}

func (t *memTx) InsertJob(_ context.Context, j Job) error {
	t.s.jobs[j.ID] = j
	return nil
}

func (t *memTx) InsertRecipients(_ context.Context, rs []Recipient) error {
	t.s.recipients = append(t.s.recipients, rs...)
	return nil
}

func (t *memTx) LockJob(_ context.Context, jobID string) (Job, error) {
	j, ok := t.s.jobs[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return j, nil
}

func (t *memTx) UpdateJobDecision(_ context.Context, j Job) error {
	if _, ok := t.s.jobs[j.ID]; !ok {
		return ErrJobNotFound
	}
	t.s.jobs[j.ID] = j
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, jobID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return j, nil
}

func (s *MemoryStore) ListJobs(_ context.Context, tenantID string, f Filter, p utils.Page) ([]Job, int, error) {
	return s.list(p, func(j Job) bool {
		return j.TenantID == tenantID && (f.Status == "" || j.Status == f.Status)
	})
}

func (s *MemoryStore) ListPending(_ context.Context, p utils.Page) ([]Job, int, error) {
	return s.list(p, func(j Job) bool { return j.ApprovalStatus == ApprovalPending })
}

func (s *MemoryStore) list(p utils.Page, keep func(Job) bool) ([]Job, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Job
	for _, j := range s.jobs {
		if keep(j) {
			out = append(out, j)
		}
	}
	slices.SortFunc(out, func(a, b Job) int {
		if c := b.SubmittedAt.Compare(a.SubmittedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	start, end := p.Window(len(out))
	return out[start:end], len(out), nil
}

func (s *MemoryStore) ListRecipients(_ context.Context, tenantID, jobID string, p utils.Page) ([]Recipient, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Recipient
	for _, r := range s.recipients {
		if r.TenantID == tenantID && r.JobID == jobID {
			out = append(out, r)
		}
	}
	start, end := p.Window(len(out))
	return out[start:end], len(out), nil
}

// CountRows returns the number of persisted jobs and recipients.
func (s *MemoryStore) CountRows() (jobs, recipients int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs), len(s.recipients)
}
