package tenant

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"sms-gateway/pkg/utils"
)

// MemoryDirectory is a Directory for tests and local wiring. Its lock is a leaf
// lock so it can be embedded in stores that hold their own.
type MemoryDirectory struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
	senders map[string]Sender
	keys    []APIKey
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{tenants: map[string]Tenant{}, senders: map[string]Sender{}}
}

// PutTenant stores t the way a fresh row would look: a missing status is
// ACTIVE and a zero threshold takes DefaultApprovalThreshold. Use
// UpdateApprovalThreshold for an explicit zero.
func (d *MemoryDirectory) PutTenant(t Tenant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.Status == "" {
		t.Status = StatusActive
	}
	if t.ApprovalThreshold == 0 {
		t.ApprovalThreshold = DefaultApprovalThreshold
	}
	d.tenants[t.ID] = t
}

func (d *MemoryDirectory) PutSender(s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[s.ID] = s
}

func (d *MemoryDirectory) FindSender(_ context.Context, senderID string) (Sender, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.senders[senderID]
	if !ok {
		return Sender{}, ErrSenderNotFound
	}
	return s, nil
}

func (d *MemoryDirectory) InsertSender(_ context.Context, s Sender) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[s.ID] = s
	return nil
}

func (d *MemoryDirectory) UpdateSender(_ context.Context, s Sender, from ...SenderStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.senders[s.ID]
	if !ok || cur.TenantID != s.TenantID || !slices.Contains(from, cur.Status) {
		return ErrSenderStale
	}
	s.CreatedAt = cur.CreatedAt
	d.senders[s.ID] = s
	return nil
}

func (d *MemoryDirectory) DeleteSender(_ context.Context, tenantID, senderID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.senders[senderID]
	if !ok || s.TenantID != tenantID {
		return ErrSenderNotFound
	}
	delete(d.senders, senderID)
	d.keys = slices.DeleteFunc(d.keys, func(k APIKey) bool { return k.SenderID == senderID })
	return nil
}

func (d *MemoryDirectory) ListSenders(_ context.Context, f SenderFilter, p utils.Page) ([]Sender, int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Sender
	for _, s := range d.senders {
		if (f.TenantID == "" || s.TenantID == f.TenantID) && (f.Status == "" || s.Status == f.Status) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b Sender) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	start, end := p.Window(len(out))
	return out[start:end], len(out), nil
}

func (d *MemoryDirectory) UpdateTenantStatus(_ context.Context, tenantID string, status Status, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tenants[tenantID]
	if !ok {
		return ErrTenantNotFound
	}
	t.Status = status
	t.UpdatedAt = at
	d.tenants[tenantID] = t
	return nil
}

// ListTenants returns tenants ordered by id.
func (d *MemoryDirectory) ListTenants(_ context.Context, p utils.Page) ([]Tenant, int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Tenant, 0, len(d.tenants))
	for _, t := range d.tenants {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Tenant) int { return strings.Compare(a.ID, b.ID) })
	start, end := p.Window(len(out))
	return out[start:end], len(out), nil
}

func (d *MemoryDirectory) GetTenant(_ context.Context, id string) (Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tenants[id]
	if !ok {
		return Tenant{}, ErrTenantNotFound
	}
	return t, nil
}

func (d *MemoryDirectory) GetSender(_ context.Context, tenantID, senderID string) (Sender, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.senders[senderID]
	if !ok || s.TenantID != tenantID {
		return Sender{}, ErrSenderNotFound
	}
	return s, nil
}

func (d *MemoryDirectory) UpdateApprovalThreshold(_ context.Context, tenantID string, threshold int, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tenants[tenantID]
	if !ok {
		return ErrTenantNotFound
	}
	t.ApprovalThreshold = threshold
	t.UpdatedAt = at
	d.tenants[tenantID] = t
	return nil
}

func (d *MemoryDirectory) InsertAPIKey(_ context.Context, k APIKey) error {
	d.mu.Lock()
	d.keys = append(d.keys, k)
	d.mu.Unlock()
	return nil
}

func (d *MemoryDirectory) FindAPIKeyByHash(_ context.Context, hash string) (APIKey, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, k := range d.keys {
		if k.KeyHash == hash {
			return k, nil
		}
	}
	return APIKey{}, ErrAPIKeyNotFound
}

func (d *MemoryDirectory) ListAPIKeys(_ context.Context, tenantID string, p utils.Page) ([]APIKey, int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var mine []APIKey
	for _, k := range slices.Backward(d.keys) {
		if k.TenantID == tenantID {
			mine = append(mine, k)
		}
	}
	start, end := p.Window(len(mine))
	return mine[start:end], len(mine), nil
}

func (d *MemoryDirectory) RevokeAPIKey(_ context.Context, tenantID, keyID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.keys {
		if d.keys[i].ID == keyID && d.keys[i].TenantID == tenantID {
			d.keys[i].Active = false
			return nil
		}
	}
	return ErrAPIKeyNotFound
}
