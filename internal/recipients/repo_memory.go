package recipients

import (
	"context"
	"sync"
)

type MemoryGroups struct {
	mu      sync.RWMutex
	groups  map[string]Group
	members map[string][]Member
}

func NewMemoryGroups() *MemoryGroups {
	return &MemoryGroups{groups: map[string]Group{}, members: map[string][]Member{}}
}

// Put stores a group with the given member phones, replacing any previous members.
func (m *MemoryGroups) Put(g Group, phones ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g
	ms := make([]Member, 0, len(phones))
	for _, p := range phones {
		ms = append(ms, Member{GroupID: g.ID, TenantID: g.TenantID, Phone: p})
	}
	m.members[g.ID] = ms
}

func (m *MemoryGroups) GetGroup(_ context.Context, tenantID, groupID string) (Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[groupID]
	if !ok || g.TenantID != tenantID {
		return Group{}, ErrGroupNotFound
	}
	return g, nil
}

func (m *MemoryGroups) MemberPhones(_ context.Context, tenantID, groupID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, mem := range m.members[groupID] {
		if mem.TenantID == tenantID {
			out = append(out, mem.Phone)
		}
	}
	return out, nil
}
