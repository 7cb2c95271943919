package recipients

import "time"

// Group is a tenant-owned named list of contacts.
type Group struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Member struct {
	GroupID  string `json:"group_id" db:"group_id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	Phone    string `json:"phone" db:"phone"`
	Name     string `json:"name,omitempty" db:"name"`
}
