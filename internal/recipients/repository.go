package recipients

import (
	"context"
	"database/sql"
	"errors"

	"sms-gateway/pkg/utils"
)

// SQLGroups reads contact_groups and contact_group_members.
type SQLGroups struct {
	db utils.DBTX
}

func NewSQLGroups(db utils.DBTX) *SQLGroups { return &SQLGroups{db: db} }

func (r *SQLGroups) GetGroup(ctx context.Context, tenantID, groupID string) (Group, error) {
	const q = `
SELECT id, tenant_id, name, created_at
FROM contact_groups
WHERE tenant_id = $1 AND id = $2
`
	var g Group
	if err := r.db.QueryRowContext(ctx, q, tenantID, groupID).Scan(&g.ID, &g.TenantID, &g.Name, &g.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Group{}, ErrGroupNotFound
		}
		return Group{}, err
	}
	return g, nil
}

// MemberPhones lists member phones in insertion order.
func (r *SQLGroups) MemberPhones(ctx context.Context, tenantID, groupID string) ([]string, error) {
	const q = `
SELECT phone
FROM contact_group_members
WHERE tenant_id = $1 AND group_id = $2
ORDER BY created_at, phone
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
