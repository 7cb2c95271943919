package audit

import (
	"context"

	"sms-gateway/pkg/utils"
)

// SQLRepo appends to the audit_events table.
type SQLRepo struct {
	db utils.DBTX
}

func NewSQLRepo(db utils.DBTX) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, tenant_id, type, actor_user_id, actor_role, ip_address,
  job_id, payment_id, tier_id, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		utils.NullString(e.TenantID),
		e.Type,
		utils.NullString(e.ActorUserID),
		utils.NullString(e.ActorRole),
		utils.NullString(e.IPAddress),
		utils.NullString(e.JobID),
		utils.NullString(e.PaymentID),
		utils.NullString(e.TierID),
		e.Message,
		utils.NullString(e.Metadata),
		e.CreatedAt,
	)
	return err
}
