package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sms-gateway/pkg/utils"
)

// SQLDirectory reads tenants, senders and api keys. q may be the pool or a
// transaction shared with the ledger.
type SQLDirectory struct {
	q utils.DBTX
}

func NewSQLDirectory(q utils.DBTX) SQLDirectory { return SQLDirectory{q: q} }

func (d SQLDirectory) GetTenant(ctx context.Context, id string) (Tenant, error) {
	const q = `
SELECT id, name, status, credit_balance, approval_threshold, email, phone, created_at, updated_at
FROM tenants
WHERE id = $1
`
	t, err := scanTenant(d.q.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Tenant{}, ErrTenantNotFound
	}
	return t, err
}

const senderColumns = `id, tenant_id, name, short_code, status, rejection_reason, created_at, updated_at`

// GetSender only returns senders owned by tenantID; a foreign sender is not found.
func (d SQLDirectory) GetSender(ctx context.Context, tenantID, senderID string) (Sender, error) {
	q := `SELECT ` + senderColumns + ` FROM senders WHERE tenant_id = $1 AND id = $2`
	return scanSenderRow(d.q.QueryRowContext(ctx, q, tenantID, senderID))
}

func (d SQLDirectory) FindSender(ctx context.Context, senderID string) (Sender, error) {
	q := `SELECT ` + senderColumns + ` FROM senders WHERE id = $1`
	return scanSenderRow(d.q.QueryRowContext(ctx, q, senderID))
}

func (d SQLDirectory) InsertSender(ctx context.Context, s Sender) error {
	const q = `
INSERT INTO senders (id, tenant_id, name, short_code, status, rejection_reason, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err := d.q.ExecContext(ctx, q, s.ID, s.TenantID, s.Name, utils.NullString(s.ShortCode), s.Status,
		utils.NullString(s.RejectionReason), s.CreatedAt, s.UpdatedAt)
	return err
}

// UpdateSender writes s only while the stored status is one of from, so two
// reviewers cannot both act on the same submission.
func (d SQLDirectory) UpdateSender(ctx context.Context, s Sender, from ...SenderStatus) error {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}
	const q = `
UPDATE senders
SET name = $3, short_code = $4, status = $5, rejection_reason = $6, updated_at = $7
WHERE tenant_id = $1 AND id = $2 AND status = ANY($8)
`
	res, err := d.q.ExecContext(ctx, q, s.TenantID, s.ID, s.Name, utils.NullString(s.ShortCode), s.Status,
		utils.NullString(s.RejectionReason), s.UpdatedAt, allowed)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSenderStale
	}
	return nil
}

// DeleteSender removes the sender with its api keys. Senders referenced by a
// job are kept for the job history and report ErrSenderInUse.
func (d SQLDirectory) DeleteSender(ctx context.Context, tenantID, senderID string) error {
	const q = `
WITH keys AS (
    DELETE FROM api_keys WHERE tenant_id = $1 AND sender_id = $2
)
DELETE FROM senders WHERE tenant_id = $1 AND id = $2
`
	res, err := d.q.ExecContext(ctx, q, tenantID, senderID)
	if err != nil {
		if utils.IsForeignKeyViolation(err) {
			return ErrSenderInUse
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSenderNotFound
	}
	return nil
}

func (d SQLDirectory) ListSenders(ctx context.Context, f SenderFilter, p utils.Page) ([]Sender, int, error) {
	where := `WHERE TRUE`
	var args []any
	if f.TenantID != "" {
		args = append(args, f.TenantID)
		where += fmt.Sprintf(` AND tenant_id = $%d`, len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	var total int
	if err := d.q.QueryRowContext(ctx, `SELECT count(*) FROM senders `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := fmt.Sprintf(`SELECT %s FROM senders %s ORDER BY created_at, id LIMIT $%d OFFSET $%d`,
		senderColumns, where, len(args)+1, len(args)+2)
	rows, err := d.q.QueryContext(ctx, q, append(args, p.Size, p.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Sender
	for rows.Next() {
		s, err := scanSender(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (d SQLDirectory) UpdateTenantStatus(ctx context.Context, tenantID string, status Status, at time.Time) error {
	res, err := d.q.ExecContext(ctx,
		`UPDATE tenants SET status = $2, updated_at = $3 WHERE id = $1`,
		tenantID, status, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (d SQLDirectory) ListTenants(ctx context.Context, p utils.Page) ([]Tenant, int, error) {
	var total int
	if err := d.q.QueryRowContext(ctx, `SELECT count(*) FROM tenants`).Scan(&total); err != nil {
		return nil, 0, err
	}
	const q = `
SELECT id, name, status, credit_balance, approval_threshold, email, phone, created_at, updated_at
FROM tenants
ORDER BY created_at, id
LIMIT $1 OFFSET $2
`
	rows, err := d.q.QueryContext(ctx, q, p.Size, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (d SQLDirectory) UpdateApprovalThreshold(ctx context.Context, tenantID string, threshold int, at time.Time) error {
	res, err := d.q.ExecContext(ctx,
		`UPDATE tenants SET approval_threshold = $2, updated_at = $3 WHERE id = $1`,
		tenantID, threshold, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (d SQLDirectory) InsertAPIKey(ctx context.Context, k APIKey) error {
	const q = `
INSERT INTO api_keys (id, tenant_id, sender_id, name, key_hash, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := d.q.ExecContext(ctx, q, k.ID, k.TenantID, k.SenderID, k.Name, k.KeyHash, k.Active, k.CreatedAt)
	return err
}

const apiKeyColumns = `id, tenant_id, sender_id, name, key_hash, active, created_at`

func (d SQLDirectory) FindAPIKeyByHash(ctx context.Context, hash string) (APIKey, error) {
	q := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`
	k, err := scanAPIKey(d.q.QueryRowContext(ctx, q, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return APIKey{}, ErrAPIKeyNotFound
	}
	return k, err
}

func (d SQLDirectory) ListAPIKeys(ctx context.Context, tenantID string, p utils.Page) ([]APIKey, int, error) {
	var total int
	if err := d.q.QueryRowContext(ctx, `SELECT count(*) FROM api_keys WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := d.q.QueryContext(ctx, q, tenantID, p.Size, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, k)
	}
	return out, total, rows.Err()
}

func (d SQLDirectory) RevokeAPIKey(ctx context.Context, tenantID, keyID string) error {
	res, err := d.q.ExecContext(ctx, `UPDATE api_keys SET active = false WHERE tenant_id = $1 AND id = $2`, tenantID, keyID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(s rowScanner) (Tenant, error) {
	var (
		t            Tenant
		email, phone sql.NullString
	)
	err := s.Scan(
		&t.ID,
		&t.Name,
		&t.Status,
		&t.CreditBalance,
		&t.ApprovalThreshold,
		&email,
		&phone,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	t.Email, t.Phone = email.String, phone.String
	return t, err
}

func scanSender(s rowScanner) (Sender, error) {
	var (
		sd           Sender
		code, reason sql.NullString
	)
	err := s.Scan(&sd.ID, &sd.TenantID, &sd.Name, &code, &sd.Status, &reason, &sd.CreatedAt, &sd.UpdatedAt)
	sd.ShortCode, sd.RejectionReason = code.String, reason.String
	return sd, err
}

func scanSenderRow(s rowScanner) (Sender, error) {
	sd, err := scanSender(s)
	if errors.Is(err, sql.ErrNoRows) {
		return Sender{}, ErrSenderNotFound
	}
	return sd, err
}

func scanAPIKey(s rowScanner) (APIKey, error) {
	var k APIKey
	err := s.Scan(&k.ID, &k.TenantID, &k.SenderID, &k.Name, &k.KeyHash, &k.Active, &k.CreatedAt)
	return k, err
}
