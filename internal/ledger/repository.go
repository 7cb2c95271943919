package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sms-gateway/pkg/utils"
)

// SQLBook is the Postgres Repository. It expects the tenants table (credit_balance
// column) and the append-only credit_ledger table with
// UNIQUE (tenant_id, idempotency_key).
//
// q is usually a *sql.Tx owned by the caller's unit of work.
type SQLBook struct {
	q utils.DBTX
}

func NewSQLBook(q utils.DBTX) SQLBook { return SQLBook{q: q} }

func (b SQLBook) LockBalance(ctx context.Context, tenantID string) (int64, error) {
	// Row lock on the tenant serializes every money operation for it.
	const q = `
SELECT credit_balance
FROM tenants
WHERE id = $1
FOR UPDATE
`
	var bal int64
	if err := b.q.QueryRowContext(ctx, q, tenantID).Scan(&bal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrTenantNotFound
		}
		return 0, err
	}
	return bal, nil
}

func (b SQLBook) SetBalance(ctx context.Context, tenantID string, credits int64, at time.Time) error {
	const q = `
UPDATE tenants
SET credit_balance = $2, updated_at = $3
WHERE id = $1
`
	res, err := b.q.ExecContext(ctx, q, tenantID, credits, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (b SQLBook) InsertEntry(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO credit_ledger (
  id, tenant_id, type, amount, balance_after, reason, external_ref, idempotency_key, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := b.q.ExecContext(ctx, q,
		e.ID,
		e.TenantID,
		e.Type,
		e.Amount,
		e.BalanceAfter,
		e.Reason,
		utils.NullString(e.ExternalRef),
		e.IdempotencyKey,
		e.CreatedAt,
	)
	return err
}

const entryColumns = `id, tenant_id, type, amount, balance_after, reason, external_ref, idempotency_key, created_at`

func (b SQLBook) FindEntryByIdempotency(ctx context.Context, tenantID, key string) (Entry, bool, error) {
	const q = `
SELECT ` + entryColumns + `
FROM credit_ledger
WHERE tenant_id = $1 AND idempotency_key = $2
LIMIT 1
`
	e, err := scanEntry(b.q.QueryRowContext(ctx, q, tenantID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return e, true, nil
}

func (b SQLBook) Balance(ctx context.Context, tenantID string) (Balance, error) {
	const q = `SELECT id, credit_balance, updated_at FROM tenants WHERE id = $1`
	var out Balance
	if err := b.q.QueryRowContext(ctx, q, tenantID).Scan(&out.TenantID, &out.Credits, &out.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrTenantNotFound
		}
		return Balance{}, err
	}
	return out, nil
}

// ListEntries returns the tenant's entries newest first plus the total count.
func (b SQLBook) ListEntries(ctx context.Context, tenantID string, p utils.Page) ([]Entry, int, error) {
	var total int
	if err := b.q.QueryRowContext(ctx, `SELECT count(*) FROM credit_ledger WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `
SELECT ` + entryColumns + `
FROM credit_ledger
WHERE tenant_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`
	rows, err := b.q.QueryContext(ctx, q, tenantID, p.Size, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// EntriesSince lists entries created at or after since, oldest first.
func (b SQLBook) EntriesSince(ctx context.Context, tenantID string, since time.Time) ([]Entry, error) {
	q := `
SELECT ` + entryColumns + `
FROM credit_ledger
WHERE tenant_id = $1 AND created_at >= $2
ORDER BY created_at ASC
`
	rows, err := b.q.QueryContext(ctx, q, tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e   Entry
		ref sql.NullString
	)
	if err := s.Scan(
		&e.ID,
		&e.TenantID,
		&e.Type,
		&e.Amount,
		&e.BalanceAfter,
		&e.Reason,
		&ref,
		&e.IdempotencyKey,
		&e.CreatedAt,
	); err != nil {
		return Entry{}, err
	}
	e.ExternalRef = ref.String
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

// PostgresStore runs ledger units of work against a pool.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, NewSQLBook(tx))
	})
}

func (s *PostgresStore) Balance(ctx context.Context, tenantID string) (Balance, error) {
	return NewSQLBook(s.db).Balance(ctx, tenantID)
}

func (s *PostgresStore) ListEntries(ctx context.Context, tenantID string, p utils.Page) ([]Entry, int, error) {
	return NewSQLBook(s.db).ListEntries(ctx, tenantID, p)
}

func (s *PostgresStore) EntriesSince(ctx context.Context, tenantID string, since time.Time) ([]Entry, error) {
	return NewSQLBook(s.db).EntriesSince(ctx, tenantID, since)
}
