package funding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sms-gateway/internal/ledger"
	"sms-gateway/internal/tenant"
	"sms-gateway/pkg/utils"
)

// PostgresStore keeps payments in payment_transactions and credits through the
// ledger tables inside the same *sql.Tx.
type PostgresStore struct {
	db  *sql.DB
	dir tenant.SQLDirectory
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, dir: tenant.NewSQLDirectory(db)}
}

type sqlTx struct {
	ledger.SQLBook
	tx *sql.Tx
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &sqlTx{SQLBook: ledger.NewSQLBook(tx), tx: tx})
	})
}

func (s *PostgresStore) GetTenant(ctx context.Context, id string) (tenant.Tenant, error) {
	return s.dir.GetTenant(ctx, id)
}

const txColumns = `id, tenant_id, tier_id, amount_paid, currency, sms_credited, payment_status,
  checkout_url, failure_reason, created_at, updated_at`

func (s *PostgresStore) InsertTransaction(ctx context.Context, t Transaction) error {
	q := `INSERT INTO payment_transactions (` + txColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := s.db.ExecContext(ctx, q,
		t.ID,
		t.TenantID,
		utils.NullString(t.TierID),
		t.AmountPaid,
		t.Currency,
		t.SmsCredited,
		t.Status,
		utils.NullString(t.CheckoutURL),
		utils.NullString(t.FailureReason),
		t.CreatedAt,
		t.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) SetCheckoutURL(ctx context.Context, id, url string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payment_transactions SET checkout_url = $2, updated_at = $3 WHERE id = $1`,
		id, utils.NullString(url), at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *PostgresStore) FailInProgress(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	const stmt = `
UPDATE payment_transactions
SET payment_status = $2, failure_reason = $3, updated_at = $4
WHERE id = $1 AND payment_status = $5
`
	res, err := s.db.ExecContext(ctx, stmt, id, StatusFailed, utils.NullString(reason), at, StatusInProgress)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *sqlTx) SaveTransaction(ctx context.Context, tr Transaction) error {
	const stmt = `
UPDATE payment_transactions
SET payment_status = $2, checkout_url = $3, failure_reason = $4, updated_at = $5
WHERE id = $1
`
	res, err := t.tx.ExecContext(ctx, stmt, tr.ID, tr.Status,
		utils.NullString(tr.CheckoutURL), utils.NullString(tr.FailureReason), tr.UpdatedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (t *sqlTx) LockTransaction(ctx context.Context, id string) (Transaction, error) {
	q := `SELECT ` + txColumns + ` FROM payment_transactions WHERE id = $1 FOR UPDATE`
	return scanTransaction(t.tx.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	q := `SELECT ` + txColumns + ` FROM payment_transactions WHERE id = $1`
	return scanTransaction(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) ListTransactions(ctx context.Context, f Filter, p utils.Page) ([]Transaction, int, error) {
	where := `WHERE TRUE`
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(` AND payment_status = $%d`, len(args))
	}
	if f.TenantID != "" {
		args = append(args, f.TenantID)
		where += fmt.Sprintf(` AND tenant_id = $%d`, len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM payment_transactions `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	q := fmt.Sprintf(`SELECT %s FROM payment_transactions %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		txColumns, where, n+1, n+2)
	out, err := s.query(ctx, q, append(args, p.Size, p.Offset())...)
	return out, total, err
}

func (s *PostgresStore) SuccessfulSince(ctx context.Context, since time.Time) ([]Transaction, error) {
	q := `SELECT ` + txColumns + ` FROM payment_transactions
WHERE payment_status = $1 AND created_at >= $2
ORDER BY created_at ASC`
	return s.query(ctx, q, StatusSuccessful, since)
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (Transaction, error) {
	var (
		t        Transaction
		tierID   sql.NullString
		checkout sql.NullString
		reason   sql.NullString
	)
	err := s.Scan(&t.ID, &t.TenantID, &tierID, &t.AmountPaid, &t.Currency, &t.SmsCredited, &t.Status,
		&checkout, &reason, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	t.TierID = tierID.String
	t.CheckoutURL = checkout.String
	t.FailureReason = reason.String
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}
