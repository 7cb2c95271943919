package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sms-gateway/internal/ledger"
	"sms-gateway/internal/tenant"
	"sms-gateway/pkg/utils"
)

// PostgresStore keeps jobs in sms_jobs and sms_recipients. Its transactions
// share one *sql.Tx with the ledger and tenant repositories.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

type sqlTx struct {
	ledger.SQLBook
	tenant.SQLDirectory
	tx *sql.Tx
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &sqlTx{
			SQLBook:      ledger.NewSQLBook(tx),
			SQLDirectory: tenant.NewSQLDirectory(tx),
			tx:           tx,
		})
	})
}

const jobColumns = `id, tenant_id, sender_id, job_type, source_type, group_id, message, encoding,
  total_recipients, total_segments, approval_status, status, created_by, submitted_at, scheduled_at,
  approved_by, approved_at, rejected_by, rejected_at, rejection_reason`

func (t *sqlTx) InsertJob(ctx context.Context, j Job) error {
	q := `INSERT INTO sms_jobs (` + jobColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20
)`
	_, err := t.tx.ExecContext(ctx, q,
		j.ID,
		j.TenantID,
		j.SenderID,
		j.JobType,
		j.Source,
		utils.NullString(j.GroupID),
		j.Message,
		j.Encoding,
		j.TotalRecipients,
		j.TotalSegments,
		j.ApprovalStatus,
		j.Status,
		j.CreatedBy,
		j.SubmittedAt,
		j.ScheduledAt,
		utils.NullString(j.ApprovedBy),
		utils.NullTime(j.ApprovedAt),
		utils.NullString(j.RejectedBy),
		utils.NullTime(j.RejectedAt),
		utils.NullString(j.RejectionReason),
	)
	return err
}

// recipientBatch keeps one INSERT well below the Postgres bind parameter limit.
const recipientBatch = 500

func (t *sqlTx) InsertRecipients(ctx context.Context, rs []Recipient) error {
	for start := 0; start < len(rs); start += recipientBatch {
		end := min(start+recipientBatch, len(rs))
		if err := t.insertRecipientBatch(ctx, rs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) insertRecipientBatch(ctx context.Context, rs []Recipient) error {
	const cols = 9
	var b strings.Builder
	b.WriteString(`INSERT INTO sms_recipients (id, tenant_id, job_id, sender_id, phone_number, message, encoding, status, created_at) VALUES `)
	args := make([]any, 0, len(rs)*cols)
	for i, r := range rs {
		if i > 0 {
			b.WriteString(",")
		}
		n := i * cols
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8, n+9)
		args = append(args, r.ID, r.TenantID, r.JobID, r.SenderID, r.PhoneNumber, r.Message, r.Encoding, r.Status, r.CreatedAt)
	}
	_, err := t.tx.ExecContext(ctx, b.String(), args...)
	return err
}

func (t *sqlTx) LockJob(ctx context.Context, jobID string) (Job, error) {
	q := `SELECT ` + jobColumns + ` FROM sms_jobs WHERE id = $1 FOR UPDATE`
	return scanJob(t.tx.QueryRowContext(ctx, q, jobID))
}

func (t *sqlTx) UpdateJobDecision(ctx context.Context, j Job) error {
	const q = `
UPDATE sms_jobs
SET approval_status = $2, status = $3,
    approved_by = $4, approved_at = $5,
    rejected_by = $6, rejected_at = $7, rejection_reason = $8
WHERE id = $1
`
	_, err := t.tx.ExecContext(ctx, q,
		j.ID,
		j.ApprovalStatus,
		j.Status,
		utils.NullString(j.ApprovedBy),
		utils.NullTime(j.ApprovedAt),
		utils.NullString(j.RejectedBy),
		utils.NullTime(j.RejectedAt),
		utils.NullString(j.RejectionReason),
	)
	return err
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (Job, error) {
	q := `SELECT ` + jobColumns + ` FROM sms_jobs WHERE id = $1`
	return scanJob(s.db.QueryRowContext(ctx, q, jobID))
}

func (s *PostgresStore) ListJobs(ctx context.Context, tenantID string, f Filter, p utils.Page) ([]Job, int, error) {
	where := `WHERE tenant_id = $1`
	args := []any{tenantID}
	if f.Status != "" {
		where += ` AND status = $2`
		args = append(args, f.Status)
	}
	return s.listJobs(ctx, where, args, p)
}

func (s *PostgresStore) ListPending(ctx context.Context, p utils.Page) ([]Job, int, error) {
	return s.listJobs(ctx, `WHERE approval_status = $1`, []any{ApprovalPending}, p)
}

func (s *PostgresStore) listJobs(ctx context.Context, where string, args []any, p utils.Page) ([]Job, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sms_jobs `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	q := fmt.Sprintf(`SELECT %s FROM sms_jobs %s ORDER BY submitted_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		jobColumns, where, n+1, n+2)
	rows, err := s.db.QueryContext(ctx, q, append(args, p.Size, p.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, j)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) ListRecipients(ctx context.Context, tenantID, jobID string, p utils.Page) ([]Recipient, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sms_recipients WHERE tenant_id = $1 AND job_id = $2`, tenantID, jobID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	const q = `
SELECT id, tenant_id, job_id, sender_id, phone_number, message, encoding, status, created_at, sent_at
FROM sms_recipients
WHERE tenant_id = $1 AND job_id = $2
ORDER BY created_at, id
LIMIT $3 OFFSET $4
`
	rows, err := s.db.QueryContext(ctx, q, tenantID, jobID, p.Size, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var (
			r      Recipient
			sentAt sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.TenantID, &r.JobID, &r.SenderID, &r.PhoneNumber, &r.Message,
			&r.Encoding, &r.Status, &r.CreatedAt, &sentAt); err != nil {
			return nil, 0, err
		}
		r.SentAt = utils.TimePtr(sentAt)
		out = append(out, r)
	}
	return out, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(s rowScanner) (Job, error) {
	var (
		j               Job
		groupID         sql.NullString
		approvedBy      sql.NullString
		rejectedBy      sql.NullString
		rejectionReason sql.NullString
		approvedAt      sql.NullTime
		rejectedAt      sql.NullTime
	)
	err := s.Scan(
		&j.ID,
		&j.TenantID,
		&j.SenderID,
		&j.JobType,
		&j.Source,
		&groupID,
		&j.Message,
		&j.Encoding,
		&j.TotalRecipients,
		&j.TotalSegments,
		&j.ApprovalStatus,
		&j.Status,
		&j.CreatedBy,
		&j.SubmittedAt,
		&j.ScheduledAt,
		&approvedBy,
		&approvedAt,
		&rejectedBy,
		&rejectedAt,
		&rejectionReason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, err
	}
	j.GroupID = groupID.String
	j.ApprovedBy = approvedBy.String
	j.ApprovedAt = utils.TimePtr(approvedAt)
	j.RejectedBy = rejectedBy.String
	j.RejectedAt = utils.TimePtr(rejectedAt)
	j.RejectionReason = rejectionReason.String
	j.SubmittedAt = j.SubmittedAt.UTC()
	j.ScheduledAt = j.ScheduledAt.UTC()
	return j, nil
}
