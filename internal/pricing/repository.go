package pricing

import (
	"context"
	"database/sql"
	"errors"

	"sms-gateway/pkg/utils"
)

type PostgresRepo struct {
	db utils.DBTX
}

func NewPostgresRepo(db utils.DBTX) *PostgresRepo { return &PostgresRepo{db: db} }

const tierColumns = `id, min_sms_count, max_sms_count, price_per_sms, description, is_active, created_at, updated_at`

func (r *PostgresRepo) ActiveTiers(ctx context.Context) ([]Tier, error) {
	return r.query(ctx, `SELECT `+tierColumns+` FROM sms_package_tiers WHERE is_active ORDER BY price_per_sms ASC, min_sms_count ASC`)
}

func (r *PostgresRepo) ListTiers(ctx context.Context) ([]Tier, error) {
	return r.query(ctx, `SELECT `+tierColumns+` FROM sms_package_tiers ORDER BY min_sms_count ASC, price_per_sms ASC`)
}

func (r *PostgresRepo) GetTier(ctx context.Context, id string) (Tier, error) {
	t, err := scanTier(r.db.QueryRowContext(ctx, `SELECT `+tierColumns+` FROM sms_package_tiers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Tier{}, ErrTierNotFound
	}
	return t, err
}

func (r *PostgresRepo) InsertTier(ctx context.Context, t Tier) error {
	const q = `
INSERT INTO sms_package_tiers (id, min_sms_count, max_sms_count, price_per_sms, description, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err := r.db.ExecContext(ctx, q, t.ID, t.MinSmsCount, nullInt(t.MaxSmsCount), t.PricePerSms,
		utils.NullString(t.Description), t.Active, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *PostgresRepo) UpdateTier(ctx context.Context, t Tier) error {
	const q = `
UPDATE sms_package_tiers
SET min_sms_count = $2, max_sms_count = $3, price_per_sms = $4, description = $5, is_active = $6, updated_at = $7
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, t.ID, t.MinSmsCount, nullInt(t.MaxSmsCount), t.PricePerSms,
		utils.NullString(t.Description), t.Active, t.UpdatedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTierNotFound
	}
	return nil
}

func (r *PostgresRepo) query(ctx context.Context, q string) ([]Tier, error) {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tier
	for rows.Next() {
		t, err := scanTier(rows)
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

func scanTier(s rowScanner) (Tier, error) {
	var (
		t    Tier
		max  sql.NullInt64
		desc sql.NullString
	)
	if err := s.Scan(&t.ID, &t.MinSmsCount, &max, &t.PricePerSms, &desc, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Tier{}, err
	}
	if max.Valid {
		v := int(max.Int64)
		t.MaxSmsCount = &v
	}
	t.Description = desc.String
	return t, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
