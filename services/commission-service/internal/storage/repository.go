package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/agenda/services/commission-service/internal/commission"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Filter struct {
	BusinessID     string
	ProfessionalID string
	From           time.Time
	To             time.Time
	Limit          int
}

type Repository struct {
	db DB
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// Insert reports false when the appointment already has a commission.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, c commission.Commission) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO commissions (appointment_id, business_id, professional_id, service_id,
			price_cents, rate_bps, amount_cents, settled_at, event_id)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9)
		ON CONFLICT (appointment_id) DO NOTHING
	`, c.AppointmentID, c.BusinessID, c.ProfessionalID, c.ServiceID,
		c.PriceCents, c.RateBps, c.AmountCents, c.SettledAt, c.EventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) List(ctx context.Context, f Filter) ([]commission.Commission, error) {
	query := `
		SELECT appointment_id::text, business_id::text, professional_id::text, COALESCE(service_id::text, ''),
			price_cents, rate_bps, amount_cents, settled_at, created_at
		FROM commissions
		WHERE business_id = $1 AND settled_at >= $2 AND settled_at < $3`
	args := []any{f.BusinessID, f.From, f.To}
	if f.ProfessionalID != "" {
		args = append(args, f.ProfessionalID)
		query += ` AND professional_id = $` + strconv.Itoa(len(args))
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	args = append(args, limit)
	query += ` ORDER BY settled_at, appointment_id LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []commission.Commission{}
	for rows.Next() {
		var c commission.Commission
		if err := rows.Scan(&c.AppointmentID, &c.BusinessID, &c.ProfessionalID, &c.ServiceID,
			&c.PriceCents, &c.RateBps, &c.AmountCents, &c.SettledAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
