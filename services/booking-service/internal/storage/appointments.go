package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
)

type AppointmentRepository struct {
	db DB
}

func NewAppointmentRepository(db DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

const appointmentColumns = `
	id::text, business_id::text, COALESCE(professional_id::text, ''), COALESCE(service_id::text, ''),
	COALESCE(client_id::text, ''), start_at, end_at, status, payment_state, payment_method,
	price_cents, paid_cents, note, payment_ref, hold_expires_at, cancelled_at, cancel_reason,
	completed_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status, paymentState, method string
	err := row.Scan(
		&a.ID, &a.BusinessID, &a.ProfessionalID, &a.ServiceID,
		&a.ClientID, &a.StartAt, &a.EndAt, &status, &paymentState, &method,
		&a.PriceCents, &a.PaidCents, &a.Note, &a.PaymentRef, &a.HoldExpiresAt, &a.CancelledAt, &a.CancelReason,
		&a.CompletedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Lifecycle(status)
	a.PaymentState = model.PaymentState(paymentState)
	a.PaymentMethod = model.PaymentMethod(method)
	return a, nil
}

// Insert writes a new appointment. An overlap with another non-cancelled
// appointment on the same occupancy key is rejected by the exclusion
// constraint and returned as *apperr.ConflictError; tx is then aborted up to
// its innermost savepoint.
func (r *AppointmentRepository) Insert(ctx context.Context, tx pgx.Tx, a *model.Appointment) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, business_id, professional_id, service_id, client_id, start_at, end_at, status,
			 payment_state, payment_method, price_cents, paid_cents, note, hold_expires_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, NULLIF($5, '')::uuid, $6, $7, $8,
			$9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`, a.ID, a.BusinessID, a.ProfessionalID, a.ServiceID, a.ClientID, a.StartAt, a.EndAt, string(a.Status),
		string(a.PaymentState), string(a.PaymentMethod), a.PriceCents, a.PaidCents, a.Note, a.HoldExpiresAt,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if IsConflict(err) {
		return &apperr.ConflictError{ProfessionalID: a.ProfessionalID, Start: a.StartAt}
	}
	return err
}

func (r *AppointmentRepository) Get(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	a, err := scanAppointment(r.db.QueryRow(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND business_id = $2
	`, appointmentID, businessID))
	return a, notFound(err)
}

// GetForUpdate locks the row for the rest of tx. An empty businessID matches
// any tenant; payment reconciliation only knows the appointment id.
func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, businessID, appointmentID string) (model.Appointment, error) {
	a, err := scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND ($2 = '' OR business_id::text = $2)
		FOR UPDATE
	`, appointmentID, businessID))
	return a, notFound(err)
}

// Save persists the mutable state columns. Timing and ownership columns never
// change after insert.
func (r *AppointmentRepository) Save(ctx context.Context, tx pgx.Tx, a *model.Appointment) error {
	return tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			payment_state = $3,
			paid_cents = $4,
			payment_ref = $5,
			hold_expires_at = $6,
			cancelled_at = $7,
			cancel_reason = $8,
			completed_at = $9,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, string(a.Status), string(a.PaymentState), a.PaidCents, a.PaymentRef, a.HoldExpiresAt,
		a.CancelledAt, a.CancelReason, a.CompletedAt,
	).Scan(&a.UpdatedAt)
}

// Occupied implements availability.Occupancy over non-cancelled appointments.
func (r *AppointmentRepository) Occupied(ctx context.Context, businessID string, window availability.Interval) (map[string][]availability.Interval, error) {
	rows, err := r.db.Query(ctx, `
		SELECT COALESCE(professional_id::text, ''), start_at, end_at
		FROM appointments
		WHERE business_id = $1
			AND status <> 'cancelled'
			AND start_at < $3
			AND end_at > $2
		ORDER BY start_at
	`, businessID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]availability.Interval{}
	for rows.Next() {
		var key string
		var iv availability.Interval
		if err := rows.Scan(&key, &iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out[key] = append(out[key], iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListBetween returns the business's appointments starting in [from, to),
// cancelled ones included.
func (r *AppointmentRepository) ListBetween(ctx context.Context, businessID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1 AND start_at >= $2 AND start_at < $3
		ORDER BY start_at ASC, id ASC
	`, businessID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// LockExpiredHolds selects pending online appointments with nothing paid
// whose hold has lapsed, skipping rows another sweeper already holds.
func (r *AppointmentRepository) LockExpiredHolds(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]model.Appointment, error) {
	rows, err := tx.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
			AND paid_cents = 0
			AND hold_expires_at IS NOT NULL
			AND hold_expires_at <= $1
		ORDER BY hold_expires_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
