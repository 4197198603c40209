package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// PaymentEvent is the per-reference reconciliation record. Status is
// "received" until the first outcome is applied, then pending, approved or
// rejected.
type PaymentEvent struct {
	Ref           string
	AppointmentID string
	BusinessID    string
	Source        string
	Status        string
	AmountCents   int64
	CreditedCents int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type PaymentRepository struct{}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{}
}

// Lock returns the row for ref, creating it in status "received" first, and
// holds its lock for the rest of tx. Duplicate deliveries of the same ref
// serialize here.
func (r *PaymentRepository) Lock(ctx context.Context, tx pgx.Tx, ref, appointmentID, source string) (PaymentEvent, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO payment_events (external_payment_ref, appointment_id, source, status)
		VALUES ($1, $2, $3, 'received')
		ON CONFLICT (external_payment_ref) DO NOTHING
	`, ref, appointmentID, source); err != nil {
		return PaymentEvent{}, err
	}

	var ev PaymentEvent
	err := tx.QueryRow(ctx, `
		SELECT external_payment_ref, appointment_id::text, COALESCE(business_id::text, ''), source, status,
			amount_cents, credited_cents, created_at, updated_at
		FROM payment_events
		WHERE external_payment_ref = $1
		FOR UPDATE
	`, ref).Scan(&ev.Ref, &ev.AppointmentID, &ev.BusinessID, &ev.Source, &ev.Status,
		&ev.AmountCents, &ev.CreditedCents, &ev.CreatedAt, &ev.UpdatedAt)
	return ev, err
}

func (r *PaymentRepository) Save(ctx context.Context, tx pgx.Tx, ev PaymentEvent) error {
	_, err := tx.Exec(ctx, `
		UPDATE payment_events
		SET business_id = NULLIF($2, '')::uuid,
			status = $3,
			amount_cents = $4,
			credited_cents = $5,
			updated_at = now()
		WHERE external_payment_ref = $1
	`, ev.Ref, ev.BusinessID, ev.Status, ev.AmountCents, ev.CreditedCents)
	return err
}
