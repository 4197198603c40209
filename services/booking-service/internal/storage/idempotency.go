package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type IdempotencyRecord struct {
	BusinessID      string
	Key             string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

// Completed reports whether a previous request already stored its response.
func (r IdempotencyRecord) Completed() bool {
	return r.StatusCode > 0
}

type IdempotencyRepository struct{}

func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{}
}

// Lock claims (business, key) for the duration of tx. Concurrent requests
// with the same key wait on the row lock and then see the stored response.
func (r *IdempotencyRepository) Lock(ctx context.Context, tx pgx.Tx, businessID, key string) (IdempotencyRecord, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (business_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (business_id, idempotency_key) DO NOTHING
	`, businessID, key); err != nil {
		return IdempotencyRecord{}, err
	}

	rec := IdempotencyRecord{BusinessID: businessID, Key: key}
	var payload *string
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, ''), COALESCE(status_code, 0), response_payload::text
		FROM booking_idempotency_keys
		WHERE business_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, businessID, key).Scan(&rec.AppointmentID, &rec.StatusCode, &payload)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if payload != nil {
		rec.ResponsePayload = []byte(*payload)
	}
	return rec, nil
}

func (r *IdempotencyRepository) Finalize(ctx context.Context, tx pgx.Tx, rec IdempotencyRecord) error {
	tag, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = NULLIF($3, '')::uuid,
			status_code = $4,
			response_payload = $5::jsonb,
			updated_at = now()
		WHERE business_id = $1 AND idempotency_key = $2
	`, rec.BusinessID, rec.Key, rec.AppointmentID, rec.StatusCode, string(rec.ResponsePayload))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("idempotency key not locked")
	}
	return nil
}
