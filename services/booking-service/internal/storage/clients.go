package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
)

type ClientRepository struct{}

func NewClientRepository() *ClientRepository {
	return &ClientRepository{}
}

// Upsert reuses the tenant's client with the same external id, refreshing
// name and contact, or creates one. Clients without an external id are
// always created. Runs inside the booking transaction so a failed insert
// leaves no orphan.
func (r *ClientRepository) Upsert(ctx context.Context, tx pgx.Tx, c *model.Client) error {
	if c.ExternalID == "" {
		return tx.QueryRow(ctx, `
			INSERT INTO clients (id, business_id, name, contact)
			VALUES ($1, $2, $3, $4)
			RETURNING id::text
		`, c.ID, c.BusinessID, c.Name, c.Contact).Scan(&c.ID)
	}
	return tx.QueryRow(ctx, `
		INSERT INTO clients (id, business_id, name, contact, external_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id, external_id) DO UPDATE
		SET name = EXCLUDED.name,
			contact = COALESCE(NULLIF(EXCLUDED.contact, ''), clients.contact),
			updated_at = now()
		RETURNING id::text
	`, c.ID, c.BusinessID, c.Name, c.Contact, c.ExternalID).Scan(&c.ID)
}
