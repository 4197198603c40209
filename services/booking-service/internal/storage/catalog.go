package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
)

// CatalogRepository reads the business, professional and service data the
// engine consumes. Writes belong to the business administration surface.
type CatalogRepository struct {
	db DB
}

func NewCatalogRepository(db DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) GetBusiness(ctx context.Context, businessID string) (model.Business, error) {
	var b model.Business
	err := r.db.QueryRow(ctx, `
		SELECT id::text, slug, name, timezone, deposit_percent, COALESCE(gateway_account, ''),
			auto_confirm_on_deposit, slot_granularity_minutes
		FROM businesses
		WHERE id = $1
	`, businessID).Scan(&b.ID, &b.Slug, &b.Name, &b.Timezone, &b.DepositPercent, &b.GatewayAccount,
		&b.AutoConfirmOnDeposit, &b.SlotGranularityMinutes)
	if err != nil {
		return model.Business{}, notFound(err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT weekday, closed, start_minute, end_minute
		FROM business_hours
		WHERE business_id = $1
		ORDER BY weekday, start_minute
	`, businessID)
	if err != nil {
		return model.Business{}, err
	}
	defer rows.Close()

	b.Schedule = model.WeeklySchedule{}
	for rows.Next() {
		var weekday, start, end int
		var closed bool
		if err := rows.Scan(&weekday, &closed, &start, &end); err != nil {
			return model.Business{}, err
		}
		addHours(b.Schedule, weekday, closed, start, end)
	}
	if rows.Err() != nil {
		return model.Business{}, rows.Err()
	}
	return b, nil
}

func (r *CatalogRepository) GetProfessional(ctx context.Context, businessID, professionalID string) (model.Professional, error) {
	pros, err := r.listProfessionals(ctx, businessID, professionalID)
	if err != nil {
		return model.Professional{}, err
	}
	if len(pros) == 0 {
		return model.Professional{}, fmt.Errorf("professional %s: %w", professionalID, apperr.ErrNotFound)
	}
	return pros[0], nil
}

// ListProfessionals returns the business's active professionals ordered by id.
func (r *CatalogRepository) ListProfessionals(ctx context.Context, businessID string) ([]model.Professional, error) {
	return r.listProfessionals(ctx, businessID, "")
}

func (r *CatalogRepository) listProfessionals(ctx context.Context, businessID, professionalID string) ([]model.Professional, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id::text, p.name, p.commission_bps,
			h.weekday, h.start_minute, h.end_minute
		FROM professionals p
		LEFT JOIN professional_hours h ON h.professional_id = p.id
		WHERE p.business_id = $1
			AND p.active
			AND ($2 = '' OR p.id::text = $2)
		ORDER BY p.id, h.weekday, h.start_minute
	`, businessID, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Professional
	for rows.Next() {
		var id, name string
		var bps int
		var weekday, start, end *int
		if err := rows.Scan(&id, &name, &bps, &weekday, &start, &end); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].ID != id {
			out = append(out, model.Professional{
				ID:            id,
				BusinessID:    businessID,
				Name:          name,
				CommissionBps: bps,
				Active:        true,
				Schedule:      model.WeeklySchedule{},
			})
		}
		if weekday != nil && start != nil && end != nil {
			addHours(out[len(out)-1].Schedule, *weekday, false, *start, *end)
		}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *CatalogRepository) GetService(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	var s model.Service
	err := r.db.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, duration_minutes, price_cents, active
		FROM services
		WHERE id = $1 AND business_id = $2
	`, serviceID, businessID).Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.Active)
	if err != nil {
		return model.Service{}, notFound(err)
	}
	return s, nil
}

func addHours(s model.WeeklySchedule, weekday int, closed bool, start, end int) {
	day := time.Weekday(weekday)
	hours := s[day]
	if closed {
		hours.Closed = true
	} else {
		hours.Ranges = append(hours.Ranges, model.TimeRange{Start: start, End: end})
	}
	s[day] = hours
}
