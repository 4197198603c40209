// Package settlement enqueues the commission sync for appointments that
// reach completed+paid.
package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/outbox"
)

type ProfessionalLookup interface {
	GetProfessional(ctx context.Context, businessID, professionalID string) (model.Professional, error)
}

type EventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type FailureCounter interface {
	IncCommissionSyncFailure()
}

// Payload is the body of agenda.appointment.settled.v1.
type Payload struct {
	AppointmentID  string    `json:"appointment_id"`
	BusinessID     string    `json:"business_id"`
	ProfessionalID string    `json:"professional_id"`
	ServiceID      string    `json:"service_id"`
	PriceCents     int64     `json:"price_cents"`
	PaidCents      int64     `json:"paid_cents"`
	CommissionBps  int       `json:"commission_bps"`
	SettledAt      time.Time `json:"settled_at"`
}

type Notifier struct {
	catalog  ProfessionalLookup
	events   EventWriter
	failures FailureCounter
	logger   *slog.Logger
}

func NewNotifier(catalog ProfessionalLookup, events EventWriter, failures FailureCounter, logger *slog.Logger) *Notifier {
	return &Notifier{catalog: catalog, events: events, failures: failures, logger: logger}
}

// Notify writes the settled event inside a savepoint of tx. Any failure is
// logged and rolled back to the savepoint; the caller's appointment change
// still commits.
func (n *Notifier) Notify(ctx context.Context, tx pgx.Tx, a model.Appointment) {
	if !a.Settled() {
		return
	}
	if err := n.enqueue(ctx, tx, a); err != nil {
		n.failures.IncCommissionSyncFailure()
		n.logger.Error("commission sync enqueue failed",
			"appointment_id", a.ID,
			"business_id", a.BusinessID,
			"professional_id", a.ProfessionalID,
			"err", err,
		)
	}
}

func (n *Notifier) enqueue(ctx context.Context, tx pgx.Tx, a model.Appointment) error {
	p, err := n.catalog.GetProfessional(ctx, a.BusinessID, a.ProfessionalID)
	if err != nil {
		return err
	}
	settledAt := a.UpdatedAt
	if a.CompletedAt != nil && a.CompletedAt.After(settledAt) {
		settledAt = *a.CompletedAt
	}
	evt, err := outbox.AppointmentEvent(outbox.TopicAppointmentSettled, a.ID, a.BusinessID, Payload{
		AppointmentID:  a.ID,
		BusinessID:     a.BusinessID,
		ProfessionalID: a.ProfessionalID,
		ServiceID:      a.ServiceID,
		PriceCents:     a.PriceCents,
		PaidCents:      a.PaidCents,
		CommissionBps:  p.CommissionBps,
		SettledAt:      settledAt.UTC(),
	})
	if err != nil {
		return err
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := n.events.Insert(ctx, sp, evt); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}
