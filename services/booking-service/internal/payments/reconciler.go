package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/storage"
)

type AppointmentStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, businessID, appointmentID string) (model.Appointment, error)
	Save(ctx context.Context, tx pgx.Tx, a *model.Appointment) error
}

type Ledger interface {
	Lock(ctx context.Context, tx pgx.Tx, ref, appointmentID, source string) (storage.PaymentEvent, error)
	Save(ctx context.Context, tx pgx.Tx, ev storage.PaymentEvent) error
}

type BusinessLookup interface {
	GetBusiness(ctx context.Context, businessID string) (model.Business, error)
}

type EventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type SettlementNotifier interface {
	Notify(ctx context.Context, tx pgx.Tx, a model.Appointment)
}

type Observer interface {
	ObservePaymentEvent(source, outcome, result string)
}

type Result struct {
	Appointment   model.Appointment
	Duplicate     bool
	CreditedCents int64
	Confirmed     bool
}

type Reconciler struct {
	appts    AppointmentStore
	ledger   Ledger
	catalog  BusinessLookup
	events   EventWriter
	settle   SettlementNotifier
	observer Observer
	logger   *slog.Logger
}

func NewReconciler(appts AppointmentStore, ledger Ledger, catalog BusinessLookup, events EventWriter, settle SettlementNotifier, observer Observer, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		appts:    appts,
		ledger:   ledger,
		catalog:  catalog,
		events:   events,
		settle:   settle,
		observer: observer,
		logger:   logger,
	}
}

// Reconcile applies ev exactly once per reference. A reference moves from
// pending to approved or rejected; once terminal, later deliveries are
// reported as duplicates and change nothing.
func (r *Reconciler) Reconcile(ctx context.Context, ev Event) (Result, error) {
	return r.reconcile(ctx, "", ev)
}

// ReconcileForBusiness is Reconcile restricted to one tenant's appointments.
func (r *Reconciler) ReconcileForBusiness(ctx context.Context, businessID string, ev Event) (Result, error) {
	if businessID == "" {
		return Result{}, apperr.ErrNotFound
	}
	return r.reconcile(ctx, businessID, ev)
}

func (r *Reconciler) reconcile(ctx context.Context, businessID string, ev Event) (res Result, err error) {
	ctx, span := otel.Tracer("booking-service/payments").Start(ctx, "payments.reconcile")
	span.SetAttributes(
		attribute.String("payment.ref", ev.Ref),
		attribute.String("payment.source", ev.Source),
		attribute.String("appointment.id", ev.AppointmentID),
	)
	defer span.End()
	defer func() {
		result := "applied"
		switch {
		case err != nil:
			result = "error"
			span.RecordError(err)
		case res.Duplicate:
			result = "duplicate"
		}
		if r.observer != nil {
			r.observer.ObservePaymentEvent(ev.Source, OutcomeName(ev.Outcome), result)
		}
	}()

	if err := validate(ev); err != nil {
		return Result{}, err
	}

	tx, err := r.appts.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, err := r.ledger.Lock(ctx, tx, ev.Ref, ev.AppointmentID, ev.Source)
	if err != nil {
		return Result{}, fmt.Errorf("lock payment event: %w", err)
	}
	if rec.AppointmentID != ev.AppointmentID {
		return Result{}, apperr.Invalid("appointment_id", "does not match payment reference %s", ev.Ref)
	}

	a, err := r.appts.GetForUpdate(ctx, tx, businessID, ev.AppointmentID)
	if err != nil {
		return Result{}, err
	}

	next := ev.Outcome.status()
	if terminal(rec.Status) || (rec.Status == StatusPending && next == StatusPending) {
		r.logger.Info("payment event duplicate ignored",
			"external_payment_ref", ev.Ref,
			"appointment_id", ev.AppointmentID,
			"stored_status", rec.Status,
			"incoming_status", next,
		)
		if err := tx.Commit(ctx); err != nil {
			return Result{}, err
		}
		return Result{Appointment: a, Duplicate: true}, nil
	}

	res = Result{Appointment: a}
	switch o := ev.Outcome.(type) {
	case Approved:
		res, err = r.approve(ctx, tx, a, ev, o)
		if err != nil {
			return Result{}, err
		}
		rec.AmountCents = o.AmountCents
		rec.CreditedCents = res.CreditedCents
	case Rejected:
		r.logger.Warn("payment rejected",
			"external_payment_ref", ev.Ref,
			"appointment_id", a.ID,
			"reason", o.Reason,
		)
	case Pending:
	default:
		return Result{}, fmt.Errorf("unhandled payment outcome %T", ev.Outcome)
	}

	rec.Status = next
	rec.BusinessID = a.BusinessID
	if err := r.ledger.Save(ctx, tx, rec); err != nil {
		return Result{}, fmt.Errorf("save payment event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (r *Reconciler) approve(ctx context.Context, tx pgx.Tx, a model.Appointment, ev Event, o Approved) (Result, error) {
	before := a
	credited, err := lifecycle.ApplyPayment(&a, o.AmountCents)
	if errors.Is(err, apperr.ErrInvalidTransition) {
		// Refunded appointments take no further credit; the event is still
		// recorded so the operator can see it.
		r.logger.Warn("payment approved for refunded appointment",
			"external_payment_ref", ev.Ref,
			"appointment_id", a.ID,
		)
		return Result{Appointment: a}, nil
	}
	if err != nil {
		return Result{}, err
	}
	if a.Status == model.StatusCancelled {
		r.logger.Warn("payment approved after cancellation",
			"external_payment_ref", ev.Ref,
			"appointment_id", a.ID,
			"cancel_reason", a.CancelReason,
			"credited_cents", credited,
		)
	}

	b, err := r.catalog.GetBusiness(ctx, a.BusinessID)
	if err != nil {
		return Result{}, err
	}
	confirmed := lifecycle.AutoConfirm(&a, b)
	if a.PaymentRef == "" {
		a.PaymentRef = ev.Ref
	}
	if err := r.appts.Save(ctx, tx, &a); err != nil {
		return Result{}, err
	}

	evt, err := outbox.AppointmentEvent(outbox.TopicPaymentRecorded, a.ID, a.BusinessID, map[string]any{
		"appointment_id":       a.ID,
		"business_id":          a.BusinessID,
		"external_payment_ref": ev.Ref,
		"source":               ev.Source,
		"amount_cents":         o.AmountCents,
		"credited_cents":       credited,
		"paid_cents":           a.PaidCents,
		"payment_state":        a.PaymentState,
	})
	if err != nil {
		return Result{}, err
	}
	if err := r.events.Insert(ctx, tx, evt); err != nil {
		return Result{}, err
	}
	if confirmed {
		evt, err := outbox.AppointmentEvent(outbox.TopicAppointmentConfirmed, a.ID, a.BusinessID, map[string]any{
			"appointment_id":  a.ID,
			"business_id":     a.BusinessID,
			"professional_id": a.ProfessionalID,
			"start_at":        a.StartAt,
			"confirmed_by":    "payment",
		})
		if err != nil {
			return Result{}, err
		}
		if err := r.events.Insert(ctx, tx, evt); err != nil {
			return Result{}, err
		}
	}
	if lifecycle.BecameSettled(before, a) {
		r.settle.Notify(ctx, tx, a)
	}

	r.logger.Info("payment applied",
		"external_payment_ref", ev.Ref,
		"appointment_id", a.ID,
		"business_id", a.BusinessID,
		"credited_cents", credited,
		"payment_state", a.PaymentState,
		"confirmed", confirmed,
	)
	return Result{Appointment: a, CreditedCents: credited, Confirmed: confirmed}, nil
}

func validate(ev Event) error {
	if ev.Ref == "" {
		return apperr.Invalid("external_payment_ref", "is required")
	}
	if _, err := uuid.Parse(ev.AppointmentID); err != nil {
		return apperr.Invalid("appointment_id", "must be a uuid")
	}
	if ev.Outcome == nil {
		return apperr.Invalid("status", "must be approved, rejected or pending")
	}
	if o, ok := ev.Outcome.(Approved); ok && o.AmountCents <= 0 {
		return apperr.Invalid("amount", "must be greater than zero for approved payments")
	}
	return nil
}
