// Package booking runs the appointment operations that touch storage: the
// guarded booking transaction, staff lifecycle actions, blocks and payment
// initiation.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/slotcache"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/storage"
)

type Catalog interface {
	GetBusiness(ctx context.Context, businessID string) (model.Business, error)
	GetProfessional(ctx context.Context, businessID, professionalID string) (model.Professional, error)
	ListProfessionals(ctx context.Context, businessID string) ([]model.Professional, error)
	GetService(ctx context.Context, businessID, serviceID string) (model.Service, error)
}

type Appointments interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Insert(ctx context.Context, tx pgx.Tx, a *model.Appointment) error
	Get(ctx context.Context, businessID, appointmentID string) (model.Appointment, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, businessID, appointmentID string) (model.Appointment, error)
	Save(ctx context.Context, tx pgx.Tx, a *model.Appointment) error
	ListBetween(ctx context.Context, businessID string, from, to time.Time) ([]model.Appointment, error)
}

type Clients interface {
	Upsert(ctx context.Context, tx pgx.Tx, c *model.Client) error
}

type IdempotencyKeys interface {
	Lock(ctx context.Context, tx pgx.Tx, businessID, key string) (storage.IdempotencyRecord, error)
	Finalize(ctx context.Context, tx pgx.Tx, rec storage.IdempotencyRecord) error
}

type EventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Candidates ranks the professionals free for [start, end).
type Candidates interface {
	Candidates(ctx context.Context, b model.Business, start, end time.Time) ([]model.Professional, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, businessID string, dates ...string) error
}

type SettlementNotifier interface {
	Notify(ctx context.Context, tx pgx.Tx, a model.Appointment)
}

type PaymentRecorder interface {
	ReconcileForBusiness(ctx context.Context, businessID string, ev payments.Event) (payments.Result, error)
}

type Observer interface {
	ObserveBooking(outcome string, elapsed time.Duration)
}

type Deps struct {
	Catalog      Catalog
	Appointments Appointments
	Clients      Clients
	Idempotency  IdempotencyKeys
	Events       EventWriter
	Candidates   Candidates
	Gateway      payments.Gateway
	Cache        Invalidator
	Settlement   SettlementNotifier
	Payments     PaymentRecorder
	Observer     Observer
	Logger       *slog.Logger
}

type Config struct {
	// HoldTTL bounds how long an unpaid online booking keeps its slot. Zero
	// disables expiry; shorter values are raised to payments.MinHoldTTL so
	// the checkout session never outlives the hold.
	HoldTTL  time.Duration
	Currency string
	Policy   lifecycle.Policy
}

type Service struct {
	Deps
	cfg Config
	now func() time.Time
}

func NewService(deps Deps, cfg Config) *Service {
	if cfg.Policy.MaxShortfallPercent <= 0 {
		cfg.Policy = lifecycle.DefaultPolicy()
	}
	if cfg.HoldTTL > 0 && cfg.HoldTTL < payments.MinHoldTTL {
		cfg.HoldTTL = payments.MinHoldTTL
	}
	return &Service{Deps: deps, cfg: cfg, now: time.Now}
}

type ClientInput struct {
	Name       string `json:"name"`
	Contact    string `json:"contact"`
	ExternalID string `json:"external_id,omitempty"`
}

type Request struct {
	BusinessID     string
	ServiceID      string
	ProfessionalID string
	Date           string
	StartTime      string
	Client         ClientInput
	PaymentMethod  string
	IdempotencyKey string
}

// Result is the outcome of Book. When Replay is set the request matched a
// stored idempotency key and Replay carries the original response.
type Result struct {
	Appointment model.Appointment
	Checkout    *payments.Checkout
	PaymentErr  error
	Replay      *storage.IdempotencyRecord
}

// Book runs the booking transaction: resolve the slot, upsert the client and
// insert the appointment under the overlap constraint. A lost race surfaces
// as *apperr.ConflictError.
func (s *Service) Book(ctx context.Context, req Request) (res Result, err error) {
	ctx, span := otel.Tracer("booking-service/booking").Start(ctx, "booking.book")
	span.SetAttributes(
		attribute.String("business.id", req.BusinessID),
		attribute.String("professional.id", req.ProfessionalID),
	)
	defer span.End()

	started := s.now()
	defer func() {
		s.observe(outcome(res, err), s.now().Sub(started))
		if err != nil {
			span.RecordError(err)
		}
	}()

	if err := validateRequest(&req); err != nil {
		return Result{}, err
	}
	method, _ := model.ParsePaymentMethod(req.PaymentMethod)

	// A replayed key answers before any slot checks: the slot it booked is
	// no longer free.
	tx, err := s.Appointments.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var idem storage.IdempotencyRecord
	if req.IdempotencyKey != "" {
		idem, err = s.Idempotency.Lock(ctx, tx, req.BusinessID, req.IdempotencyKey)
		if err != nil {
			return Result{}, fmt.Errorf("lock idempotency key: %w", err)
		}
		if idem.Completed() {
			if err := tx.Commit(ctx); err != nil {
				return Result{}, err
			}
			return Result{Replay: &idem}, nil
		}
	}

	b, err := s.Catalog.GetBusiness(ctx, req.BusinessID)
	if err != nil {
		return Result{}, err
	}
	svc, err := s.Catalog.GetService(ctx, req.BusinessID, req.ServiceID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Result{}, apperr.Invalid("service_id", "unknown service")
		}
		return Result{}, err
	}
	if !svc.Active || svc.DurationMinutes <= 0 {
		return Result{}, apperr.Invalid("service_id", "service is not bookable")
	}
	if method == model.PaymentOnline && !b.GatewayLinked() {
		return Result{}, apperr.Invalid("payment_method", "online payment is not available for this business")
	}

	start, err := availability.LocalStart(b, req.Date, req.StartTime)
	if err != nil {
		return Result{}, err
	}
	now := s.now()
	if start.Before(now) {
		return Result{}, apperr.Invalid("start_time", "must be in the future")
	}
	end := start.Add(svc.Duration())

	// Candidates come from a snapshot read; the insert is what actually
	// guards the slot.
	candidates, err := s.resolveProfessionals(ctx, b, req.ProfessionalID, start, end)
	if err != nil {
		return Result{}, err
	}

	client := model.Client{
		ID:         uuid.NewString(),
		BusinessID: req.BusinessID,
		Name:       req.Client.Name,
		Contact:    req.Client.Contact,
		ExternalID: req.Client.ExternalID,
	}
	if err := s.Clients.Upsert(ctx, tx, &client); err != nil {
		return Result{}, fmt.Errorf("upsert client: %w", err)
	}

	a := model.Appointment{
		ID:            uuid.NewString(),
		BusinessID:    req.BusinessID,
		ServiceID:     svc.ID,
		ClientID:      client.ID,
		StartAt:       start.UTC(),
		EndAt:         end.UTC(),
		Status:        model.StatusPending,
		PaymentState:  model.PaymentUnpaid,
		PaymentMethod: method,
		PriceCents:    svc.PriceCents,
	}
	if method == model.PaymentOnline && s.cfg.HoldTTL > 0 {
		hold := now.Add(s.cfg.HoldTTL).UTC()
		a.HoldExpiresAt = &hold
	}
	if err := s.insertFirstFree(ctx, tx, &a, candidates); err != nil {
		return Result{}, err
	}

	if err := s.writeEvent(ctx, tx, outbox.TopicAppointmentBooked, a, map[string]any{
		"client_id":      a.ClientID,
		"service_id":     a.ServiceID,
		"end_at":         a.EndAt,
		"price_cents":    a.PriceCents,
		"payment_method": a.PaymentMethod,
	}); err != nil {
		return Result{}, err
	}

	res = Result{Appointment: a}
	if method == model.PaymentOnline {
		checkout, perr := s.openCheckout(ctx, tx, b, svc, &res.Appointment)
		if perr != nil {
			res.PaymentErr = perr
			s.Logger.Warn("payment initiation failed; appointment kept",
				"appointment_id", a.ID,
				"business_id", a.BusinessID,
				"err", perr,
			)
		} else {
			res.Checkout = &checkout
		}
	}

	if req.IdempotencyKey != "" {
		body, err := json.Marshal(NewBookingView(res))
		if err != nil {
			return Result{}, err
		}
		idem.AppointmentID = a.ID
		idem.StatusCode = http.StatusCreated
		idem.ResponsePayload = body
		if err := s.Idempotency.Finalize(ctx, tx, idem); err != nil {
			return Result{}, fmt.Errorf("finalize idempotency key: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}
	s.invalidate(ctx, b, res.Appointment)

	s.Logger.Info("appointment booked",
		"appointment_id", a.ID,
		"business_id", a.BusinessID,
		"professional_id", res.Appointment.ProfessionalID,
		"start_at", a.StartAt.Format(time.RFC3339),
		"payment_method", a.PaymentMethod,
	)
	return res, nil
}

// resolveProfessionals returns the ordered professionals to try. A nil slice
// with no error means a business-level booking.
func (s *Service) resolveProfessionals(ctx context.Context, b model.Business, professionalID string, start, end time.Time) ([]model.Professional, error) {
	if professionalID != "" {
		p, err := s.Catalog.GetProfessional(ctx, b.ID, professionalID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, apperr.Invalid("professional_id", "unknown professional")
			}
			return nil, err
		}
		windows, reason := availability.ProfessionalHours(p, dayOf(b, start))
		if err := withinHours(reason); err != nil {
			return nil, err
		}
		if !availability.Fits(windows, nil, start, end) {
			return nil, apperr.Invalid("start_time", "outside the professional's working hours")
		}
		return []model.Professional{p}, nil
	}

	pros, err := s.Catalog.ListProfessionals(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if len(pros) == 0 {
		windows, reason := availability.BusinessHours(b, dayOf(b, start))
		if err := withinHours(reason); err != nil {
			return nil, err
		}
		if !availability.Fits(windows, nil, start, end) {
			return nil, apperr.Invalid("start_time", "outside business hours")
		}
		return nil, nil
	}

	free, err := s.Candidates.Candidates(ctx, b, start, end)
	if err != nil {
		return nil, err
	}
	if len(free) > 0 {
		return free, nil
	}
	scheduled, fits := false, false
	for _, p := range pros {
		windows, reason := availability.ProfessionalHours(p, dayOf(b, start))
		if reason != availability.ReasonNone {
			continue
		}
		scheduled = true
		if availability.Fits(windows, nil, start, end) {
			fits = true
		}
	}
	switch {
	case !scheduled:
		return nil, apperr.ErrScheduleUnavailable
	case !fits:
		return nil, apperr.Invalid("start_time", "outside working hours")
	default:
		return nil, &apperr.ConflictError{Start: start}
	}
}

// insertFirstFree tries each candidate inside its own savepoint so a lost
// race on one professional leaves tx usable for the next.
func (s *Service) insertFirstFree(ctx context.Context, tx pgx.Tx, a *model.Appointment, candidates []model.Professional) error {
	if candidates == nil {
		return s.Appointments.Insert(ctx, tx, a)
	}
	var lastErr error
	for _, p := range candidates {
		a.ProfessionalID = p.ID
		sp, err := tx.Begin(ctx)
		if err != nil {
			return err
		}
		err = s.Appointments.Insert(ctx, sp, a)
		if err == nil {
			if err := sp.Commit(ctx); err != nil {
				return err
			}
			return nil
		}
		_ = sp.Rollback(ctx)
		if !errors.Is(err, apperr.ErrSlotConflict) {
			return err
		}
		lastErr = err
	}
	if len(candidates) > 1 {
		return &apperr.ConflictError{Start: a.StartAt}
	}
	return lastErr
}

func (s *Service) openCheckout(ctx context.Context, tx pgx.Tx, b model.Business, svc model.Service, a *model.Appointment) (payments.Checkout, error) {
	if s.Gateway == nil {
		return payments.Checkout{}, fmt.Errorf("%w: no gateway configured", apperr.ErrPaymentGateway)
	}
	req := payments.CheckoutRequest{
		AppointmentID: a.ID,
		BusinessID:    a.BusinessID,
		Account:       b.GatewayAccount,
		Description:   svc.Name,
		Currency:      s.cfg.Currency,
		AmountCents:   lifecycle.DepositAmount(a.PriceCents, b.DepositPercent),
	}
	if a.HoldExpiresAt != nil {
		req.ExpiresAt = *a.HoldExpiresAt
	}
	checkout, err := s.Gateway.CreateCheckout(ctx, req)
	if err != nil {
		return payments.Checkout{}, err
	}
	a.PaymentRef = checkout.Ref
	if err := s.Appointments.Save(ctx, tx, a); err != nil {
		return payments.Checkout{}, err
	}
	return checkout, nil
}

// StartPayment opens a fresh checkout for a pending online appointment and
// restarts its hold.
func (s *Service) StartPayment(ctx context.Context, appointmentID string) (model.Appointment, payments.Checkout, error) {
	tx, err := s.Appointments.Begin(ctx)
	if err != nil {
		return model.Appointment{}, payments.Checkout{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := s.Appointments.GetForUpdate(ctx, tx, "", appointmentID)
	if err != nil {
		return model.Appointment{}, payments.Checkout{}, err
	}
	if a.Status != model.StatusPending || a.PaymentMethod != model.PaymentOnline || a.PaymentState != model.PaymentUnpaid {
		return model.Appointment{}, payments.Checkout{}, apperr.Transition(string(a.Status)+"/"+string(a.PaymentState), "payment_started")
	}
	b, err := s.Catalog.GetBusiness(ctx, a.BusinessID)
	if err != nil {
		return model.Appointment{}, payments.Checkout{}, err
	}
	if !b.GatewayLinked() {
		return model.Appointment{}, payments.Checkout{}, apperr.Invalid("payment_method", "online payment is not available for this business")
	}
	svc, err := s.Catalog.GetService(ctx, a.BusinessID, a.ServiceID)
	if err != nil {
		return model.Appointment{}, payments.Checkout{}, err
	}
	if err := s.expirePrevious(ctx, b, a); err != nil {
		return model.Appointment{}, payments.Checkout{}, err
	}
	if s.cfg.HoldTTL > 0 {
		hold := s.now().Add(s.cfg.HoldTTL).UTC()
		a.HoldExpiresAt = &hold
	}
	checkout, err := s.openCheckout(ctx, tx, b, svc, &a)
	if err != nil {
		return model.Appointment{}, payments.Checkout{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, payments.Checkout{}, err
	}
	return a, checkout, nil
}

// expirePrevious closes the appointment's earlier checkout so only one
// session is ever payable.
func (s *Service) expirePrevious(ctx context.Context, b model.Business, a model.Appointment) error {
	if a.PaymentRef == "" {
		return nil
	}
	if s.Gateway == nil {
		return fmt.Errorf("%w: no gateway configured", apperr.ErrPaymentGateway)
	}
	err := s.Gateway.Expire(ctx, a.PaymentRef, b.GatewayAccount)
	if errors.Is(err, payments.ErrCheckoutCompleted) {
		return apperr.Transition("payment_completed", "payment_started")
	}
	if err != nil {
		return err
	}
	s.Logger.Info("previous checkout expired",
		"appointment_id", a.ID,
		"business_id", a.BusinessID,
		"payment_ref", a.PaymentRef,
	)
	return nil
}

func (s *Service) Get(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	return s.Appointments.Get(ctx, businessID, appointmentID)
}

// List returns the business's appointments starting on a business-local date.
func (s *Service) List(ctx context.Context, businessID, date string) ([]model.Appointment, error) {
	b, err := s.Catalog.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	loc, err := b.Location()
	if err != nil {
		return nil, err
	}
	day, err := availability.ParseDate(date, loc)
	if err != nil {
		return nil, apperr.Invalid("date", "must be YYYY-MM-DD")
	}
	bounds := availability.DayBounds(day)
	return s.Appointments.ListBetween(ctx, businessID, bounds.Start, bounds.End)
}

func (s *Service) Confirm(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	return s.transition(ctx, businessID, appointmentID, outbox.TopicAppointmentConfirmed, func(a *model.Appointment) error {
		return lifecycle.Confirm(a)
	})
}

func (s *Service) Cancel(ctx context.Context, businessID, appointmentID, reason string) (model.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled_by_staff"
	}
	a, err := s.transition(ctx, businessID, appointmentID, outbox.TopicAppointmentCancelled, func(a *model.Appointment) error {
		return lifecycle.Cancel(a, reason, s.now().UTC())
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if b, err := s.Catalog.GetBusiness(ctx, businessID); err == nil {
		s.invalidate(ctx, b, a)
	}
	return a, nil
}

func (s *Service) Complete(ctx context.Context, businessID, appointmentID string, override bool) (model.Appointment, error) {
	return s.transition(ctx, businessID, appointmentID, outbox.TopicAppointmentCompleted, func(a *model.Appointment) error {
		return lifecycle.Complete(a, override, s.cfg.Policy, s.now().UTC())
	})
}

func (s *Service) Refund(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	return s.transition(ctx, businessID, appointmentID, outbox.TopicPaymentRecorded, func(a *model.Appointment) error {
		return lifecycle.Refund(a)
	})
}

// RegisterPayment records money taken at the desk. It goes through the same
// reconciliation path as gateway payments under a one-off reference.
func (s *Service) RegisterPayment(ctx context.Context, businessID, appointmentID string, amountCents int64) (payments.Result, error) {
	if amountCents <= 0 {
		return payments.Result{}, apperr.Invalid("amount", "must be greater than zero")
	}
	return s.Payments.ReconcileForBusiness(ctx, businessID, payments.Event{
		Ref:           "manual:" + uuid.NewString(),
		AppointmentID: appointmentID,
		Source:        payments.SourceManual,
		Outcome:       payments.Approved{AmountCents: amountCents},
	})
}

func (s *Service) transition(ctx context.Context, businessID, appointmentID, eventType string, apply func(*model.Appointment) error) (model.Appointment, error) {
	tx, err := s.Appointments.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := s.Appointments.GetForUpdate(ctx, tx, businessID, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	before := a
	if err := apply(&a); err != nil {
		return model.Appointment{}, err
	}
	if err := s.Appointments.Save(ctx, tx, &a); err != nil {
		return model.Appointment{}, err
	}
	if err := s.writeEvent(ctx, tx, eventType, a, nil); err != nil {
		return model.Appointment{}, err
	}
	if lifecycle.BecameSettled(before, a) {
		s.Settlement.Notify(ctx, tx, a)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	s.Logger.Info("appointment updated",
		"appointment_id", a.ID,
		"business_id", a.BusinessID,
		"status", a.Status,
		"payment_state", a.PaymentState,
		"event_type", eventType,
	)
	return a, nil
}

type BlockRequest struct {
	ProfessionalID string `json:"professional_id,omitempty"`
	Date           string `json:"date"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Note           string `json:"note,omitempty"`
}

// Block reserves an interval without a client. It takes the same overlap
// guard as a booking.
func (s *Service) Block(ctx context.Context, businessID string, req BlockRequest) (model.Appointment, error) {
	b, err := s.Catalog.GetBusiness(ctx, businessID)
	if err != nil {
		return model.Appointment{}, err
	}
	if req.ProfessionalID == "" {
		pros, err := s.Catalog.ListProfessionals(ctx, businessID)
		if err != nil {
			return model.Appointment{}, err
		}
		if len(pros) > 0 {
			return model.Appointment{}, apperr.Invalid("professional_id", "is required when the business has professionals")
		}
	} else {
		if _, err := uuid.Parse(req.ProfessionalID); err != nil {
			return model.Appointment{}, apperr.Invalid("professional_id", "must be a uuid")
		}
		if _, err := s.Catalog.GetProfessional(ctx, businessID, req.ProfessionalID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return model.Appointment{}, apperr.Invalid("professional_id", "unknown professional")
			}
			return model.Appointment{}, err
		}
	}
	start, err := availability.LocalStart(b, req.Date, req.StartTime)
	if err != nil {
		return model.Appointment{}, err
	}
	endMinutes, err := model.ParseClock(req.EndTime)
	if err != nil {
		return model.Appointment{}, apperr.Invalid("end_time", "must be HH:MM")
	}
	day := dayOf(b, start)
	end := time.Date(day.Year(), day.Month(), day.Day(), endMinutes/60, endMinutes%60, 0, 0, day.Location())
	if !end.After(start) {
		return model.Appointment{}, apperr.Invalid("end_time", "must be after start_time")
	}

	a := model.Appointment{
		ID:             uuid.NewString(),
		BusinessID:     businessID,
		ProfessionalID: req.ProfessionalID,
		StartAt:        start.UTC(),
		EndAt:          end.UTC(),
		Status:         model.StatusConfirmed,
		PaymentState:   model.PaymentUnpaid,
		PaymentMethod:  model.PaymentOnSite,
		Note:           strings.TrimSpace(req.Note),
	}

	tx, err := s.Appointments.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := s.Appointments.Insert(ctx, tx, &a); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	s.invalidate(ctx, b, a)
	return a, nil
}

func (s *Service) writeEvent(ctx context.Context, tx pgx.Tx, eventType string, a model.Appointment, extra map[string]any) error {
	payload := map[string]any{
		"appointment_id":  a.ID,
		"business_id":     a.BusinessID,
		"professional_id": a.ProfessionalID,
		"start_at":        a.StartAt,
		"status":          a.Status,
		"payment_state":   a.PaymentState,
		"paid_cents":      a.PaidCents,
	}
	if a.CancelReason != "" {
		payload["cancel_reason"] = a.CancelReason
	}
	for k, v := range extra {
		payload[k] = v
	}
	evt, err := outbox.AppointmentEvent(eventType, a.ID, a.BusinessID, payload)
	if err != nil {
		return err
	}
	return s.Events.Insert(ctx, tx, evt)
}

func (s *Service) invalidate(ctx context.Context, b model.Business, a model.Appointment) {
	if s.Cache == nil {
		return
	}
	loc, err := b.Location()
	if err != nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, a.BusinessID, slotcache.Dates(a.StartAt, a.EndAt, loc)...); err != nil {
		s.Logger.Warn("slot cache invalidation failed", "business_id", a.BusinessID, "err", err)
	}
}

func (s *Service) observe(outcome string, elapsed time.Duration) {
	if s.Observer != nil {
		s.Observer.ObserveBooking(outcome, elapsed)
	}
}

func outcome(res Result, err error) string {
	switch {
	case err == nil && res.Replay != nil:
		return "replayed"
	case err == nil:
		return "booked"
	case errors.Is(err, apperr.ErrSlotConflict):
		return "conflict"
	case apperr.IsValidation(err), errors.Is(err, apperr.ErrScheduleUnavailable):
		return "rejected"
	default:
		return "error"
	}
}

func validateRequest(req *Request) error {
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ProfessionalID = strings.TrimSpace(req.ProfessionalID)
	req.Client.Name = strings.TrimSpace(req.Client.Name)
	req.Client.Contact = strings.TrimSpace(req.Client.Contact)
	req.Client.ExternalID = strings.TrimSpace(req.Client.ExternalID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	if _, err := uuid.Parse(req.BusinessID); err != nil {
		return apperr.Invalid("business_id", "must be a uuid")
	}
	if _, err := uuid.Parse(req.ServiceID); err != nil {
		return apperr.Invalid("service_id", "must be a uuid")
	}
	if req.ProfessionalID != "" {
		if _, err := uuid.Parse(req.ProfessionalID); err != nil {
			return apperr.Invalid("professional_id", "must be a uuid")
		}
	}
	if req.Client.Name == "" {
		return apperr.Invalid("client.name", "is required")
	}
	if req.Client.Contact == "" {
		return apperr.Invalid("client.contact", "is required")
	}
	if _, ok := model.ParsePaymentMethod(req.PaymentMethod); !ok {
		return apperr.Invalid("payment_method", "must be online or on_site")
	}
	if len(req.IdempotencyKey) > 200 {
		return apperr.Invalid("Idempotency-Key", "is too long")
	}
	return nil
}

func withinHours(reason availability.Reason) error {
	if reason != availability.ReasonNone {
		return fmt.Errorf("%w: %s", apperr.ErrScheduleUnavailable, reason)
	}
	return nil
}

func dayOf(b model.Business, t time.Time) time.Time {
	loc, err := b.Location()
	if err != nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
