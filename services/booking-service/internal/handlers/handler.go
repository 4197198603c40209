package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/md-rashed-zaman/agenda/libs/auth"
	"github.com/md-rashed-zaman/agenda/libs/httpx"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/payments"
)

type Slots interface {
	Generate(ctx context.Context, q availability.Query) (availability.Result, error)
	AvailableProfessionals(ctx context.Context, businessID, date, startClock string, durationMinutes int) ([]model.Professional, error)
}

type Catalog interface {
	GetBusiness(ctx context.Context, businessID string) (model.Business, error)
	GetService(ctx context.Context, businessID, serviceID string) (model.Service, error)
}

type Bookings interface {
	Book(ctx context.Context, req booking.Request) (booking.Result, error)
	StartPayment(ctx context.Context, appointmentID string) (model.Appointment, payments.Checkout, error)
	Get(ctx context.Context, businessID, appointmentID string) (model.Appointment, error)
	List(ctx context.Context, businessID, date string) ([]model.Appointment, error)
	Confirm(ctx context.Context, businessID, appointmentID string) (model.Appointment, error)
	Cancel(ctx context.Context, businessID, appointmentID, reason string) (model.Appointment, error)
	Complete(ctx context.Context, businessID, appointmentID string, override bool) (model.Appointment, error)
	Refund(ctx context.Context, businessID, appointmentID string) (model.Appointment, error)
	RegisterPayment(ctx context.Context, businessID, appointmentID string, amountCents int64) (payments.Result, error)
	Block(ctx context.Context, businessID string, req booking.BlockRequest) (model.Appointment, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, ev payments.Event) (payments.Result, error)
}

type PaymentLookup interface {
	Lookup(ctx context.Context, ref, account string) (payments.Event, error)
}

type SlotObserver interface {
	ObserveSlotQuery(reason string)
}

type Deps struct {
	Slots          Slots
	Catalog        Catalog
	Bookings       Bookings
	Reconciler     Reconciler
	Lookup         PaymentLookup
	WebhookSecret  *payments.Verifier
	StripeWebhooks *payments.Verifier
	Observer       SlotObserver
	Logger         *slog.Logger
}

type Handler struct {
	Deps
}

func New(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

// Router mounts every booking-service API route. Staff routes take the
// tenant from the verified token, never from the request.
func (h *Handler) Router(verifier httpx.TokenVerifier, public ...httpx.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1/public", func(r chi.Router) {
		for _, m := range public {
			if m != nil {
				r.Use(m)
			}
		}
		r.Get("/slots", h.GetSlots)
		r.Get("/slots/professionals", h.GetSlotProfessionals)
		r.Post("/bookings", h.CreateBooking)
		r.Post("/bookings/{id}/payment", h.StartPayment)
		r.Get("/payments/return", h.PaymentReturn)
	})

	r.Post("/api/v1/payments/webhook", h.PaymentWebhook)
	r.Post("/api/v1/payments/webhooks/stripe", h.StripeWebhook)

	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireAuth(verifier))
		r.Get("/api/v1/appointments", h.ListAppointments)
		r.Get("/api/v1/appointments/{id}", h.GetAppointment)
		r.Post("/api/v1/appointments/{id}/confirm", h.ConfirmAppointment)
		r.Post("/api/v1/appointments/{id}/complete", h.CompleteAppointment)
		r.Post("/api/v1/appointments/{id}/cancel", h.CancelAppointment)
		r.Post("/api/v1/appointments/{id}/payments", h.RegisterPayment)
		r.With(httpx.RequireRole(auth.RoleOwner, auth.RoleAdmin)).
			Post("/api/v1/appointments/{id}/refund", h.RefundAppointment)
		r.Post("/api/v1/blocks", h.CreateBlock)
	})
	return r
}

type conflictBody struct {
	Error          string `json:"error"`
	Code           string `json:"code"`
	ProfessionalID string `json:"professional_id,omitempty"`
	StartAt        string `json:"start_at,omitempty"`
}

// writeError maps the domain taxonomy onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *apperr.ValidationError
	var ce *apperr.ConflictError
	switch {
	case errors.As(err, &ve):
		httpx.WriteFieldError(w, http.StatusUnprocessableEntity, "validation_error", ve.Field, ve.Message)
	case errors.As(err, &ce):
		body := conflictBody{Error: ce.Error(), Code: "slot_conflict", ProfessionalID: ce.ProfessionalID}
		if !ce.Start.IsZero() {
			body.StartAt = ce.Start.UTC().Format(time.RFC3339)
		}
		httpx.WriteJSON(w, http.StatusConflict, body)
	case errors.Is(err, apperr.ErrSlotConflict):
		httpx.WriteError(w, http.StatusConflict, "slot_conflict", "slot is no longer available")
	case errors.Is(err, apperr.ErrScheduleUnavailable):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "schedule_unavailable", err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, apperr.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, apperr.ErrOutstandingBalance):
		httpx.WriteError(w, http.StatusConflict, "outstanding_balance", err.Error())
	case errors.Is(err, apperr.ErrPaymentGateway):
		h.Logger.Warn("payment gateway error", "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusBadGateway, "payment_gateway_error", "payment could not be completed; retry the payment step")
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(w, http.StatusServiceUnavailable, "timeout", "request timed out")
	default:
		h.Logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (h *Handler) badJSON(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
}

func tenant(r *http.Request) string {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.BusinessID
}
