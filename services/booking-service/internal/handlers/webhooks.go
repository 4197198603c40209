package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/agenda/libs/httpx"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/payments"
)

const maxWebhookBody = 1 << 20

type reconcileResponse struct {
	Status        string                   `json:"status"`
	CreditedCents int64                    `json:"credited_cents,omitempty"`
	Appointment   *booking.AppointmentView `json:"appointment,omitempty"`
}

// PaymentWebhook takes gateway-neutral payment events signed under the
// shared payment webhook secret. The signature is the authentication.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.WebhookSecret.Configured() {
		httpx.WriteError(w, http.StatusServiceUnavailable, "not_configured", "payment webhook not configured")
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	ev, err := h.WebhookSecret.Generic(body, r.Header.Get(payments.SignatureHeader))
	if errors.Is(err, payments.ErrBadSignature) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_signature", "invalid signature")
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.reconcile(w, r, ev, false)
}

// StripeWebhook handles Stripe checkout session events.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.StripeWebhooks.Configured() {
		httpx.WriteError(w, http.StatusServiceUnavailable, "not_configured", "stripe webhook not configured")
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sig) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_signature", "missing Stripe-Signature header")
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	evt, err := h.StripeWebhooks.Stripe(body, sig)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_signature", "invalid signature")
		return
	}
	h.Logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", string(evt.Type),
	)
	ev, relevant, err := payments.StripeEvent(evt)
	if err != nil {
		h.Logger.Error("stripe: invalid checkout session payload", "provider_event_id", evt.ID, "err", err)
		httpx.WriteError(w, http.StatusBadRequest, "invalid_payload", "invalid checkout session payload")
		return
	}
	if !relevant {
		httpx.WriteJSON(w, http.StatusOK, reconcileResponse{Status: "ignored"})
		return
	}
	if ev.AppointmentID == "" {
		h.Logger.Warn("stripe: checkout session without appointment_id metadata", "external_payment_ref", ev.Ref)
		httpx.WriteJSON(w, http.StatusOK, reconcileResponse{Status: "ignored"})
		return
	}
	h.reconcile(w, r, ev, false)
}

// PaymentReturn reconciles synchronously when the client comes back from the
// gateway's checkout page.
func (h *Handler) PaymentReturn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := strings.TrimSpace(q.Get("session_id"))
	businessID := strings.TrimSpace(q.Get("business_id"))
	if sessionID == "" {
		httpx.WriteFieldError(w, http.StatusUnprocessableEntity, "validation_error", "session_id", "is required")
		return
	}
	if _, err := uuid.Parse(businessID); err != nil {
		httpx.WriteFieldError(w, http.StatusUnprocessableEntity, "validation_error", "business_id", "must be a uuid")
		return
	}
	b, err := h.Catalog.GetBusiness(r.Context(), businessID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ev, err := h.Lookup.Lookup(r.Context(), sessionID, b.GatewayAccount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.reconcile(w, r, ev, true)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request, ev payments.Event, withAppointment bool) {
	res, err := h.Reconciler.Reconcile(r.Context(), ev)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := reconcileResponse{Status: "ok", CreditedCents: res.CreditedCents}
	if res.Duplicate {
		out.Status = "duplicate"
	}
	if withAppointment {
		view := booking.NewAppointmentView(res.Appointment)
		out.Appointment = &view
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "failed to read request body")
		return nil, false
	}
	return body, true
}
