package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/md-rashed-zaman/agenda/libs/httpx"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/booking"
)

type createBookingRequest struct {
	BusinessID     string              `json:"business_id"`
	ServiceID      string              `json:"service_id"`
	ProfessionalID string              `json:"professional_id,omitempty"`
	Date           string              `json:"date"`
	StartTime      string              `json:"start_time"`
	Client         booking.ClientInput `json:"client"`
	PaymentMethod  string              `json:"payment_method"`
}

type paymentResponse struct {
	Appointment        booking.AppointmentView `json:"appointment"`
	PaymentRef         string                  `json:"external_payment_ref"`
	PaymentRedirectURL string                  `json:"payment_redirect_url"`
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badJSON(w)
		return
	}

	res, err := h.Bookings.Book(r.Context(), booking.Request{
		BusinessID:     req.BusinessID,
		ServiceID:      req.ServiceID,
		ProfessionalID: req.ProfessionalID,
		Date:           req.Date,
		StartTime:      req.StartTime,
		Client:         req.Client,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res.Replay != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(res.Replay.StatusCode)
		_, _ = w.Write(res.Replay.ResponsePayload)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, booking.NewBookingView(res))
}

// StartPayment retries the payment step for an existing pending booking.
func (h *Handler) StartPayment(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if _, err := uuid.Parse(id); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	a, checkout, err := h.Bookings.StartPayment(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentResponse{
		Appointment:        booking.NewAppointmentView(a),
		PaymentRef:         checkout.Ref,
		PaymentRedirectURL: checkout.URL,
	})
}
