package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/md-rashed-zaman/agenda/libs/httpx"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
)

type cancelRequest struct {
	Reason string `json:"reason"`
}

type completeRequest struct {
	Override bool `json:"override"`
}

type paymentRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	list, err := h.Bookings.List(r.Context(), tenant(r), strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]booking.AppointmentView, 0, len(list))
	for _, a := range list {
		items = append(items, booking.NewAppointmentView(a))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	a, err := h.Bookings.Get(r.Context(), tenant(r), id)
	h.writeAppointment(w, r, a, err)
}

func (h *Handler) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	a, err := h.Bookings.Confirm(r.Context(), tenant(r), id)
	h.writeAppointment(w, r, a, err)
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.badJSON(w)
			return
		}
	}
	a, err := h.Bookings.Cancel(r.Context(), tenant(r), id, req.Reason)
	h.writeAppointment(w, r, a, err)
}

func (h *Handler) CompleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.badJSON(w)
			return
		}
	}
	a, err := h.Bookings.Complete(r.Context(), tenant(r), id, req.Override)
	h.writeAppointment(w, r, a, err)
}

func (h *Handler) RefundAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	a, err := h.Bookings.Refund(r.Context(), tenant(r), id)
	h.writeAppointment(w, r, a, err)
}

func (h *Handler) RegisterPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badJSON(w)
		return
	}
	res, err := h.Bookings.RegisterPayment(r.Context(), tenant(r), id, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"appointment":    booking.NewAppointmentView(res.Appointment),
		"credited_cents": res.CreditedCents,
	})
}

func (h *Handler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	var req booking.BlockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badJSON(w)
		return
	}
	a, err := h.Bookings.Block(r.Context(), tenant(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"appointment": booking.NewAppointmentView(a)})
}

func (h *Handler) writeAppointment(w http.ResponseWriter, r *http.Request, a model.Appointment, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointment": booking.NewAppointmentView(a)})
}

func appointmentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if _, err := uuid.Parse(id); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found")
		return "", false
	}
	return id, true
}
