package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/agenda/libs/httpx"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/availability"
)

type slotsResponse struct {
	Date     string   `json:"date"`
	Timezone string   `json:"timezone"`
	Slots    []string `json:"slots"`
	StartsAt []string `json:"starts_at"`
	Reason   string   `json:"reason,omitempty"`
}

type professionalItem struct {
	ProfessionalID string `json:"professional_id"`
	Name           string `json:"name"`
}

// GetSlots answers the slot query. Duration comes from service_duration or,
// when absent, from service_id.
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	businessID := strings.TrimSpace(q.Get("business_id"))
	if _, err := uuid.Parse(businessID); err != nil {
		httpx.WriteFieldError(w, http.StatusUnprocessableEntity, "validation_error", "business_id", "must be a uuid")
		return
	}
	professionalID := strings.TrimSpace(q.Get("professional_id"))
	if professionalID != "" {
		if _, err := uuid.Parse(professionalID); err != nil {
			httpx.WriteFieldError(w, http.StatusUnprocessableEntity, "validation_error", "professional_id", "must be a uuid")
			return
		}
	}
	duration, err := h.duration(r, businessID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	granularity := 0
	if raw := strings.TrimSpace(q.Get("granularity")); raw != "" {
		granularity, err = strconv.Atoi(raw)
		if err != nil || granularity <= 0 {
			httpx.WriteFieldError(w, http.StatusUnprocessableEntity, "validation_error", "granularity", "must be a positive integer")
			return
		}
	}

	res, err := h.Slots.Generate(r.Context(), availability.Query{
		BusinessID:         businessID,
		ProfessionalID:     professionalID,
		Date:               strings.TrimSpace(q.Get("date")),
		DurationMinutes:    duration,
		GranularityMinutes: granularity,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.Observer != nil {
		h.Observer.ObserveSlotQuery(string(res.Reason))
	}

	out := slotsResponse{
		Date:     res.Date,
		Timezone: res.Timezone,
		Slots:    make([]string, 0, len(res.Slots)),
		StartsAt: make([]string, 0, len(res.Slots)),
		Reason:   string(res.Reason),
	}
	loc, err := time.LoadLocation(res.Timezone)
	if err != nil {
		loc = time.UTC
	}
	for _, s := range res.Slots {
		out.Slots = append(out.Slots, s.In(loc).Format("15:04"))
		out.StartsAt = append(out.StartsAt, s.UTC().Format(time.RFC3339))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) GetSlotProfessionals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	businessID := strings.TrimSpace(q.Get("business_id"))
	if _, err := uuid.Parse(businessID); err != nil {
		httpx.WriteFieldError(w, http.StatusUnprocessableEntity, "validation_error", "business_id", "must be a uuid")
		return
	}
	duration, err := h.duration(r, businessID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pros, err := h.Slots.AvailableProfessionals(r.Context(), businessID,
		strings.TrimSpace(q.Get("date")), strings.TrimSpace(q.Get("start_time")), duration)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]professionalItem, 0, len(pros))
	for _, p := range pros {
		items = append(items, professionalItem{ProfessionalID: p.ID, Name: p.Name})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"professionals": items})
}

func (h *Handler) duration(r *http.Request, businessID string) (int, error) {
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("service_duration")); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return 0, apperr.Invalid("service_duration", "must be a positive number of minutes")
		}
		return minutes, nil
	}
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if serviceID == "" {
		return 0, apperr.Invalid("service_duration", "service_duration or service_id is required")
	}
	if _, err := uuid.Parse(serviceID); err != nil {
		return 0, apperr.Invalid("service_id", "must be a uuid")
	}
	svc, err := h.Catalog.GetService(r.Context(), businessID, serviceID)
	if err != nil {
		return 0, err
	}
	return svc.DurationMinutes, nil
}
