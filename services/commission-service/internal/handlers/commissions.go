package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/md-rashed-zaman/agenda/libs/httpx"
	"github.com/md-rashed-zaman/agenda/services/commission-service/internal/commission"
	"github.com/md-rashed-zaman/agenda/services/commission-service/internal/storage"
)

const defaultWindow = 30 * 24 * time.Hour

type Lister interface {
	List(ctx context.Context, f storage.Filter) ([]commission.Commission, error)
}

type Handler struct {
	repo   Lister
	logger *slog.Logger
	now    func() time.Time
}

func New(repo Lister, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger, now: time.Now}
}

func (h *Handler) Router(verifier httpx.TokenVerifier) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.With(httpx.RequireAuth(verifier)).Get("/api/v1/commissions", h.List)
	return r
}

type listResponse struct {
	From        string                  `json:"from"`
	To          string                  `json:"to"`
	Commissions []commission.Commission `json:"commissions"`
	TotalCents  int64                   `json:"total_cents"`
}

// List returns the caller's commissions settled in [from, to]. Dates are
// UTC calendar days and default to the last 30 days.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
		return
	}
	q := r.URL.Query()

	professionalID := strings.TrimSpace(q.Get("professional_id"))
	if professionalID != "" {
		if _, err := uuid.Parse(professionalID); err != nil {
			httpx.WriteFieldError(w, http.StatusUnprocessableEntity, "validation_error", "professional_id", "must be a uuid")
			return
		}
	}

	today := h.now().UTC().Truncate(24 * time.Hour)
	to, ok := parseDay(w, q.Get("to"), "to", today)
	if !ok {
		return
	}
	from, ok := parseDay(w, q.Get("from"), "from", to.Add(-defaultWindow))
	if !ok {
		return
	}
	if to.Before(from) {
		httpx.WriteFieldError(w, http.StatusUnprocessableEntity, "validation_error", "to", "must not be before from")
		return
	}

	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteFieldError(w, http.StatusUnprocessableEntity, "validation_error", "limit", "must be a positive integer")
			return
		}
		limit = n
	}

	items, err := h.repo.List(r.Context(), storage.Filter{
		BusinessID:     claims.BusinessID,
		ProfessionalID: professionalID,
		From:           from,
		To:             to.Add(24 * time.Hour),
		Limit:          limit,
	})
	if err != nil {
		h.logger.Error("list commissions failed", "business_id", claims.BusinessID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	if items == nil {
		items = []commission.Commission{}
	}
	out := listResponse{From: from.Format(time.DateOnly), To: to.Format(time.DateOnly), Commissions: items}
	for _, c := range items {
		out.TotalCents += c.AmountCents
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func parseDay(w http.ResponseWriter, raw, field string, fallback time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		httpx.WriteFieldError(w, http.StatusUnprocessableEntity, "validation_error", field, "must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}
