// Package commission turns settled appointments into commission records.
package commission

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/agenda/libs/kafkax"
)

const TopicAppointmentSettled = "agenda.appointment.settled.v1"

const maxRateBps = 10000

// SettledEvent is the agenda.appointment.settled.v1 payload.
type SettledEvent struct {
	AppointmentID  string    `json:"appointment_id"`
	BusinessID     string    `json:"business_id"`
	ProfessionalID string    `json:"professional_id"`
	ServiceID      string    `json:"service_id"`
	PriceCents     int64     `json:"price_cents"`
	PaidCents      int64     `json:"paid_cents"`
	CommissionBps  int       `json:"commission_bps"`
	SettledAt      time.Time `json:"settled_at"`
}

type Commission struct {
	AppointmentID  string    `json:"appointment_id"`
	BusinessID     string    `json:"business_id"`
	ProfessionalID string    `json:"professional_id"`
	ServiceID      string    `json:"service_id,omitempty"`
	PriceCents     int64     `json:"price_cents"`
	RateBps        int       `json:"rate_bps"`
	AmountCents    int64     `json:"amount_cents"`
	SettledAt      time.Time `json:"settled_at"`
	EventID        string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Amount is price × rate / 10000, rounded down.
func Amount(priceCents int64, rateBps int) int64 {
	if priceCents <= 0 || rateBps <= 0 {
		return 0
	}
	return priceCents * int64(rateBps) / maxRateBps
}

type Store interface {
	Insert(ctx context.Context, tx pgx.Tx, c Commission) (bool, error)
}

type Recorder struct {
	store  Store
	logger *slog.Logger
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Handle records the commission for one settled event. Malformed events are
// logged and dropped; only storage errors are returned so the consumer
// retries them.
func (r *Recorder) Handle(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
	var ev SettledEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		r.logger.Error("invalid settled event payload", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		return nil
	}
	if reason := invalid(ev); reason != "" {
		r.logger.Error("settled event rejected", "reason", reason, "appointment_id", ev.AppointmentID)
		return nil
	}
	if ev.SettledAt.IsZero() {
		ev.SettledAt = msg.Time.UTC()
	}

	c := Commission{
		AppointmentID:  ev.AppointmentID,
		BusinessID:     ev.BusinessID,
		ProfessionalID: ev.ProfessionalID,
		ServiceID:      strings.TrimSpace(ev.ServiceID),
		PriceCents:     ev.PriceCents,
		RateBps:        ev.CommissionBps,
		AmountCents:    Amount(ev.PriceCents, ev.CommissionBps),
		SettledAt:      ev.SettledAt.UTC(),
		EventID:        kafkax.ExtractEventMeta(msg).EventID,
	}
	created, err := r.store.Insert(ctx, tx, c)
	if err != nil {
		return err
	}
	if !created {
		r.logger.Info("commission already recorded", "appointment_id", c.AppointmentID)
		return nil
	}
	r.logger.Info("commission recorded",
		"appointment_id", c.AppointmentID,
		"business_id", c.BusinessID,
		"professional_id", c.ProfessionalID,
		"amount_cents", c.AmountCents,
	)
	return nil
}

func invalid(ev SettledEvent) string {
	for _, id := range []string{ev.AppointmentID, ev.BusinessID, ev.ProfessionalID} {
		if _, err := uuid.Parse(id); err != nil {
			return "missing or malformed id"
		}
	}
	if ev.ServiceID != "" {
		if _, err := uuid.Parse(ev.ServiceID); err != nil {
			return "malformed service_id"
		}
	}
	if ev.PriceCents < 0 {
		return "negative price"
	}
	if ev.CommissionBps < 0 || ev.CommissionBps > maxRateBps {
		return "commission rate out of range"
	}
	return ""
}
