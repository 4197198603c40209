package booking

import (
	"time"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
)

type AppointmentView struct {
	ID             string  `json:"appointment_id"`
	BusinessID     string  `json:"business_id"`
	ProfessionalID string  `json:"professional_id,omitempty"`
	ServiceID      string  `json:"service_id,omitempty"`
	ClientID       string  `json:"client_id,omitempty"`
	StartAt        string  `json:"start_at"`
	EndAt          string  `json:"end_at"`
	Status         string  `json:"status"`
	PaymentState   string  `json:"payment_state"`
	PaymentMethod  string  `json:"payment_method"`
	PriceCents     int64   `json:"price_cents"`
	PaidCents      int64   `json:"paid_cents"`
	Blocked        bool    `json:"blocked,omitempty"`
	Note           string  `json:"note,omitempty"`
	HoldExpiresAt  *string `json:"hold_expires_at,omitempty"`
	CancelledAt    *string `json:"cancelled_at,omitempty"`
	CancelReason   string  `json:"cancel_reason,omitempty"`
	CompletedAt    *string `json:"completed_at,omitempty"`
	CreatedAt      string  `json:"created_at,omitempty"`
}

type BookingView struct {
	Appointment        AppointmentView `json:"appointment"`
	PaymentRef         string          `json:"external_payment_ref,omitempty"`
	PaymentRedirectURL string          `json:"payment_redirect_url,omitempty"`
	PaymentError       string          `json:"payment_error,omitempty"`
}

func NewAppointmentView(a model.Appointment) AppointmentView {
	v := AppointmentView{
		ID:             a.ID,
		BusinessID:     a.BusinessID,
		ProfessionalID: a.ProfessionalID,
		ServiceID:      a.ServiceID,
		ClientID:       a.ClientID,
		StartAt:        a.StartAt.UTC().Format(time.RFC3339),
		EndAt:          a.EndAt.UTC().Format(time.RFC3339),
		Status:         string(a.Status),
		PaymentState:   string(a.PaymentState),
		PaymentMethod:  string(a.PaymentMethod),
		PriceCents:     a.PriceCents,
		PaidCents:      a.PaidCents,
		Blocked:        a.IsBlock(),
		Note:           a.Note,
		HoldExpiresAt:  stamp(a.HoldExpiresAt),
		CancelledAt:    stamp(a.CancelledAt),
		CancelReason:   a.CancelReason,
		CompletedAt:    stamp(a.CompletedAt),
	}
	if !a.CreatedAt.IsZero() {
		v.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return v
}

func NewBookingView(r Result) BookingView {
	v := BookingView{Appointment: NewAppointmentView(r.Appointment)}
	if r.Checkout != nil {
		v.PaymentRef = r.Checkout.Ref
		v.PaymentRedirectURL = r.Checkout.URL
	}
	if r.PaymentErr != nil {
		v.PaymentError = "payment could not be started; retry the payment step"
	}
	return v
}

func stamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
