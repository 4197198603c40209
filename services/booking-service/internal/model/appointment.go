package model

import "time"

// Lifecycle is the appointment's position in pending -> confirmed -> completed,
// with cancelled reachable from the first two.
type Lifecycle string

const (
	StatusPending   Lifecycle = "pending"
	StatusConfirmed Lifecycle = "confirmed"
	StatusCompleted Lifecycle = "completed"
	StatusCancelled Lifecycle = "cancelled"
)

func (s Lifecycle) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PaymentState is tracked alongside Lifecycle.
type PaymentState string

const (
	PaymentUnpaid   PaymentState = "unpaid"
	PaymentPartial  PaymentState = "partial"
	PaymentPaid     PaymentState = "paid"
	PaymentRefunded PaymentState = "refunded"
)

type PaymentMethod string

const (
	PaymentOnline PaymentMethod = "online"
	PaymentOnSite PaymentMethod = "on_site"
)

// ParsePaymentMethod accepts the wire spellings used by booking clients.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch s {
	case "online", "online_deposit":
		return PaymentOnline, true
	case "on_site", "":
		return PaymentOnSite, true
	default:
		return "", false
	}
}

type Appointment struct {
	ID             string
	BusinessID     string
	ProfessionalID string // empty when unassigned
	ServiceID      string // empty for blocked intervals
	ClientID       string // empty for blocked intervals
	StartAt        time.Time
	EndAt          time.Time
	Status         Lifecycle
	PaymentState   PaymentState
	PaymentMethod  PaymentMethod
	PriceCents     int64
	PaidCents      int64
	Note           string
	PaymentRef     string
	HoldExpiresAt  *time.Time
	CancelledAt    *time.Time
	CancelReason   string
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a Appointment) IsBlock() bool {
	return a.ClientID == ""
}

func (a Appointment) Outstanding() int64 {
	if a.PaidCents >= a.PriceCents {
		return 0
	}
	return a.PriceCents - a.PaidCents
}

// Settled reports whether the appointment earns its professional a commission.
func (a Appointment) Settled() bool {
	return a.Status == StatusCompleted && a.PaymentState == PaymentPaid && a.ProfessionalID != ""
}
