package payments

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/apperr"
)

var ErrBadSignature = errors.New("invalid webhook signature")

// SignatureHeader carries the t=<unix>,v1=<hmac-sha256> signature on generic
// payment webhooks.
const SignatureHeader = "X-Payment-Signature"

// WebhookPayload is the gateway-neutral payment notification.
type WebhookPayload struct {
	ExternalPaymentRef string `json:"external_payment_ref"`
	AppointmentID      string `json:"appointment_id"`
	Status             string `json:"status"`
	Amount             int64  `json:"amount"`
}

type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: strings.TrimSpace(secret), tolerance: tolerance}
}

func (v *Verifier) Configured() bool {
	return v != nil && v.secret != ""
}

// Generic checks the signature on a generic webhook body and decodes it.
func (v *Verifier) Generic(body []byte, header string) (Event, error) {
	if err := webhook.ValidatePayloadWithTolerance(body, header, v.secret, v.tolerance); err != nil {
		return Event{}, ErrBadSignature
	}
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, apperr.Invalid("body", "malformed payment event")
	}
	outcome, ok := ParseOutcome(strings.ToLower(strings.TrimSpace(p.Status)), p.Amount)
	if !ok {
		return Event{}, apperr.Invalid("status", "must be approved, rejected or pending")
	}
	return Event{
		Ref:           strings.TrimSpace(p.ExternalPaymentRef),
		AppointmentID: strings.TrimSpace(p.AppointmentID),
		Source:        SourceWebhook,
		Outcome:       outcome,
	}, nil
}

// Stripe checks a Stripe-Signature header and returns the parsed event.
func (v *Verifier) Stripe(body []byte, header string) (stripe.Event, error) {
	evt, err := webhook.ConstructEventWithOptions(body, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, ErrBadSignature
	}
	return evt, nil
}
