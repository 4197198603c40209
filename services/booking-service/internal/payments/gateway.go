package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/apperr"
)

type CheckoutRequest struct {
	AppointmentID string
	BusinessID    string
	Account       string
	Description   string
	Currency      string
	AmountCents   int64
	ExpiresAt     time.Time
}

type Checkout struct {
	Ref string `json:"external_payment_ref"`
	URL string `json:"checkout_url"`
}

// ErrCheckoutCompleted means the session was paid and can no longer be
// expired; its payment event will arrive through reconciliation.
var ErrCheckoutCompleted = errors.New("checkout already completed")

// Gateway opens payment sessions with the business's linked account, reads
// their state back for the redirect flow and closes sessions that must no
// longer be paid.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)
	Lookup(ctx context.Context, ref, account string) (Event, error)
	Expire(ctx context.Context, ref, account string) error
}

type StripeConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
}

type StripeGateway struct {
	cfg StripeConfig
}

const (
	// Checkout sessions expire between 30 minutes and 24 hours after creation.
	minSessionLifetime = 30 * time.Minute
	maxSessionLifetime = 24 * time.Hour

	// MinHoldTTL is the shortest slot hold a checkout session can match,
	// leaving room for the time between computing the hold and creating
	// the session.
	MinHoldTTL = minSessionLifetime + 5*time.Minute
)

// SessionExpiry is the expiry sent with a checkout opened at now for a hold
// ending at hold, clamped into the window the gateway accepts.
func SessionExpiry(hold, now time.Time) time.Time {
	if earliest := now.Add(minSessionLifetime + time.Minute); hold.Before(earliest) {
		return earliest
	}
	if latest := now.Add(maxSessionLifetime); hold.After(latest) {
		return latest
	}
	return hold
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	// Stripe uses a global API key.
	stripe.Key = strings.TrimSpace(cfg.SecretKey)
	return &StripeGateway{cfg: cfg}
}

func (g *StripeGateway) Enabled() bool {
	return g != nil && strings.TrimSpace(g.cfg.SecretKey) != ""
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if !g.Enabled() {
		return Checkout{}, fmt.Errorf("%w: stripe not configured", apperr.ErrPaymentGateway)
	}
	if req.AmountCents <= 0 {
		return Checkout{}, apperr.Invalid("amount", "must be greater than zero")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withSessionID(g.cfg.SuccessURL)),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.AppointmentID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"appointment_id": req.AppointmentID,
			"business_id":    req.BusinessID,
		},
	}
	params.Context = ctx
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(SessionExpiry(req.ExpiresAt, time.Now()).Unix())
	}
	if req.Account != "" {
		params.SetStripeAccount(req.Account)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("%w: create checkout session: %v", apperr.ErrPaymentGateway, err)
	}
	return Checkout{Ref: sess.ID, URL: sess.URL}, nil
}

func (g *StripeGateway) Lookup(ctx context.Context, ref, account string) (Event, error) {
	if !g.Enabled() {
		return Event{}, fmt.Errorf("%w: stripe not configured", apperr.ErrPaymentGateway)
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	if account != "" {
		params.SetStripeAccount(account)
	}
	sess, err := checkoutsession.Get(ref, params)
	if err != nil {
		return Event{}, fmt.Errorf("%w: get checkout session: %v", apperr.ErrPaymentGateway, err)
	}
	ev := Event{
		Ref:           sess.ID,
		AppointmentID: sess.Metadata["appointment_id"],
		Source:        SourceReturn,
	}
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		ev.Outcome = Approved{AmountCents: sess.AmountTotal}
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		ev.Outcome = Rejected{Reason: "session expired"}
	default:
		ev.Outcome = Pending{}
	}
	return ev, nil
}

// Expire closes an open checkout session. A session that already expired is
// fine; a paid one returns ErrCheckoutCompleted.
func (g *StripeGateway) Expire(ctx context.Context, ref, account string) error {
	if !g.Enabled() {
		return fmt.Errorf("%w: stripe not configured", apperr.ErrPaymentGateway)
	}
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if account != "" {
		params.SetStripeAccount(account)
	}
	_, err := checkoutsession.Expire(ref, params)
	if err == nil {
		return nil
	}
	// Only open sessions can be expired; see which end this one reached.
	if ev, lerr := g.Lookup(ctx, ref, account); lerr == nil {
		switch ev.Outcome.(type) {
		case Approved:
			return ErrCheckoutCompleted
		case Rejected:
			return nil
		}
	}
	return fmt.Errorf("%w: expire checkout session: %v", apperr.ErrPaymentGateway, err)
}

// StripeEvent maps a verified Stripe webhook event onto a payment Event.
// ok is false for event types that carry no payment outcome.
func StripeEvent(evt stripe.Event) (Event, bool, error) {
	typ := string(evt.Type)
	if !strings.HasPrefix(typ, "checkout.session.") || evt.Data == nil {
		return Event{}, false, nil
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
		return Event{}, false, fmt.Errorf("decode checkout session: %w", err)
	}
	ev := Event{
		Ref:           sess.ID,
		AppointmentID: strings.TrimSpace(sess.Metadata["appointment_id"]),
		Source:        SourceStripe,
	}
	switch typ {
	case "checkout.session.completed":
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			ev.Outcome = Approved{AmountCents: sess.AmountTotal}
		} else {
			ev.Outcome = Pending{}
		}
	case "checkout.session.async_payment_succeeded":
		ev.Outcome = Approved{AmountCents: sess.AmountTotal}
	case "checkout.session.async_payment_failed":
		ev.Outcome = Rejected{Reason: "async payment failed"}
	case "checkout.session.expired":
		ev.Outcome = Rejected{Reason: "session expired"}
	default:
		return Event{}, false, nil
	}
	return ev, true, nil
}

func withSessionID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return raw
	}
	q := u.Query()
	q.Set("session_id", "{CHECKOUT_SESSION_ID}")
	// The placeholder must reach Stripe unescaped.
	u.RawQuery = strings.NewReplacer("%7B", "{", "%7D", "}").Replace(q.Encode())
	return u.String()
}
