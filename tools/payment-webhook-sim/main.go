// Command payment-webhook-sim posts a signed payment event to the booking
// service, either as a generic gateway event or as a Stripe checkout event.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/md-rashed-zaman/agenda/libs/config"
)

func main() {
	var (
		baseURL     = flag.String("base-url", config.String("BASE_URL", "http://localhost:8083"), "booking service base url")
		kind        = flag.String("kind", config.String("WEBHOOK_KIND", "generic"), "generic or stripe")
		evtType     = flag.String("type", config.String("STRIPE_EVENT_TYPE", "checkout.session.completed"), "stripe event type")
		status      = flag.String("status", config.String("PAYMENT_STATUS", "approved"), "generic status: approved, rejected or pending")
		ref         = flag.String("ref", config.String("PAYMENT_REF", ""), "external payment reference (defaults to a fresh one)")
		appointment = flag.String("appointment-id", config.String("APPOINTMENT_ID", ""), "appointment id")
		business    = flag.String("business-id", config.String("BUSINESS_ID", ""), "business id (stripe metadata)")
		amount      = flag.Int64("amount", int64(config.Int("AMOUNT_CENTS", 0)), "amount in cents")
		secret      = flag.String("secret", "", "signing secret (defaults to PAYMENT_WEBHOOK_SECRET or STRIPE_WEBHOOK_SECRET)")
	)
	flag.Parse()

	if strings.TrimSpace(*appointment) == "" {
		fatal("APPOINTMENT_ID is required")
	}
	now := time.Now().UTC()
	if *ref == "" {
		*ref = fmt.Sprintf("sim_%d", now.UnixNano())
	}

	var (
		payload []byte
		path    string
		header  string
		err     error
	)
	switch *kind {
	case "generic":
		if *secret == "" {
			*secret = config.String("PAYMENT_WEBHOOK_SECRET", "")
		}
		payload, err = json.Marshal(map[string]any{
			"external_payment_ref": *ref,
			"appointment_id":       *appointment,
			"status":               *status,
			"amount":               *amount,
		})
		path, header = "/api/v1/payments/webhook", "X-Payment-Signature"
	case "stripe":
		if *secret == "" {
			*secret = config.String("STRIPE_WEBHOOK_SECRET", "")
		}
		payload, err = stripeEventJSON(*evtType, now, *ref, *appointment, *business, *amount)
		path, header = "/api/v1/payments/webhooks/stripe", "Stripe-Signature"
	default:
		err = fmt.Errorf("unsupported kind: %s", *kind)
	}
	if err != nil {
		fatal(err.Error())
	}
	if strings.TrimSpace(*secret) == "" {
		fatal("a signing secret is required")
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	fmt.Printf("status=%d ref=%s body=%s\n", resp.StatusCode, *ref, strings.TrimSpace(string(body)))
}

func stripeEventJSON(eventType string, t time.Time, sessionID, appointmentID, businessID string, amount int64) ([]byte, error) {
	session := map[string]any{
		"id":           sessionID,
		"object":       "checkout.session",
		"amount_total": amount,
		"metadata": map[string]any{
			"appointment_id": appointmentID,
			"business_id":    businessID,
		},
	}
	switch eventType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		session["payment_status"] = "paid"
	case "checkout.session.async_payment_failed":
		session["payment_status"] = "unpaid"
	case "checkout.session.expired":
		session["payment_status"] = "unpaid"
		session["status"] = "expired"
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          fmt.Sprintf("evt_test_%d", t.UnixNano()),
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": session},
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
