package payments

// Outcome is the gateway's verdict for one payment reference. It is one of
// Approved, Rejected or Pending.
type Outcome interface {
	status() string
}

type Approved struct {
	AmountCents int64
}

type Rejected struct {
	Reason string
}

type Pending struct{}

func (Approved) status() string { return StatusApproved }
func (Rejected) status() string { return StatusRejected }
func (Pending) status() string  { return StatusPending }

// Status values stored on payment_events.
const (
	StatusReceived = "received"
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

func terminal(status string) bool {
	return status == StatusApproved || status == StatusRejected
}

// ParseOutcome maps the webhook wire status onto an Outcome.
func ParseOutcome(status string, amountCents int64) (Outcome, bool) {
	switch status {
	case StatusApproved:
		return Approved{AmountCents: amountCents}, true
	case StatusRejected:
		return Rejected{}, true
	case StatusPending:
		return Pending{}, true
	default:
		return nil, false
	}
}

// OutcomeName is the status string of o, for logs and metrics.
func OutcomeName(o Outcome) string {
	if o == nil {
		return "unknown"
	}
	return o.status()
}

// Event is one delivery of a payment outcome, from any source.
type Event struct {
	Ref           string
	AppointmentID string
	Source        string
	Outcome       Outcome
}

// Sources.
const (
	SourceWebhook = "webhook"
	SourceStripe  = "stripe"
	SourceReturn  = "redirect"
	SourceManual  = "manual"
)
