package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/apperr"
)

func TestSessionExpiry(t *testing.T) {
	opened := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		hold time.Time
		want time.Time
	}{
		{"hold matches", opened.Add(MinHoldTTL), opened.Add(MinHoldTTL)},
		{"hold too short", opened.Add(30 * time.Minute), opened.Add(31 * time.Minute)},
		{"hold already lapsed", opened.Add(-time.Minute), opened.Add(31 * time.Minute)},
		{"hold beyond a day", opened.Add(48 * time.Hour), opened.Add(24 * time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SessionExpiry(tc.hold, opened))
		})
	}
}

func TestMinHoldTTLCoversSessionMinimum(t *testing.T) {
	opened := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// A session created a little after the hold was computed still expires
	// with the hold.
	created := opened.Add(2 * time.Minute)
	hold := opened.Add(MinHoldTTL)
	assert.Equal(t, hold, SessionExpiry(hold, created))
}

func TestUnconfiguredGatewayRefusesExpire(t *testing.T) {
	g := &StripeGateway{}
	err := g.Expire(context.Background(), "cs_1", "acct_1")
	assert.ErrorIs(t, err, apperr.ErrPaymentGateway)
}
