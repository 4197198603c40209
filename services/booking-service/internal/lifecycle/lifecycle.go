// Package lifecycle holds the appointment state machine. Every function
// mutates the appointment in place and leaves it untouched on error.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
)

type Policy struct {
	// MaxShortfallPercent caps the unpaid share of the price that an
	// overridden completion may leave behind. 100 means no cap.
	MaxShortfallPercent int
}

func DefaultPolicy() Policy {
	return Policy{MaxShortfallPercent: 100}
}

func Confirm(a *model.Appointment) error {
	if a.Status != model.StatusPending {
		return apperr.Transition(string(a.Status), string(model.StatusConfirmed))
	}
	a.Status = model.StatusConfirmed
	return nil
}

// Cancel releases the slot. Payments already taken are kept; refunds are a
// separate operator action.
func Cancel(a *model.Appointment, reason string, at time.Time) error {
	if a.Status != model.StatusPending && a.Status != model.StatusConfirmed {
		return apperr.Transition(string(a.Status), string(model.StatusCancelled))
	}
	a.Status = model.StatusCancelled
	a.CancelReason = reason
	a.CancelledAt = &at
	a.HoldExpiresAt = nil
	return nil
}

// Complete moves a confirmed appointment to completed. An outstanding balance
// needs override, and even then must stay within the policy cap.
func Complete(a *model.Appointment, override bool, p Policy, at time.Time) error {
	if a.Status != model.StatusConfirmed {
		return apperr.Transition(string(a.Status), string(model.StatusCompleted))
	}
	if due := a.Outstanding(); due > 0 {
		if !override {
			return fmt.Errorf("%w: %d cents due", apperr.ErrOutstandingBalance, due)
		}
		if p.MaxShortfallPercent < 100 && due*100 > a.PriceCents*int64(p.MaxShortfallPercent) {
			return fmt.Errorf("%w: %d cents due exceeds the %d%% completion cap", apperr.ErrOutstandingBalance, due, p.MaxShortfallPercent)
		}
	}
	a.Status = model.StatusCompleted
	a.CompletedAt = &at
	return nil
}

// ApplyPayment credits amount, clamped to the outstanding balance, and
// returns what was actually credited.
func ApplyPayment(a *model.Appointment, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, apperr.Invalid("amount", "must be greater than zero")
	}
	if a.PaymentState == model.PaymentRefunded {
		return 0, apperr.Transition(string(a.PaymentState), string(model.PaymentPaid))
	}
	credited := amount
	if due := a.Outstanding(); credited > due {
		credited = due
	}
	a.PaidCents += credited
	a.PaymentState = StateFor(a.PaidCents, a.PriceCents)
	if credited > 0 {
		a.HoldExpiresAt = nil
	}
	return credited, nil
}

// Refund is operator-only and only applies to fully paid appointments.
func Refund(a *model.Appointment) error {
	if a.PaymentState != model.PaymentPaid {
		return apperr.Transition(string(a.PaymentState), string(model.PaymentRefunded))
	}
	a.PaymentState = model.PaymentRefunded
	return nil
}

func StateFor(paid, price int64) model.PaymentState {
	switch {
	case paid <= 0:
		return model.PaymentUnpaid
	case paid < price:
		return model.PaymentPartial
	default:
		return model.PaymentPaid
	}
}

// AutoConfirm confirms a pending appointment after a payment when the
// business allows it. It reports whether the status changed.
func AutoConfirm(a *model.Appointment, b model.Business) bool {
	if !b.AutoConfirmOnDeposit || a.Status != model.StatusPending || a.PaidCents <= 0 {
		return false
	}
	a.Status = model.StatusConfirmed
	return true
}

// DepositAmount is the share collected online. Zero or 100 percent means the
// full price.
func DepositAmount(priceCents int64, percent int) int64 {
	if percent <= 0 || percent >= 100 {
		return priceCents
	}
	return priceCents * int64(percent) / 100
}

// BecameSettled reports the transition into completed+paid with a
// professional assigned.
func BecameSettled(before, after model.Appointment) bool {
	return after.Settled() && !before.Settled()
}
