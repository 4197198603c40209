// Package holds releases slots held by online bookings whose deposit never
// arrived.
package holds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/slotcache"
)

// ReasonExpired is the cancel reason recorded on swept appointments.
const ReasonExpired = "hold_expired"

type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	LockExpiredHolds(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]model.Appointment, error)
	Save(ctx context.Context, tx pgx.Tx, a *model.Appointment) error
}

type EventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type BusinessLookup interface {
	GetBusiness(ctx context.Context, businessID string) (model.Business, error)
}

// Checkouts closes the payment session of a hold before its slot is freed.
type Checkouts interface {
	Expire(ctx context.Context, ref, account string) error
}

type Invalidator interface {
	Invalidate(ctx context.Context, businessID string, dates ...string) error
}

type Counter interface {
	AddHoldsExpired(n int)
}

type Config struct {
	// LockKey is the advisory lock that elects one sweeping instance.
	LockKey   int64
	BatchSize int
	Timeout   time.Duration
}

type Sweeper struct {
	store     Store
	events    EventWriter
	catalog   BusinessLookup
	checkouts Checkouts
	cache     Invalidator
	counter   Counter
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

func NewSweeper(store Store, events EventWriter, catalog BusinessLookup, checkouts Checkouts, cache Invalidator, counter Counter, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.LockKey == 0 {
		cfg.LockKey = 4242101
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Sweeper{
		store:     store,
		events:    events,
		catalog:   catalog,
		checkouts: checkouts,
		cache:     cache,
		counter:   counter,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Start schedules Sweep on a cron spec such as "@every 1m". Stop the
// returned cron on shutdown.
func (s *Sweeper) Start(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		if _, err := s.Sweep(runCtx); err != nil {
			s.logger.Error("hold sweep failed", "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("hold sweep schedule %q: %w", spec, err)
	}
	c.Start()
	s.logger.Info("hold sweeper started", "schedule", spec, "lock_key", s.cfg.LockKey)
	return c, nil
}

// Sweep cancels one batch of lapsed holds and returns how many it released.
// It does nothing when another instance holds the advisory lock.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, s.cfg.LockKey).Scan(&locked); err != nil {
		return 0, fmt.Errorf("advisory lock: %w", err)
	}
	if !locked {
		s.logger.Debug("hold sweep skipped: lock held elsewhere", "lock_key", s.cfg.LockKey)
		return 0, tx.Commit(ctx)
	}

	now := s.now().UTC()
	expired, err := s.store.LockExpiredHolds(ctx, tx, now, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	released := make([]model.Appointment, 0, len(expired))
	for _, a := range expired {
		if !s.closeCheckout(ctx, a) {
			continue
		}
		if err := lifecycle.Cancel(&a, ReasonExpired, now); err != nil {
			s.logger.Warn("hold sweep skipped appointment", "appointment_id", a.ID, "err", err)
			continue
		}
		if err := s.store.Save(ctx, tx, &a); err != nil {
			return 0, err
		}
		evt, err := outbox.AppointmentEvent(outbox.TopicAppointmentCancelled, a.ID, a.BusinessID, map[string]any{
			"appointment_id":  a.ID,
			"business_id":     a.BusinessID,
			"professional_id": a.ProfessionalID,
			"start_at":        a.StartAt,
			"cancel_reason":   a.CancelReason,
		})
		if err != nil {
			return 0, err
		}
		if err := s.events.Insert(ctx, tx, evt); err != nil {
			return 0, err
		}
		released = append(released, a)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	for _, a := range released {
		s.invalidate(ctx, a)
		s.logger.Info("hold expired; slot released",
			"appointment_id", a.ID,
			"business_id", a.BusinessID,
			"start_at", a.StartAt.Format(time.RFC3339),
		)
	}
	if len(released) > 0 && s.counter != nil {
		s.counter.AddHoldsExpired(len(released))
	}
	return len(released), nil
}

// closeCheckout expires the hold's open payment session. It reports false
// when the slot must stay held: the session was paid, or its state is
// unknown and the next sweep retries.
func (s *Sweeper) closeCheckout(ctx context.Context, a model.Appointment) bool {
	if a.PaymentRef == "" || s.checkouts == nil {
		return true
	}
	b, err := s.catalog.GetBusiness(ctx, a.BusinessID)
	if err != nil {
		s.logger.Warn("hold kept: business lookup failed", "appointment_id", a.ID, "err", err)
		return false
	}
	err = s.checkouts.Expire(ctx, a.PaymentRef, b.GatewayAccount)
	switch {
	case err == nil:
		return true
	case errors.Is(err, payments.ErrCheckoutCompleted):
		s.logger.Info("hold kept: checkout already paid", "appointment_id", a.ID, "payment_ref", a.PaymentRef)
	default:
		s.logger.Warn("hold kept: checkout expiry failed", "appointment_id", a.ID, "payment_ref", a.PaymentRef, "err", err)
	}
	return false
}

func (s *Sweeper) invalidate(ctx context.Context, a model.Appointment) {
	if s.cache == nil {
		return
	}
	b, err := s.catalog.GetBusiness(ctx, a.BusinessID)
	if err != nil {
		s.logger.Warn("slot cache invalidation skipped", "business_id", a.BusinessID, "err", err)
		return
	}
	loc, err := b.Location()
	if err != nil {
		return
	}
	if err := s.cache.Invalidate(ctx, a.BusinessID, slotcache.Dates(a.StartAt, a.EndAt, loc)...); err != nil {
		s.logger.Warn("slot cache invalidation failed", "business_id", a.BusinessID, "err", err)
	}
}
