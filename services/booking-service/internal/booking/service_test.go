package booking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/storage"
)

const (
	bizID   = "11111111-1111-1111-1111-111111111111"
	svcID   = "22222222-2222-2222-2222-222222222222"
	anaID   = "33333333-3333-3333-3333-333333333333"
	beaID   = "44444444-4444-4444-4444-444444444444"
	otherID = "55555555-5555-5555-5555-555555555555"
)

// 2026-03-02 is a Monday.
var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeTx struct {
	pgx.Tx
	parent    *fakeTx
	commits   int
	rollbacks int
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) { return &fakeTx{parent: f}, nil }
func (f *fakeTx) Commit(context.Context) error          { f.commits++; return nil }
func (f *fakeTx) Rollback(context.Context) error        { f.rollbacks++; return nil }

type catalog struct {
	business model.Business
	service  model.Service
	pros     []model.Professional
}

func (c *catalog) GetBusiness(_ context.Context, id string) (model.Business, error) {
	if id != c.business.ID {
		return model.Business{}, apperr.ErrNotFound
	}
	return c.business, nil
}

func (c *catalog) GetProfessional(_ context.Context, _, id string) (model.Professional, error) {
	for _, p := range c.pros {
		if p.ID == id {
			return p, nil
		}
	}
	return model.Professional{}, apperr.ErrNotFound
}

func (c *catalog) ListProfessionals(context.Context, string) ([]model.Professional, error) {
	return c.pros, nil
}

func (c *catalog) GetService(_ context.Context, _, id string) (model.Service, error) {
	if id != c.service.ID {
		return model.Service{}, apperr.ErrNotFound
	}
	return c.service, nil
}

type store struct {
	mu    sync.Mutex
	appts map[string]model.Appointment
}

func newStore() *store {
	return &store{appts: map[string]model.Appointment{}}
}

func (s *store) Begin(context.Context) (pgx.Tx, error) { return &fakeTx{}, nil }

func (s *store) Insert(_ context.Context, _ pgx.Tx, a *model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv := availability.Interval{Start: a.StartAt, End: a.EndAt}
	for _, o := range s.appts {
		if o.Status == model.StatusCancelled || o.BusinessID != a.BusinessID || o.ProfessionalID != a.ProfessionalID {
			continue
		}
		if iv.Overlaps(availability.Interval{Start: o.StartAt, End: o.EndAt}) {
			return &apperr.ConflictError{ProfessionalID: a.ProfessionalID, Start: a.StartAt}
		}
	}
	a.CreatedAt = now
	s.appts[a.ID] = *a
	return nil
}

func (s *store) Get(_ context.Context, businessID, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok || a.BusinessID != businessID {
		return model.Appointment{}, apperr.ErrNotFound
	}
	return a, nil
}

func (s *store) GetForUpdate(_ context.Context, _ pgx.Tx, businessID, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok || (businessID != "" && a.BusinessID != businessID) {
		return model.Appointment{}, apperr.ErrNotFound
	}
	return a, nil
}

func (s *store) Save(_ context.Context, _ pgx.Tx, a *model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appts[a.ID] = *a
	return nil
}

func (s *store) ListBetween(_ context.Context, businessID string, from, to time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if a.BusinessID == businessID && !a.StartAt.Before(from) && a.StartAt.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *store) Occupied(_ context.Context, _ string, window availability.Interval) (map[string][]availability.Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string][]availability.Interval{}
	for _, a := range s.appts {
		iv := availability.Interval{Start: a.StartAt, End: a.EndAt}
		if a.Status != model.StatusCancelled && iv.Overlaps(window) {
			out[a.ProfessionalID] = append(out[a.ProfessionalID], iv)
		}
	}
	return out, nil
}

type clients struct {
	mu sync.Mutex
	n  int
}

func (c *clients) Upsert(_ context.Context, _ pgx.Tx, cl *model.Client) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	cl.ID = "66666666-6666-6666-6666-666666666666"
	return nil
}

type idemKeys struct {
	rows map[string]storage.IdempotencyRecord
}

func (k *idemKeys) Lock(_ context.Context, _ pgx.Tx, businessID, key string) (storage.IdempotencyRecord, error) {
	if rec, ok := k.rows[key]; ok {
		return rec, nil
	}
	return storage.IdempotencyRecord{BusinessID: businessID, Key: key}, nil
}

func (k *idemKeys) Finalize(_ context.Context, _ pgx.Tx, rec storage.IdempotencyRecord) error {
	k.rows[rec.Key] = rec
	return nil
}

type events struct {
	mu   sync.Mutex
	list []outbox.Event
}

func (e *events) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, evt)
	return nil
}

type gateway struct {
	err       error
	expireErr error
	calls     []payments.CheckoutRequest
	expired   []string
}

func (g *gateway) Expire(_ context.Context, ref, _ string) error {
	if g.expireErr != nil {
		return g.expireErr
	}
	g.expired = append(g.expired, ref)
	return nil
}

func (g *gateway) CreateCheckout(_ context.Context, req payments.CheckoutRequest) (payments.Checkout, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return payments.Checkout{}, g.err
	}
	return payments.Checkout{Ref: "cs_test", URL: "https://pay.example/cs_test"}, nil
}

func (g *gateway) Lookup(context.Context, string, string) (payments.Event, error) {
	return payments.Event{}, errors.New("not used")
}

type invalidator struct {
	mu    sync.Mutex
	dates []string
}

func (i *invalidator) Invalidate(_ context.Context, _ string, dates ...string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.dates = append(i.dates, dates...)
	return nil
}

type notifier struct{ settled []model.Appointment }

func (n *notifier) Notify(_ context.Context, _ pgx.Tx, a model.Appointment) {
	n.settled = append(n.settled, a)
}

type recorder struct{ got []payments.Event }

func (r *recorder) ReconcileForBusiness(_ context.Context, _ string, ev payments.Event) (payments.Result, error) {
	r.got = append(r.got, ev)
	return payments.Result{CreditedCents: ev.Outcome.(payments.Approved).AmountCents}, nil
}

type harness struct {
	svc      *Service
	cat      *catalog
	store    *store
	clients  *clients
	idem     *idemKeys
	events   *events
	gateway  *gateway
	cache    *invalidator
	settle   *notifier
	recorder *recorder
}

func weekdays(start, end int) model.WeeklySchedule {
	s := model.WeeklySchedule{}
	for d := time.Monday; d <= time.Friday; d++ {
		s[d] = model.DayHours{Ranges: []model.TimeRange{{Start: start, End: end}}}
	}
	s[time.Saturday] = model.DayHours{Closed: true}
	s[time.Sunday] = model.DayHours{Closed: true}
	return s
}

func newHarness(pros ...model.Professional) *harness {
	h := &harness{
		cat: &catalog{
			business: model.Business{
				ID: bizID, Timezone: "UTC", Schedule: weekdays(9*60, 18*60),
				DepositPercent: 30, GatewayAccount: "acct_1", AutoConfirmOnDeposit: true,
			},
			service: model.Service{ID: svcID, BusinessID: bizID, Name: "Cut", DurationMinutes: 60, PriceCents: 10000, Active: true},
			pros:    pros,
		},
		store:    newStore(),
		clients:  &clients{},
		idem:     &idemKeys{rows: map[string]storage.IdempotencyRecord{}},
		events:   &events{},
		gateway:  &gateway{},
		cache:    &invalidator{},
		settle:   &notifier{},
		recorder: &recorder{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen := availability.NewGenerator(h.cat, h.store, nil, logger, 30)
	h.svc = NewService(Deps{
		Catalog:      h.cat,
		Appointments: h.store,
		Clients:      h.clients,
		Idempotency:  h.idem,
		Events:       h.events,
		Candidates:   gen,
		Gateway:      h.gateway,
		Cache:        h.cache,
		Settlement:   h.settle,
		Payments:     h.recorder,
		Logger:       logger,
	}, Config{HoldTTL: 30 * time.Minute, Currency: "usd", Policy: lifecycle.DefaultPolicy()})
	h.svc.now = func() time.Time { return now }
	return h
}

func ana() model.Professional {
	return model.Professional{ID: anaID, BusinessID: bizID, Name: "Ana", Schedule: weekdays(9*60, 18*60), Active: true}
}

func bea() model.Professional {
	s := model.WeeklySchedule{time.Monday: {Ranges: []model.TimeRange{{Start: 9 * 60, End: 12 * 60}}}}
	return model.Professional{ID: beaID, BusinessID: bizID, Name: "Bea", Schedule: s, Active: true}
}

func request(prof, start, method string) Request {
	return Request{
		BusinessID:     bizID,
		ServiceID:      svcID,
		ProfessionalID: prof,
		Date:           "2026-03-02",
		StartTime:      start,
		Client:         ClientInput{Name: "Carla", Contact: "carla@example.com"},
		PaymentMethod:  method,
	}
}

func TestBookOnSiteWithProfessional(t *testing.T) {
	h := newHarness(ana())

	res, err := h.svc.Book(context.Background(), request(anaID, "10:00", "on_site"))
	require.NoError(t, err)
	a := res.Appointment
	assert.Equal(t, anaID, a.ProfessionalID)
	assert.Equal(t, model.StatusPending, a.Status)
	assert.Equal(t, model.PaymentUnpaid, a.PaymentState)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), a.StartAt)
	assert.Equal(t, time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC), a.EndAt)
	assert.Nil(t, a.HoldExpiresAt)
	assert.Nil(t, res.Checkout)
	assert.Empty(t, h.gateway.calls)
	require.Len(t, h.events.list, 1)
	assert.Equal(t, outbox.TopicAppointmentBooked, h.events.list[0].EventType)
	assert.Equal(t, []string{"2026-03-02"}, h.cache.dates)
}

func TestBookSameSlotTwiceConflicts(t *testing.T) {
	h := newHarness(ana())
	ctx := context.Background()

	_, err := h.svc.Book(ctx, request(anaID, "10:00", "on_site"))
	require.NoError(t, err)
	_, err = h.svc.Book(ctx, request(anaID, "10:30", "on_site"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrSlotConflict)

	var ce *apperr.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, anaID, ce.ProfessionalID)
}

func TestBookConcurrentSameSlotOneWins(t *testing.T) {
	h := newHarness(ana())
	ctx := context.Background()

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = h.svc.Book(ctx, request(anaID, "10:00", "on_site"))
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrSlotConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.Len(t, h.store.appts, 1)
}

func TestBookBackToBack(t *testing.T) {
	h := newHarness(ana())
	ctx := context.Background()

	_, err := h.svc.Book(ctx, request(anaID, "10:00", "on_site"))
	require.NoError(t, err)
	_, err = h.svc.Book(ctx, request(anaID, "11:00", "on_site"))
	require.NoError(t, err)
}

func TestBookAnyProfessionalFallsThrough(t *testing.T) {
	h := newHarness(ana(), bea())
	ctx := context.Background()

	first, err := h.svc.Book(ctx, request("", "10:00", "on_site"))
	require.NoError(t, err)
	second, err := h.svc.Book(ctx, request("", "10:00", "on_site"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Appointment.ProfessionalID, second.Appointment.ProfessionalID)

	_, err = h.svc.Book(ctx, request("", "10:00", "on_site"))
	assert.ErrorIs(t, err, apperr.ErrSlotConflict)
}

func TestBookOutsideHours(t *testing.T) {
	h := newHarness(ana())

	_, err := h.svc.Book(context.Background(), request(anaID, "17:30", "on_site"))
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestBookClosedDay(t *testing.T) {
	h := newHarness(ana())
	req := request(anaID, "10:00", "on_site")
	req.Date = "2026-03-07"

	_, err := h.svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrScheduleUnavailable)
}

func TestBookInPast(t *testing.T) {
	h := newHarness(ana())
	req := request(anaID, "10:00", "on_site")
	req.Date = "2026-02-27"

	_, err := h.svc.Book(context.Background(), req)
	assert.True(t, apperr.IsValidation(err))
}

func TestBookBusinessLevelWithoutProfessionals(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	res, err := h.svc.Book(ctx, request("", "09:00", "on_site"))
	require.NoError(t, err)
	assert.Empty(t, res.Appointment.ProfessionalID)

	_, err = h.svc.Book(ctx, request("", "09:30", "on_site"))
	assert.ErrorIs(t, err, apperr.ErrSlotConflict)
}

func TestBookOnlineOpensCheckout(t *testing.T) {
	h := newHarness(ana())

	res, err := h.svc.Book(context.Background(), request(anaID, "10:00", "online_deposit"))
	require.NoError(t, err)
	require.NotNil(t, res.Checkout)
	assert.Equal(t, "cs_test", res.Appointment.PaymentRef)
	require.NotNil(t, res.Appointment.HoldExpiresAt)
	// The configured 30 minutes is raised so the checkout can expire with
	// the hold.
	assert.Equal(t, now.Add(payments.MinHoldTTL), *res.Appointment.HoldExpiresAt)

	require.Len(t, h.gateway.calls, 1)
	call := h.gateway.calls[0]
	assert.Equal(t, *res.Appointment.HoldExpiresAt, call.ExpiresAt)
	assert.Equal(t, call.ExpiresAt, payments.SessionExpiry(call.ExpiresAt, now))
	assert.Equal(t, int64(3000), call.AmountCents)
	assert.Equal(t, "acct_1", call.Account)
	assert.Equal(t, res.Appointment.ID, call.AppointmentID)
	assert.Equal(t, model.PaymentUnpaid, h.store.appts[res.Appointment.ID].PaymentState)
}

func TestBookOnlineGatewayFailureKeepsAppointment(t *testing.T) {
	h := newHarness(ana())
	h.gateway.err = apperr.ErrPaymentGateway

	res, err := h.svc.Book(context.Background(), request(anaID, "10:00", "online"))
	require.NoError(t, err)
	assert.ErrorIs(t, res.PaymentErr, apperr.ErrPaymentGateway)
	assert.Nil(t, res.Checkout)
	assert.Contains(t, h.store.appts, res.Appointment.ID)

	h.gateway.err = nil
	a, checkout, err := h.svc.StartPayment(context.Background(), res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, "cs_test", checkout.Ref)
	assert.Equal(t, "cs_test", a.PaymentRef)
}

func TestStartPaymentExpiresPreviousCheckout(t *testing.T) {
	h := newHarness(ana())
	ctx := context.Background()

	res, err := h.svc.Book(ctx, request(anaID, "10:00", "online"))
	require.NoError(t, err)
	require.Equal(t, "cs_test", res.Appointment.PaymentRef)

	_, _, err = h.svc.StartPayment(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cs_test"}, h.gateway.expired)
	require.Len(t, h.gateway.calls, 2)
	assert.Equal(t, now.Add(payments.MinHoldTTL), h.gateway.calls[1].ExpiresAt)
}

func TestStartPaymentRefusesWhenPreviousCheckoutPaid(t *testing.T) {
	h := newHarness(ana())
	ctx := context.Background()

	res, err := h.svc.Book(ctx, request(anaID, "10:00", "online"))
	require.NoError(t, err)

	h.gateway.expireErr = payments.ErrCheckoutCompleted
	_, _, err = h.svc.StartPayment(ctx, res.Appointment.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Len(t, h.gateway.calls, 1)
}

func TestBookOnlineRequiresLinkedGateway(t *testing.T) {
	h := newHarness(ana())
	h.cat.business.GatewayAccount = ""

	_, err := h.svc.Book(context.Background(), request(anaID, "10:00", "online"))
	require.Error(t, err)
	var ve *apperr.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "payment_method", ve.Field)
}

func TestBookIdempotencyReplays(t *testing.T) {
	h := newHarness(ana())
	ctx := context.Background()
	req := request(anaID, "10:00", "on_site")
	req.IdempotencyKey = "key-1"

	first, err := h.svc.Book(ctx, req)
	require.NoError(t, err)
	require.Nil(t, first.Replay)

	second, err := h.svc.Book(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, second.Replay)
	assert.Equal(t, 201, second.Replay.StatusCode)

	var view BookingView
	require.NoError(t, json.Unmarshal(second.Replay.ResponsePayload, &view))
	assert.Equal(t, first.Appointment.ID, view.Appointment.ID)
	assert.Len(t, h.store.appts, 1)
}

func TestBookValidation(t *testing.T) {
	h := newHarness(ana())
	cases := map[string]func(*Request){
		"business_id":     func(r *Request) { r.BusinessID = "nope" },
		"service_id":      func(r *Request) { r.ServiceID = "" },
		"professional_id": func(r *Request) { r.ProfessionalID = "x" },
		"client.name":     func(r *Request) { r.Client.Name = " " },
		"client.contact":  func(r *Request) { r.Client.Contact = "" },
		"payment_method":  func(r *Request) { r.PaymentMethod = "cash" },
		"start_time":      func(r *Request) { r.StartTime = "25:00" },
		"date":            func(r *Request) { r.Date = "03/02/2026" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			req := request(anaID, "10:00", "on_site")
			mutate(&req)
			_, err := h.svc.Book(context.Background(), req)
			var ve *apperr.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, field, ve.Field)
		})
	}
}

func TestLifecycleOperations(t *testing.T) {
	h := newHarness(ana())
	ctx := context.Background()
	res, err := h.svc.Book(ctx, request(anaID, "10:00", "on_site"))
	require.NoError(t, err)
	id := res.Appointment.ID

	_, err = h.svc.Complete(ctx, bizID, id, false)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	a, err := h.svc.Confirm(ctx, bizID, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, a.Status)

	_, err = h.svc.Complete(ctx, bizID, id, false)
	assert.ErrorIs(t, err, apperr.ErrOutstandingBalance)

	a, err = h.svc.Complete(ctx, bizID, id, true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, a.Status)
	assert.Empty(t, h.settle.settled)

	_, err = h.svc.Cancel(ctx, bizID, id, "late")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestCompletePaidNotifiesSettlement(t *testing.T) {
	h := newHarness(ana())
	ctx := context.Background()
	res, err := h.svc.Book(ctx, request(anaID, "10:00", "on_site"))
	require.NoError(t, err)
	a := h.store.appts[res.Appointment.ID]
	a.Status = model.StatusConfirmed
	a.PaidCents = a.PriceCents
	a.PaymentState = model.PaymentPaid
	h.store.appts[a.ID] = a

	_, err = h.svc.Complete(ctx, bizID, a.ID, false)
	require.NoError(t, err)
	require.Len(t, h.settle.settled, 1)
	assert.Equal(t, a.ID, h.settle.settled[0].ID)
}

func TestCancelFreesSlot(t *testing.T) {
	h := newHarness(ana())
	ctx := context.Background()
	res, err := h.svc.Book(ctx, request(anaID, "10:00", "on_site"))
	require.NoError(t, err)

	a, err := h.svc.Cancel(ctx, bizID, res.Appointment.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "cancelled_by_staff", a.CancelReason)

	_, err = h.svc.Book(ctx, request(anaID, "10:00", "on_site"))
	require.NoError(t, err)
}

func TestOperationsAreTenantScoped(t *testing.T) {
	h := newHarness(ana())
	ctx := context.Background()
	res, err := h.svc.Book(ctx, request(anaID, "10:00", "on_site"))
	require.NoError(t, err)

	_, err = h.svc.Confirm(ctx, otherID, res.Appointment.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRegisterPaymentUsesManualReference(t *testing.T) {
	h := newHarness(ana())

	_, err := h.svc.RegisterPayment(context.Background(), bizID, "appt", 0)
	assert.True(t, apperr.IsValidation(err))

	res, err := h.svc.RegisterPayment(context.Background(), bizID, "appt", 2500)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), res.CreditedCents)
	require.Len(t, h.recorder.got, 1)
	assert.Contains(t, h.recorder.got[0].Ref, "manual:")
	assert.Equal(t, payments.SourceManual, h.recorder.got[0].Source)
}

func TestBlockOccupiesSlot(t *testing.T) {
	h := newHarness(ana())
	ctx := context.Background()

	_, err := h.svc.Block(ctx, bizID, BlockRequest{Date: "2026-03-02", StartTime: "12:00", EndTime: "13:00"})
	assert.True(t, apperr.IsValidation(err))

	b, err := h.svc.Block(ctx, bizID, BlockRequest{ProfessionalID: anaID, Date: "2026-03-02", StartTime: "12:00", EndTime: "13:00", Note: "lunch"})
	require.NoError(t, err)
	assert.True(t, b.IsBlock())
	assert.Equal(t, model.StatusConfirmed, b.Status)

	_, err = h.svc.Book(ctx, request(anaID, "12:30", "on_site"))
	assert.ErrorIs(t, err, apperr.ErrSlotConflict)

	_, err = h.svc.Block(ctx, bizID, BlockRequest{ProfessionalID: anaID, Date: "2026-03-02", StartTime: "14:00", EndTime: "13:00"})
	assert.True(t, apperr.IsValidation(err))
}

func TestListByDate(t *testing.T) {
	h := newHarness(ana())
	ctx := context.Background()
	_, err := h.svc.Book(ctx, request(anaID, "10:00", "on_site"))
	require.NoError(t, err)

	list, err := h.svc.List(ctx, bizID, "2026-03-02")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = h.svc.List(ctx, bizID, "2026-03-03")
	require.NoError(t, err)
	assert.Empty(t, list)
}
