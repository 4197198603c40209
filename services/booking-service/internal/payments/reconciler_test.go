package payments

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/storage"
)

const apptID = "9b2f4c1e-5d6a-4e8b-9c0d-1a2b3c4d5e6f"

type fakeTx struct {
	pgx.Tx
	commits int
}

func (f *fakeTx) Commit(context.Context) error   { f.commits++; return nil }
func (f *fakeTx) Rollback(context.Context) error { return nil }

type memStore struct {
	tx    *fakeTx
	appts map[string]model.Appointment
}

func (m *memStore) Begin(context.Context) (pgx.Tx, error) { return m.tx, nil }

func (m *memStore) GetForUpdate(_ context.Context, _ pgx.Tx, businessID, id string) (model.Appointment, error) {
	a, ok := m.appts[id]
	if !ok || (businessID != "" && a.BusinessID != businessID) {
		return model.Appointment{}, apperr.ErrNotFound
	}
	return a, nil
}

func (m *memStore) Save(_ context.Context, _ pgx.Tx, a *model.Appointment) error {
	m.appts[a.ID] = *a
	return nil
}

type memLedger struct {
	rows map[string]storage.PaymentEvent
}

func (l *memLedger) Lock(_ context.Context, _ pgx.Tx, ref, appointmentID, source string) (storage.PaymentEvent, error) {
	if ev, ok := l.rows[ref]; ok {
		return ev, nil
	}
	ev := storage.PaymentEvent{Ref: ref, AppointmentID: appointmentID, Source: source, Status: StatusReceived}
	l.rows[ref] = ev
	return ev, nil
}

func (l *memLedger) Save(_ context.Context, _ pgx.Tx, ev storage.PaymentEvent) error {
	l.rows[ev.Ref] = ev
	return nil
}

type businesses struct{ autoConfirm bool }

func (b businesses) GetBusiness(_ context.Context, id string) (model.Business, error) {
	return model.Business{ID: id, AutoConfirmOnDeposit: b.autoConfirm}, nil
}

type recordingWriter struct{ events []outbox.Event }

func (w *recordingWriter) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	w.events = append(w.events, evt)
	return nil
}

func (w *recordingWriter) types() []string {
	out := make([]string, 0, len(w.events))
	for _, e := range w.events {
		out = append(out, e.EventType)
	}
	return out
}

type notifier struct{ calls int }

func (n *notifier) Notify(context.Context, pgx.Tx, model.Appointment) { n.calls++ }

type fixture struct {
	store  *memStore
	ledger *memLedger
	events *recordingWriter
	settle *notifier
	rec    *Reconciler
}

func newFixture(autoConfirm bool, appts ...model.Appointment) *fixture {
	f := &fixture{
		store:  &memStore{tx: &fakeTx{}, appts: map[string]model.Appointment{}},
		ledger: &memLedger{rows: map[string]storage.PaymentEvent{}},
		events: &recordingWriter{},
		settle: &notifier{},
	}
	for _, a := range appts {
		f.store.appts[a.ID] = a
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.rec = NewReconciler(f.store, f.ledger, businesses{autoConfirm: autoConfirm}, f.events, f.settle, nil, logger)
	return f
}

func pendingOnline() model.Appointment {
	return model.Appointment{
		ID: apptID, BusinessID: "biz", ProfessionalID: "ana",
		Status: model.StatusPending, PaymentState: model.PaymentUnpaid,
		PaymentMethod: model.PaymentOnline, PriceCents: 10000,
	}
}

func TestApprovedDepositConfirms(t *testing.T) {
	f := newFixture(true, pendingOnline())

	res, err := f.rec.Reconcile(context.Background(), Event{
		Ref: "cs_1", AppointmentID: apptID, Source: SourceWebhook, Outcome: Approved{AmountCents: 3000},
	})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.True(t, res.Confirmed)
	assert.Equal(t, int64(3000), res.CreditedCents)

	a := f.store.appts[apptID]
	assert.Equal(t, model.StatusConfirmed, a.Status)
	assert.Equal(t, model.PaymentPartial, a.PaymentState)
	assert.Equal(t, "cs_1", a.PaymentRef)
	assert.Equal(t, StatusApproved, f.ledger.rows["cs_1"].Status)
	assert.Equal(t, []string{outbox.TopicPaymentRecorded, outbox.TopicAppointmentConfirmed}, f.events.types())
}

func TestReplayedApprovalIsDuplicate(t *testing.T) {
	f := newFixture(true, pendingOnline())
	ev := Event{Ref: "cs_1", AppointmentID: apptID, Source: SourceWebhook, Outcome: Approved{AmountCents: 3000}}

	_, err := f.rec.Reconcile(context.Background(), ev)
	require.NoError(t, err)
	res, err := f.rec.Reconcile(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, int64(3000), f.store.appts[apptID].PaidCents)
	assert.Len(t, f.events.events, 2)
}

func TestPendingThenApproved(t *testing.T) {
	f := newFixture(false, pendingOnline())
	ctx := context.Background()

	res, err := f.rec.Reconcile(ctx, Event{Ref: "cs_1", AppointmentID: apptID, Source: SourceStripe, Outcome: Pending{}})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, StatusPending, f.ledger.rows["cs_1"].Status)

	res, err = f.rec.Reconcile(ctx, Event{Ref: "cs_1", AppointmentID: apptID, Source: SourceStripe, Outcome: Pending{}})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	res, err = f.rec.Reconcile(ctx, Event{Ref: "cs_1", AppointmentID: apptID, Source: SourceStripe, Outcome: Approved{AmountCents: 10000}})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.False(t, res.Confirmed)
	a := f.store.appts[apptID]
	assert.Equal(t, model.StatusPending, a.Status)
	assert.Equal(t, model.PaymentPaid, a.PaymentState)
}

func TestRejectedIsTerminal(t *testing.T) {
	f := newFixture(true, pendingOnline())
	ctx := context.Background()

	_, err := f.rec.Reconcile(ctx, Event{Ref: "cs_1", AppointmentID: apptID, Source: SourceWebhook, Outcome: Rejected{}})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentUnpaid, f.store.appts[apptID].PaymentState)
	assert.Empty(t, f.events.events)

	res, err := f.rec.Reconcile(ctx, Event{Ref: "cs_1", AppointmentID: apptID, Source: SourceWebhook, Outcome: Approved{AmountCents: 100}})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Zero(t, f.store.appts[apptID].PaidCents)
}

func TestOverpaymentIsClamped(t *testing.T) {
	a := pendingOnline()
	a.PaidCents = 8000
	a.PaymentState = model.PaymentPartial
	f := newFixture(true, a)

	res, err := f.rec.Reconcile(context.Background(), Event{
		Ref: "cs_2", AppointmentID: apptID, Source: SourceWebhook, Outcome: Approved{AmountCents: 5000},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), res.CreditedCents)
	assert.Equal(t, int64(10000), f.store.appts[apptID].PaidCents)
	assert.Equal(t, int64(2000), f.ledger.rows["cs_2"].CreditedCents)
}

func TestPaymentAfterCancellationIsRecorded(t *testing.T) {
	a := pendingOnline()
	a.Status = model.StatusCancelled
	a.CancelReason = "hold_expired"
	f := newFixture(true, a)

	res, err := f.rec.Reconcile(context.Background(), Event{
		Ref: "cs_1", AppointmentID: apptID, Source: SourceWebhook, Outcome: Approved{AmountCents: 3000},
	})
	require.NoError(t, err)
	assert.False(t, res.Confirmed)
	got := f.store.appts[apptID]
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, int64(3000), got.PaidCents)
}

func TestSettlementNotifiedWhenCompletedBecomesPaid(t *testing.T) {
	a := pendingOnline()
	a.Status = model.StatusCompleted
	a.PaidCents = 5000
	a.PaymentState = model.PaymentPartial
	f := newFixture(true, a)

	_, err := f.rec.Reconcile(context.Background(), Event{
		Ref: "manual:1", AppointmentID: apptID, Source: SourceManual, Outcome: Approved{AmountCents: 5000},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.settle.calls)
}

func TestReconcileRejectsMismatchedAppointment(t *testing.T) {
	f := newFixture(true, pendingOnline())
	f.ledger.rows["cs_1"] = storage.PaymentEvent{Ref: "cs_1", AppointmentID: "other", Status: StatusPending}

	_, err := f.rec.Reconcile(context.Background(), Event{
		Ref: "cs_1", AppointmentID: apptID, Source: SourceWebhook, Outcome: Approved{AmountCents: 100},
	})
	assert.True(t, apperr.IsValidation(err))
}

func TestReconcileForBusinessScopesTenant(t *testing.T) {
	f := newFixture(true, pendingOnline())

	_, err := f.rec.ReconcileForBusiness(context.Background(), "other-biz", Event{
		Ref: "manual:2", AppointmentID: apptID, Source: SourceManual, Outcome: Approved{AmountCents: 100},
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReconcileValidation(t *testing.T) {
	f := newFixture(true, pendingOnline())
	cases := []Event{
		{AppointmentID: apptID, Outcome: Pending{}},
		{Ref: "r", Outcome: Pending{}},
		{Ref: "r", AppointmentID: apptID},
		{Ref: "r", AppointmentID: apptID, Outcome: Approved{}},
	}
	for _, ev := range cases {
		_, err := f.rec.Reconcile(context.Background(), ev)
		assert.True(t, apperr.IsValidation(err), "event %+v", ev)
	}
}
