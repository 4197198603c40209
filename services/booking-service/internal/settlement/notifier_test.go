package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/outbox"
)

type fakeTx struct {
	pgx.Tx
	commits, rollbacks int
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) { return f, nil }
func (f *fakeTx) Commit(context.Context) error          { f.commits++; return nil }
func (f *fakeTx) Rollback(context.Context) error        { f.rollbacks++; return nil }

type recordingWriter struct {
	events []outbox.Event
	err    error
}

func (w *recordingWriter) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	if w.err != nil {
		return w.err
	}
	w.events = append(w.events, evt)
	return nil
}

type lookup struct{ bps int }

func (l lookup) GetProfessional(_ context.Context, _, id string) (model.Professional, error) {
	return model.Professional{ID: id, CommissionBps: l.bps}, nil
}

type counter struct{ n int }

func (c *counter) IncCommissionSyncFailure() { c.n++ }

func settled() model.Appointment {
	done := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	return model.Appointment{
		ID: "appt", BusinessID: "biz", ProfessionalID: "ana", ServiceID: "svc",
		Status: model.StatusCompleted, PaymentState: model.PaymentPaid,
		PriceCents: 10000, PaidCents: 10000, CompletedAt: &done,
	}
}

func TestNotifyWritesSettledEvent(t *testing.T) {
	w := &recordingWriter{}
	c := &counter{}
	n := NewNotifier(lookup{bps: 1500}, w, c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	tx := &fakeTx{}

	n.Notify(context.Background(), tx, settled())
	require.Len(t, w.events, 1)
	assert.Equal(t, outbox.TopicAppointmentSettled, w.events[0].EventType)
	assert.Equal(t, 1, tx.commits)

	var p Payload
	require.NoError(t, json.Unmarshal(w.events[0].Payload, &p))
	assert.Equal(t, 1500, p.CommissionBps)
	assert.Equal(t, int64(10000), p.PriceCents)
	assert.Zero(t, c.n)
}

func TestNotifyFailureIsSwallowed(t *testing.T) {
	w := &recordingWriter{err: errors.New("outbox down")}
	c := &counter{}
	n := NewNotifier(lookup{}, w, c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	tx := &fakeTx{}

	n.Notify(context.Background(), tx, settled())
	assert.Equal(t, 1, c.n)
	assert.Equal(t, 1, tx.rollbacks)
}

func TestNotifySkipsUnsettled(t *testing.T) {
	w := &recordingWriter{}
	n := NewNotifier(lookup{}, w, &counter{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a := settled()
	a.ProfessionalID = ""
	n.Notify(context.Background(), &fakeTx{}, a)
	assert.Empty(t, w.events)
}
