package commission

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	apptID = "66666666-6666-6666-6666-666666666666"
	bizID  = "11111111-1111-1111-1111-111111111111"
	proID  = "33333333-3333-3333-3333-333333333333"
	svcID  = "22222222-2222-2222-2222-222222222222"
)

type memStore struct {
	rows map[string]Commission
	err  error
}

func (m *memStore) Insert(_ context.Context, _ pgx.Tx, c Commission) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.rows[c.AppointmentID]; ok {
		return false, nil
	}
	m.rows[c.AppointmentID] = c
	return true, nil
}

func newRecorder() (*Recorder, *memStore) {
	store := &memStore{rows: map[string]Commission{}}
	return NewRecorder(store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func settledMessage(body string) kafka.Message {
	return kafka.Message{
		Topic:   TopicAppointmentSettled,
		Key:     []byte(apptID),
		Value:   []byte(body),
		Headers: []kafka.Header{{Key: "event_id", Value: []byte("evt-1")}},
		Time:    time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestAmount(t *testing.T) {
	cases := []struct {
		price int64
		bps   int
		want  int64
	}{
		{10000, 4000, 4000},
		{10000, 0, 0},
		{10000, 10000, 10000},
		{999, 3333, 332},
		{1, 5000, 0},
		{0, 5000, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Amount(tc.price, tc.bps), "price=%d bps=%d", tc.price, tc.bps)
	}
}

func TestHandleRecordsOnce(t *testing.T) {
	rec, store := newRecorder()
	msg := settledMessage(`{"appointment_id":"` + apptID + `","business_id":"` + bizID + `","professional_id":"` + proID + `","service_id":"` + svcID + `","price_cents":10000,"paid_cents":10000,"commission_bps":4000,"settled_at":"2026-03-02T09:30:00Z"}`)

	require.NoError(t, rec.Handle(context.Background(), nil, msg))
	require.NoError(t, rec.Handle(context.Background(), nil, msg))

	require.Len(t, store.rows, 1)
	c := store.rows[apptID]
	assert.Equal(t, int64(4000), c.AmountCents)
	assert.Equal(t, 4000, c.RateBps)
	assert.Equal(t, "evt-1", c.EventID)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), c.SettledAt)
}

func TestHandleDefaultsSettledAtToMessageTime(t *testing.T) {
	rec, store := newRecorder()
	msg := settledMessage(`{"appointment_id":"` + apptID + `","business_id":"` + bizID + `","professional_id":"` + proID + `","price_cents":5000,"commission_bps":1000}`)

	require.NoError(t, rec.Handle(context.Background(), nil, msg))
	assert.Equal(t, msg.Time, store.rows[apptID].SettledAt)
	assert.Equal(t, int64(500), store.rows[apptID].AmountCents)
}

func TestHandleDropsMalformedEvents(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"appointment_id":"","business_id":"` + bizID + `","professional_id":"` + proID + `","price_cents":100}`,
		`{"appointment_id":"` + apptID + `","business_id":"` + bizID + `","professional_id":"nope","price_cents":100}`,
		`{"appointment_id":"` + apptID + `","business_id":"` + bizID + `","professional_id":"` + proID + `","price_cents":-1}`,
		`{"appointment_id":"` + apptID + `","business_id":"` + bizID + `","professional_id":"` + proID + `","price_cents":100,"commission_bps":10001}`,
	}
	for _, body := range bodies {
		rec, store := newRecorder()
		require.NoError(t, rec.Handle(context.Background(), nil, settledMessage(body)), body)
		assert.Empty(t, store.rows, body)
	}
}

func TestHandleReturnsStorageErrors(t *testing.T) {
	rec, store := newRecorder()
	store.err = errors.New("db down")
	msg := settledMessage(`{"appointment_id":"` + apptID + `","business_id":"` + bizID + `","professional_id":"` + proID + `","price_cents":100,"commission_bps":100}`)
	assert.Error(t, rec.Handle(context.Background(), nil, msg))
}
