package outbox

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/agenda/libs/kafkax"
)

type captureWriter struct {
	msgs []kafka.Message
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestPublishBatchWritesAndMarks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WithArgs(50).WillReturnRows(
		pgxmock.NewRows([]string{"id", "event_id", "aggregate_type", "aggregate_id", "business_id", "event_type", "payload", "traceparent", "tracestate", "created_at"}).
			AddRow(int64(7), "evt-7", "appointment", "appt-1", "biz", TopicAppointmentSettled, []byte(`{"a":1}`), "", "", now))
	mock.ExpectExec("SET published_at").WithArgs([]int64{7}).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	w := &captureWriter{}
	p := NewPublisher(mock, NewRepository(), w, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{})
	n, err := p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, TopicAppointmentSettled, w.msgs[0].Topic)
	assert.Equal(t, "appt-1", string(w.msgs[0].Key))
	meta := kafkax.ExtractEventMeta(w.msgs[0])
	assert.Equal(t, "evt-7", meta.EventID)
	assert.Equal(t, "biz", meta.BusinessID)
}

func TestAppointmentEvent(t *testing.T) {
	evt, err := AppointmentEvent(TopicAppointmentBooked, "appt", "biz", map[string]string{"status": "pending"})
	require.NoError(t, err)
	assert.Equal(t, "appointment", evt.AggregateType)
	assert.JSONEq(t, `{"status":"pending"}`, string(evt.Payload))
}
