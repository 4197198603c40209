package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallsBackToKeyAndTopic(t *testing.T) {
	msg := kafka.Message{Topic: "agenda.appointment.settled.v1", Key: []byte("evt-1")}
	meta := ExtractEventMeta(msg)
	assert.Equal(t, "evt-1", meta.EventID)
	assert.Equal(t, "agenda.appointment.settled.v1", meta.EventType)
	assert.Empty(t, meta.BusinessID)
}

func TestEventMetaHeadersRoundTrip(t *testing.T) {
	meta := EventMeta{EventID: "evt-2", EventType: "settled", BusinessID: "biz"}
	got := ExtractEventMeta(kafka.Message{Topic: "other", Key: []byte("k"), Headers: meta.Headers()})
	assert.Equal(t, meta, got)
	assert.Len(t, EventMeta{EventID: "only"}.Headers(), 1)
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, SplitBrokers(""))
}

func TestTraceHeadersPropagate(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: HeaderEventID, Value: []byte("x")}})
	assert.NotEmpty(t, HeaderValue(headers, "traceparent"))

	restored := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(restored).TraceID())
}
