package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/agenda/libs/kafkax"
)

// Handler applies one message inside the inbox transaction. Returning an
// error rolls back both the inbox claim and the handler's writes.
type Handler func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Inbox interface {
	Record(ctx context.Context, tx pgx.Tx, eventID, eventType string) (bool, error)
}

type Config struct {
	// MaxBackoff caps the delay between retries of a failing message.
	MaxBackoff time.Duration
}

type Consumer struct {
	reader     Reader
	db         TxBeginner
	inbox      Inbox
	handler    Handler
	logger     *slog.Logger
	maxBackoff time.Duration
}

func New(reader Reader, db TxBeginner, inboxRepo Inbox, handler Handler, logger *slog.Logger, cfg Config) *Consumer {
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Consumer{
		reader:     reader,
		db:         db,
		inbox:      inboxRepo,
		handler:    handler,
		logger:     logger,
		maxBackoff: cfg.MaxBackoff,
	}
}

// Run fetches, processes and commits messages one at a time. A message's
// offset is committed only after its transaction commits, so a crash
// redelivers it and the inbox absorbs the repeat.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		if !c.processWithRetry(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka commit error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// processWithRetry returns false only when ctx is done.
func (c *Consumer) processWithRetry(ctx context.Context, msg kafka.Message) bool {
	backoff := time.Second
	for {
		err := c.Process(ctx, msg)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.logger.Error("event processing failed; retrying",
			"err", err,
			"topic", msg.Topic,
			"offset", msg.Offset,
			"retry_in", backoff.String(),
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// Process runs the inbox claim and the handler in one transaction.
func (c *Consumer) Process(ctx context.Context, msg kafka.Message) (err error) {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctx, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		c.logger.Error("event without id skipped", "topic", msg.Topic, "offset", msg.Offset)
		return nil
	}

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fresh, err := c.inbox.Record(ctx, tx, meta.EventID, meta.EventType)
	if err != nil {
		return err
	}
	if !fresh {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return tx.Commit(ctx)
	}
	if err := c.handler(ctx, tx, msg); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
