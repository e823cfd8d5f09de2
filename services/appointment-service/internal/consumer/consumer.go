// Package consumer reads Kafka topics with inbox deduplication.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/md-rashed-zaman/docbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Reader is the part of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
}

type Consumer struct {
	reader  Reader
	logger  *slog.Logger
	inbox   Inbox
	handler Handler

	retryInitial time.Duration
	retryMax     time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewWithReader(logger, inbox, reader, handler)
}

func NewWithReader(logger *slog.Logger, inbox Inbox, reader Reader, handler Handler) *Consumer {
	return &Consumer{
		reader:       reader,
		logger:       logger,
		inbox:        inbox,
		handler:      handler,
		retryInitial: 500 * time.Millisecond,
		retryMax:     30 * time.Second,
	}
}

// Run fetches messages until ctx is done. A message's offset is committed
// only after Handle succeeds, so delivery is at-least-once.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if !c.handleWithRetry(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			// The inbox drops the redelivery.
			c.logger.Error("kafka commit error", "err", err, "offset", msg.Offset)
		}
	}
}

// handleWithRetry returns false only when ctx ends before msg is handled.
func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message) bool {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	b.MaxInterval = c.retryMax

	for {
		if err := c.Handle(ctx, msg); err == nil {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(b.NextBackOff()):
		}
	}
}

// Handle processes one message. Messages whose event id is already in the
// inbox are skipped. The id is recorded only after the handler succeeds, so
// a failed message is handled again when it is redelivered.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)

	// Messages without an id or key cannot be deduplicated here; the handler must be idempotent.
	if meta.EventID != "" {
		seen, err := c.inbox.Seen(ctxSpan, meta.EventID)
		if err != nil {
			c.logger.Error("inbox lookup failed", "err", err)
			span.RecordError(err)
			return err
		}
		if seen {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return nil
		}
	}

	if err := c.handler(ctxSpan, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		return err
	}

	if meta.EventID != "" {
		// The handler already ran; a lost record only weakens dedupe.
		if _, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType); err != nil {
			c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
		}
	}
	return nil
}
