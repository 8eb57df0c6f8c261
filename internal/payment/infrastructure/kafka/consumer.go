package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	orderdomain "github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/internal/payment/domain"
	"github.com/dmehra2102/orderflow/pkg/tracing"
)

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Settler interface {
	Settle(ctx context.Context, ev domain.PaymentProcessed) (domain.Status, error)
}

type Deduper interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Observer is told the result of every handling attempt; "failed" and
// "invalid" are used next to the settlement statuses.
type Observer func(result string)

type Consumer struct {
	log      *slog.Logger
	reader   Reader
	svc      Settler
	idem     Deduper
	observe  Observer
	tracer   trace.Tracer
	retryMin time.Duration
	retryMax time.Duration
}

type ConsumerOption func(*Consumer)

// WithRetryBackoff bounds the wait between attempts to settle a message
// whose settlement failed. The wait doubles from lo up to hi.
func WithRetryBackoff(lo, hi time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if lo > 0 && hi >= lo {
			c.retryMin, c.retryMax = lo, hi
		}
	}
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

func NewConsumer(log *slog.Logger, reader Reader, svc Settler, idem Deduper, observe Observer, opts ...ConsumerOption) *Consumer {
	if observe == nil {
		observe = func(string) {}
	}
	c := &Consumer{
		log:      log,
		reader:   reader,
		svc:      svc,
		idem:     idem,
		observe:  observe,
		tracer:   otel.Tracer("payment-consumer"),
		retryMin: 100 * time.Millisecond,
		retryMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is cancelled. A message is committed only after it
// has been handled: settled, recognised as a duplicate, or rejected as
// malformed. A failed settlement is retried with backoff and its offset stays
// uncommitted until it succeeds, so a restart fetches it again.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !c.process(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("commit failed", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		}
	}
}

// process handles msg until it no longer fails. It returns false when ctx is
// cancelled first; msg must then not be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		c.log.Error("idempotency check failed", "key", key, "err", err)
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		c.observe("duplicate")
		return true
	}

	backoff := c.retryMin
	for {
		err := c.handle(ctx, msg)
		if err == nil {
			return true
		}
		c.log.Warn("payment settle will be retried", "offset", msg.Offset, "backoff", backoff, "err", err)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			// The offset stays uncommitted; release the key so the next
			// fetch of this message is not taken for a duplicate.
			if ferr := c.idem.Forget(context.WithoutCancel(ctx), key); ferr != nil {
				c.log.Error("idempotency release failed", "key", key, "err", ferr)
			}
			return false
		case <-t.C:
		}
		backoff = min(backoff*2, c.retryMax)
	}
}

// handle returns an error only when settlement failed for a reason that may
// go away, such as an unavailable database.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumePaymentProcessed",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	if t := headerValue(msg.Headers, "event_type"); t != "" && t != domain.EventPaymentProcessed {
		c.log.Debug("ignoring event", "type", t)
		c.observe("ignored")
		return nil
	}

	var ev domain.PaymentProcessed
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.Error("unmarshal failed", "offset", msg.Offset, "err", err)
		span.SetStatus(codes.Error, "unmarshal")
		c.observe("invalid")
		return nil
	}

	status, err := c.svc.Settle(msgCtx, ev)
	if orderdomain.IsInvariant(err) {
		c.log.Error("payment event rejected", "unique_order_number", ev.UniqueOrderNumber, "err", err)
		span.SetStatus(codes.Error, "invalid")
		c.observe("invalid")
		return nil
	}
	if err != nil {
		c.log.Error("payment settle failed", "unique_order_number", ev.UniqueOrderNumber, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "settle")
		c.observe("failed")
		return err
	}
	span.SetAttributes(attribute.String("payment.status", string(status)))
	c.observe(string(status))
	return nil
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
