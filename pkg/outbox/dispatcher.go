package outbox

import (
	"context"
	"log/slog"
	"sort"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/orderflow/pkg/tracing"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	topic    string
	tracer   trace.Tracer
}

func NewDispatcher(log *slog.Logger, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, topic: topic, tracer: otel.Tracer("outbox-dispatcher")}
}

// Message converts e into the Kafka message the dispatcher would publish.
func (d *Dispatcher) Message(e Event) kafka.Message {
	keys := make([]string, 0, len(e.Headers))
	for k := range e.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafka.Header, 0, len(keys)+4)
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(e.Headers[k])})
	}
	headers = append(headers,
		kafka.Header{Key: "event_type", Value: []byte(e.Type)},
		kafka.Header{Key: "outbox_id", Value: []byte(strconv.FormatInt(e.ID, 10))},
		kafka.Header{Key: "outbox_attempt", Value: []byte(strconv.Itoa(e.Attempt()))},
	)
	if e.Traceparent != "" {
		headers = append(headers, kafka.Header{Key: tracing.TraceparentHeader, Value: []byte(e.Traceparent)})
	}

	return kafka.Message{
		Topic:   d.topic,
		Key:     []byte(e.AggregateID),
		Value:   e.Payload,
		Headers: headers,
	}
}

// Dispatch publishes e inside a producer span parented on the trace that
// wrote the event, so the consumer side continues that trace.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) error {
	ctx, span := d.tracer.Start(tracing.ContextWithTraceparent(ctx, e.Traceparent), "publish "+e.Type,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", d.topic),
			attribute.Int64("outbox.id", e.ID),
		),
	)
	defer span.End()

	msg := d.Message(e)
	msg.Headers = tracing.InjectKafkaHeaders(ctx, msg.Headers)
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		d.log.Error("outbox dispatch failed", "event_id", e.ID, "type", e.Type, "attempt", e.Attempt(), "err", err)
		return err
	}
	d.log.Info("outbox dispatched", "event_id", e.ID, "type", e.Type, "key", e.AggregateID)
	return nil
}
