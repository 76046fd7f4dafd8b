package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/bookstore/pkg/apperr"
	"github.com/dmehra2102/bookstore/pkg/events"
	"github.com/dmehra2102/bookstore/pkg/idempotency"
	"github.com/dmehra2102/bookstore/pkg/metrics"
	"github.com/dmehra2102/bookstore/pkg/tracing"
)

const DLQSuffix = ".dlq"

type Handler func(ctx context.Context, msg events.Message) error

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewReader(brokers []string, group string, topics ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     group,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
}

func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Permanent marks a handler error as not worth retrying.
func Permanent(err error) error { return backoff.Permanent(err) }

type Consumer struct {
	log      *slog.Logger
	reader   Reader
	dlq      Writer
	group    string
	idem     *idempotency.Store
	metrics  *metrics.ConsumerMetrics
	tracer   trace.Tracer
	handlers map[string]Handler
	backoff  func() backoff.BackOff
}

type Option func(*Consumer)

func WithIdempotency(s *idempotency.Store) Option { return func(c *Consumer) { c.idem = s } }

func WithMetrics(m *metrics.ConsumerMetrics) Option { return func(c *Consumer) { c.metrics = m } }

func WithRetry(maxRetries uint64, initial time.Duration) Option {
	return func(c *Consumer) {
		c.backoff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = 10 * initial
			b.MaxElapsedTime = 0
			return backoff.WithMaxRetries(b, maxRetries)
		}
	}
}

func NewConsumer(log *slog.Logger, reader Reader, dlq Writer, group string, opts ...Option) *Consumer {
	c := &Consumer{
		log:      log.With("group", group),
		reader:   reader,
		dlq:      dlq,
		group:    group,
		tracer:   otel.Tracer("eventbus-consumer"),
		handlers: map[string]Handler{},
	}
	WithRetry(3, 200*time.Millisecond)(c)
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Consumer) Handle(eventType string, h Handler) {
	c.handlers[eventType] = h
}

// Run consumes until ctx is cancelled. It returns an error only when a
// message could neither be handled nor parked, leaving it uncommitted.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch: %w", err)
		}
		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("commit failed", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	ev, err := events.Parse(msg.Value)
	if err != nil {
		c.log.Error("undecodable message", "topic", msg.Topic, "offset", msg.Offset, "err", err)
		c.count(msg.Topic, "unknown", "dlq")
		return c.park(ctx, msg, err)
	}

	h, ok := c.handlers[ev.EventType]
	if !ok {
		c.log.Debug("no handler for event type", "topic", msg.Topic, "type", ev.EventType)
		c.count(msg.Topic, ev.EventType, "ignored")
		return nil
	}

	var idemKey string
	if c.idem != nil && ev.EventID != "" {
		idemKey = c.idem.Key(c.group, ev.EventID)
		seen, err := c.idem.Seen(ctx, idemKey)
		switch {
		case err != nil:
			c.log.Warn("idempotency check failed, processing anyway", "event_id", ev.EventID, "err", err)
		case seen:
			c.log.Info("duplicate event skipped", "event_id", ev.EventID, "type", ev.EventType)
			c.count(msg.Topic, ev.EventType, "duplicate")
			return nil
		}
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "consume "+ev.EventType,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.consumer.group.name", c.group),
			attribute.String("event.id", ev.EventID),
		))
	defer span.End()

	attempt := 0
	op := func() error {
		attempt++
		err := h(msgCtx, ev)
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		if isBusinessError(err) {
			return backoff.Permanent(err)
		}
		c.log.Warn("handler failed", "type", ev.EventType, "event_id", ev.EventID, "attempt", attempt, "err", err)
		return err
	}
	err = backoff.Retry(op, backoff.WithContext(c.backoff(), ctx))
	if err == nil {
		c.mark(idemKey)
		c.log.Info("event processed", "topic", msg.Topic, "type", ev.EventType, "event_id", ev.EventID)
		c.count(msg.Topic, ev.EventType, "ok")
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.log.Error("event failed, parking", "topic", msg.Topic, "type", ev.EventType, "event_id", ev.EventID, "attempts", attempt, "err", err)
	c.count(msg.Topic, ev.EventType, "dlq")
	return c.park(ctx, msg, err)
}

func (c *Consumer) park(ctx context.Context, msg kafka.Message, cause error) error {
	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "dlq_error", Value: []byte(cause.Error())},
		kafka.Header{Key: "dlq_group", Value: []byte(c.group)},
		kafka.Header{Key: "dlq_source", Value: []byte(msg.Topic + "/" + strconv.Itoa(msg.Partition) + "/" + strconv.FormatInt(msg.Offset, 10))},
	)
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Topic + DLQSuffix,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("park %s/%d/%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}
	return nil
}

// mark runs after the handler committed its effects. A crash before this
// point leaves the key unset and the redelivery is handled again.
func (c *Consumer) mark(key string) {
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.idem.Mark(ctx, key); err != nil {
		c.log.Warn("idempotency mark failed", "key", key, "err", err)
	}
}

func (c *Consumer) count(topic, typ, outcome string) {
	if c.metrics != nil {
		c.metrics.Consumed.WithLabelValues(topic, typ, outcome).Inc()
	}
}

// Classified errors describe the data, not the infrastructure; retrying
// cannot change them.
func isBusinessError(err error) bool {
	k := apperr.KindOf(err)
	return k != apperr.KindInternal && k != apperr.KindUpstreamUnavailable
}
