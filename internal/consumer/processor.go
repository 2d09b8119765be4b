// Package consumer reads framed progression and activity events from Kafka
// and feeds them to handlers with at-least-once semantics.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

const (
	headerEventType     = "event_type"
	headerTenantID      = "tenant_id"
	headerSchemaSubject = "schema_subject"

	// magic byte plus a big-endian schema id
	frameHeaderLen = 5
)

// Reader is the subset of *kafka.Reader the processor drives.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Message) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Message is a Kafka record with its schema-registry framing and headers unpacked.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	TenantID      string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the processor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetryBackoff bounds the delay between attempts at a transiently failing message.
func WithRetryBackoff(initial, max time.Duration) Option {
	return func(p *Processor) {
		p.retryInitial = initial
		p.retryMax = max
	}
}

// Processor fetches, decodes and handles messages from one reader. A message is
// committed once its handler succeeds or fails permanently. Transient failures are
// retried in place so later offsets are never committed past an unhandled one.
type Processor struct {
	reader       Reader
	handler      Handler
	logger       *slog.Logger
	retryInitial time.Duration
	retryMax     time.Duration
}

// NewProcessor constructs a Processor.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:       reader,
		handler:      handler,
		logger:       slog.Default().With(slog.String("component", "consumer")),
		retryInitial: 200 * time.Millisecond,
		retryMax:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until ctx is cancelled or the reader reports cancellation.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := p.reader.FetchMessage(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err != nil {
			p.logger.ErrorContext(ctx, "fetch failed", slog.Any("error", err))
			continue
		}

		msg, err := Decode(record)
		if err != nil {
			decodeErrors.WithLabelValues(record.Topic).Inc()
			p.logger.WarnContext(ctx, "skipping undecodable record",
				slog.String("topic", record.Topic),
				slog.Int("partition", record.Partition),
				slog.Int64("offset", record.Offset),
				slog.Any("error", err),
			)
			p.commit(ctx, record, nil)
			continue
		}

		if err := p.handle(ctx, msg); err != nil {
			if !IsPermanent(err) {
				return err
			}
			p.logger.WarnContext(ctx, "dropping unprocessable message",
				slog.String("event_type", msg.EventType),
				slog.String("tenant_id", msg.TenantID),
				slog.Int64("offset", msg.Offset),
				slog.Any("error", err),
			)
			p.commit(ctx, record, nil)
			continue
		}
		p.commit(ctx, record, &msg)
	}
}

// handle retries transient failures with exponential backoff until they succeed,
// turn permanent, or ctx ends.
func (p *Processor) handle(ctx context.Context, msg Message) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.retryInitial
	policy.MaxInterval = p.retryMax
	policy.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		started := time.Now()
		err := p.handler.Handle(ctx, msg)
		handleDuration.WithLabelValues(msg.EventType).Observe(time.Since(started).Seconds())
		if err == nil {
			return nil
		}
		handlerErrors.WithLabelValues(msg.Topic, msg.EventType).Inc()
		if IsPermanent(err) {
			return backoff.Permanent(err)
		}
		p.logger.ErrorContext(ctx, "handler failed, retrying",
			slog.String("event_type", msg.EventType),
			slog.String("tenant_id", msg.TenantID),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(policy, ctx))
	if attempt > 1 {
		handlerRetries.WithLabelValues(msg.Topic).Add(float64(attempt - 1))
	}
	if err != nil && !IsPermanent(err) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Processor) commit(ctx context.Context, record kafka.Message, handled *Message) {
	if err := p.reader.CommitMessages(ctx, record); err != nil {
		p.logger.ErrorContext(ctx, "commit failed",
			slog.String("topic", record.Topic),
			slog.Int64("offset", record.Offset),
			slog.Any("error", err),
		)
		return
	}
	if handled != nil {
		observeProcessed(*handled)
	}
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as unfixable by retrying; the processor commits past it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var target permanentError
	return errors.As(err, &target)
}

// Decode unpacks a record framed as magic byte, 4-byte schema id, JSON payload.
func Decode(record kafka.Message) (Message, error) {
	if len(record.Value) < frameHeaderLen {
		return Message{}, fmt.Errorf("frame too short: %d bytes", len(record.Value))
	}
	if record.Value[0] != 0 {
		return Message{}, fmt.Errorf("unknown magic byte %d", record.Value[0])
	}

	msg := Message{
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
		Timestamp: record.Time,
		SchemaID:  int(binary.BigEndian.Uint32(record.Value[1:frameHeaderLen])),
		Payload:   json.RawMessage(append([]byte(nil), record.Value[frameHeaderLen:]...)),
	}
	for _, h := range record.Headers {
		switch h.Key {
		case headerEventType:
			msg.EventType = string(h.Value)
		case headerTenantID:
			msg.TenantID = string(h.Value)
		case headerSchemaSubject:
			msg.SchemaSubject = string(h.Value)
		}
	}
	if msg.EventType == "" {
		return Message{}, errors.New("missing event_type header")
	}
	if !json.Valid(msg.Payload) {
		return Message{}, errors.New("payload is not valid JSON")
	}
	return msg, nil
}
