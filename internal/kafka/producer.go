package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-booking-saga.git/internal/booking"
)

// MessageWriter is the kafka.Writer surface the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher menulis event secara sinkron: pesan dianggap terkirim hanya
// setelah broker ack (RequireAll). Transient error di-retry dengan exponential
// backoff terbatas; habis attempt -> error pulang ke caller. Tidak ada jalur
// silent drop.
type Publisher struct {
	w           MessageWriter
	producer    string // nama service, masuk envelope
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	log         *zap.Logger
}

type PublisherConfig struct {
	Brokers     []string
	Producer    string
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewPublisher(cfg PublisherConfig, log *zap.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		// Topic per message; satu writer untuk semua event type.
	}
	return newPublisher(w, cfg, log)
}

func newPublisher(w MessageWriter, cfg PublisherConfig, log *zap.Logger) *Publisher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	return &Publisher{
		w:           w,
		producer:    cfg.Producer,
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
		maxBackoff:  cfg.MaxBackoff,
		log:         log,
	}
}

// Publish membungkus payload dalam envelope lalu menulis ke topic event type.
func (p *Publisher) Publish(ctx context.Context, eventType, correlationID string, payload any) error {
	env := booking.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.producer,
		CorrelationID: correlationID,
	}
	env.Payload = MustMarshal(payload)
	if err := env.Validate(); err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: booking.TopicFor(eventType),
		Key:   booking.PartitionKey(correlationID),
		Value: MustMarshal(env),
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(eventType)},
			{Key: "x-event-version", Value: []byte("1")},
		},
	}

	var lastErr error
	backoff := p.baseBackoff
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = p.w.WriteMessages(ctx, msg)
		if lastErr == nil {
			return nil
		}
		p.log.Warn("publish retry",
			zap.String("event_type", eventType),
			zap.String("correlation_id", correlationID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > p.maxBackoff {
			backoff = p.maxBackoff
		}
	}
	return fmt.Errorf("publish %s: %w", eventType, lastErr)
}

func (p *Publisher) Close() error { return p.w.Close() }
