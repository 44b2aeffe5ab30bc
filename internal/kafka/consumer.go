package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
// Error berarti nack: offset tidak di-commit dan pesan di-retry.
type Handler func(ctx context.Context, m kafka.Message) error

// fetcher is the kafka.Reader surface the consumer needs. FetchMessage tidak
// meng-commit apa pun; offset hanya maju lewat CommitMessages eksplisit.
// (Reader.ReadMessage auto-commit dalam mode consumer group, jadi tidak
// dipakai di sini.)
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r          fetcher
	workers    int
	maxBackoff time.Duration
	log        *zap.Logger
}

func NewConsumer(brokers []string, group string, topics []string, workers int, maxBackoff time.Duration, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     group,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newConsumer(r, workers, maxBackoff, log)
}

func newConsumer(r fetcher, workers int, maxBackoff time.Duration, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	return &Consumer{r: r, workers: workers, maxBackoff: maxBackoff, log: log}
}

// Start membaca pesan dan membagikannya ke worker pool. Handler error ->
// retry di tempat dengan backoff (at-least-once; dedup & step-status check
// yang bikin redelivery aman). Fetch error -> backoff capped, coba terus,
// hanya berhenti saat ctx selesai.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)

	for i := 0; i < c.workers; i++ {
		go func() {
			for m := range jobs {
				c.handleWithRetry(ctx, h, m)
			}
		}()
	}

	backoff := time.Second
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				close(jobs)
				return nil
			default:
			}
			// Outage transport: delivery berhenti sebentar, pesan durable
			// tetap menunggu di broker.
			c.log.Warn("consumer fetch error", zap.Error(err))
			select {
			case <-ctx.Done():
				close(jobs)
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}
		backoff = time.Second

		select {
		case jobs <- m:
		case <-ctx.Done():
			close(jobs)
			return nil
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, h Handler, m kafka.Message) {
	backoff := 200 * time.Millisecond
	for {
		err := h(ctx, m)
		if err == nil {
			// Commit antar worker bisa interleave; commit offset lama cuma
			// memperlebar redelivery setelah restart, dan redelivery aman.
			if err := c.r.CommitMessages(ctx, m); err != nil {
				c.log.Warn("commit failed", zap.Error(err),
					zap.String("topic", m.Topic), zap.Int64("offset", m.Offset))
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.log.Warn("handler error, redelivering",
			zap.String("topic", m.Topic),
			zap.Int64("offset", m.Offset),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}
