package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-booking-saga.git/internal/booking"
	kafkax "github.com/ariefcatur/go-booking-saga.git/internal/kafka"
	"github.com/ariefcatur/go-booking-saga.git/internal/redisx"
)

// ErrDeclined is a business rejection from the gateway, bukan infra error.
var ErrDeclined = errors.New("card declined")

// Gateway charges an amount and returns the gateway transaction id.
type Gateway func(ctx context.Context, amountCents int, currency string) (transactionID string, err error)

// SimulatedGateway approves ~90% of charges, sisanya declined. Tidak ada
// gateway beneran di belakang (Non-goal).
func SimulatedGateway(ctx context.Context, amountCents int, currency string) (string, error) {
	if rand.Float64() < 0.9 {
		return fmt.Sprintf("txn_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8]), nil
	}
	return "", ErrDeclined
}

type Store interface {
	Insert(ctx context.Context, p Payment) error
	GetCompletedByBooking(ctx context.Context, bookingID string) (*Payment, error)
	Get(ctx context.Context, id string) (*Payment, error)
	MarkRefunded(ctx context.Context, id string, refundCents int) error
}

type Publisher interface {
	Publish(ctx context.Context, eventType, correlationID string, payload any) error
}

// Service consumes payment.process / payment.refund commands.
type Service struct {
	Repo    Store
	Bus     Publisher
	Gateway Gateway
	Dedup   *redisx.Deduper
	Log     *zap.Logger
}

func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env booking.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		s.Log.Warn("malformed message dropped", zap.Error(err))
		return nil
	}
	if env.Validate() != nil {
		s.Log.Warn("event without correlation id dropped", zap.String("event_type", env.EventType))
		return nil
	}
	if s.Dedup.Seen(ctx, env.EventID) {
		return nil
	}

	switch env.EventType {
	case booking.EventPaymentProcess:
		return s.handleProcess(ctx, env)
	case booking.EventPaymentRefund:
		return s.handleRefund(ctx, env)
	default:
		return nil
	}
}

func (s *Service) handleProcess(ctx context.Context, env booking.Envelope) error {
	p, err := kafkax.UnwrapPayload[booking.PaymentProcessPayload](env.Payload)
	if err != nil {
		s.Log.Warn("bad payment.process payload", zap.Error(err))
		return nil
	}

	// Idempotent short-circuit: booking ini sudah pernah dibayar sukses.
	if existing, err := s.Repo.GetCompletedByBooking(ctx, p.BookingID); err == nil {
		return s.publishCompleted(ctx, p.BookingID, existing.ID, existing.TransactionID)
	} else if !errors.Is(err, ErrPaymentNotFound) {
		return err
	}

	txnID, gwErr := s.Gateway(ctx, p.AmountCents, p.Currency)
	if gwErr != nil {
		if !errors.Is(gwErr, ErrDeclined) {
			return gwErr // infra -> nack
		}
		rec := Payment{
			ID:          uuid.NewString(),
			BookingID:   p.BookingID,
			UserID:      p.UserID,
			AmountCents: p.AmountCents,
			Currency:    p.Currency,
			Status:      "failed",
		}
		if err := s.Repo.Insert(ctx, rec); err != nil {
			return err
		}
		s.Log.Info("payment declined", zap.String("booking_id", p.BookingID))
		return s.Bus.Publish(ctx, booking.EventPaymentFailed, p.BookingID,
			booking.PaymentFailedPayload{BookingID: p.BookingID, Reason: "CARD_DECLINED"})
	}

	rec := Payment{
		ID:            uuid.NewString(),
		BookingID:     p.BookingID,
		UserID:        p.UserID,
		AmountCents:   p.AmountCents,
		Currency:      p.Currency,
		Status:        "completed",
		TransactionID: txnID,
	}
	if err := s.Repo.Insert(ctx, rec); err != nil {
		return err
	}

	s.Log.Info("payment completed",
		zap.String("booking_id", p.BookingID),
		zap.String("payment_id", rec.ID),
	)
	return s.publishCompleted(ctx, p.BookingID, rec.ID, txnID)
}

func (s *Service) handleRefund(ctx context.Context, env booking.Envelope) error {
	p, err := kafkax.UnwrapPayload[booking.PaymentRefundPayload](env.Payload)
	if err != nil {
		s.Log.Warn("bad payment.refund payload", zap.Error(err))
		return nil
	}

	if err := s.Repo.MarkRefunded(ctx, p.PaymentID, p.RefundAmountCents); err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			s.Log.Warn("refund for unknown payment", zap.String("payment_id", p.PaymentID))
			return s.Bus.Publish(ctx, booking.EventPaymentRefundFailed, env.CorrelationID, map[string]string{
				"payment_id": p.PaymentID,
				"reason":     "PAYMENT_NOT_FOUND",
			})
		}
		return err
	}

	s.Log.Info("payment refunded", zap.String("payment_id", p.PaymentID))
	return s.Bus.Publish(ctx, booking.EventPaymentRefunded, env.CorrelationID, map[string]any{
		"payment_id":          p.PaymentID,
		"refund_amount_cents": p.RefundAmountCents,
	})
}

func (s *Service) publishCompleted(ctx context.Context, bookingID, paymentID, txnID string) error {
	return s.Bus.Publish(ctx, booking.EventPaymentCompleted, bookingID, booking.PaymentCompletedPayload{
		BookingID:     bookingID,
		PaymentID:     paymentID,
		TransactionID: txnID,
	})
}
