package room

import (
	"context"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-booking-saga.git/internal/booking"
	kafkax "github.com/ariefcatur/go-booking-saga.git/internal/kafka"
	"github.com/ariefcatur/go-booking-saga.git/internal/redisx"
)

// Reserver is the storage surface the worker needs.
type Reserver interface {
	Reserve(ctx context.Context, roomID, bookingID string, checkIn, checkOut time.Time) (priceCents int, err error)
	Release(ctx context.Context, bookingID string) error
}

// Publisher is the outbound bus surface.
type Publisher interface {
	Publish(ctx context.Context, eventType, correlationID string, payload any) error
}

// Service consumes room.reserve / room.release commands.
type Service struct {
	Repo  Reserver
	Bus   Publisher
	Dedup *redisx.Deduper
	Log   *zap.Logger
}

// HandleEvent dipasang sebagai handler consumer.
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
	case booking.EventRoomReserve:
		return s.handleReserve(ctx, env)
	case booking.EventRoomRelease:
		return s.handleRelease(ctx, env)
	default:
		return nil
	}
}

func (s *Service) handleReserve(ctx context.Context, env booking.Envelope) error {
	p, err := kafkax.UnwrapPayload[booking.RoomReservePayload](env.Payload)
	if err != nil {
		s.Log.Warn("bad room.reserve payload", zap.Error(err))
		return nil
	}

	price, err := s.Repo.Reserve(ctx, p.RoomID, p.BookingID, p.CheckInDate, p.CheckOutDate)
	if err != nil {
		reason := ""
		switch {
		case errors.Is(err, ErrRoomNotFound):
			reason = "ROOM_NOT_FOUND"
		case errors.Is(err, ErrNoAvailability):
			reason = "NO_AVAILABILITY"
		default:
			// Infra error: nack, biar transport mengulang.
			return err
		}
		s.Log.Info("reservation rejected",
			zap.String("booking_id", p.BookingID),
			zap.String("room_id", p.RoomID),
			zap.String("reason", reason),
		)
		return s.Bus.Publish(ctx, booking.EventRoomReservationFailed, p.BookingID,
			booking.RoomReservationFailedPayload{BookingID: p.BookingID, Reason: reason})
	}

	s.Log.Info("room reserved",
		zap.String("booking_id", p.BookingID),
		zap.String("room_id", p.RoomID),
	)
	return s.Bus.Publish(ctx, booking.EventRoomReserved, p.BookingID, booking.RoomReservedPayload{
		BookingID:          p.BookingID,
		RoomID:             p.RoomID,
		PricePerNightCents: price,
	})
}

func (s *Service) handleRelease(ctx context.Context, env booking.Envelope) error {
	p, err := kafkax.UnwrapPayload[booking.RoomReleasePayload](env.Payload)
	if err != nil {
		s.Log.Warn("bad room.release payload", zap.Error(err))
		return nil
	}
	if err := s.Repo.Release(ctx, p.BookingID); err != nil {
		return err
	}
	s.Log.Info("room released",
		zap.String("booking_id", p.BookingID),
		zap.String("room_id", p.RoomID),
	)
	return nil
}
