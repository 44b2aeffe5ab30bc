package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-booking-saga.git/internal/booking"
)

type stubReserver struct {
	price      int
	reserveErr error
	releaseErr error

	mu       sync.Mutex
	reserved []string
	released []string
}

func (s *stubReserver) Reserve(ctx context.Context, roomID, bookingID string, checkIn, checkOut time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserveErr != nil {
		return 0, s.reserveErr
	}
	s.reserved = append(s.reserved, bookingID)
	return s.price, nil
}

func (s *stubReserver) Release(ctx context.Context, bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.releaseErr != nil {
		return s.releaseErr
	}
	s.released = append(s.released, bookingID)
	return nil
}

type spyBus struct {
	mu     sync.Mutex
	events []string
	last   any
}

func (b *spyBus) Publish(ctx context.Context, eventType, correlationID string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
	b.last = payload
	return nil
}

func commandMsg(t *testing.T, eventType, correlationID string, payload any) kafkago.Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env := booking.Envelope{
		EventID:       "evt-" + eventType,
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      "test",
		CorrelationID: correlationID,
		Payload:       raw,
	}
	val, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return kafkago.Message{Value: val}
}

func TestHandleReserve_Success(t *testing.T) {
	repo := &stubReserver{price: 15000}
	bus := &spyBus{}
	svc := &Service{Repo: repo, Bus: bus, Log: zap.NewNop()}

	msg := commandMsg(t, booking.EventRoomReserve, "booking-1", booking.RoomReservePayload{
		RoomID:       "room-1",
		BookingID:    "booking-1",
		CheckInDate:  time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		CheckOutDate: time.Date(2026, 10, 4, 0, 0, 0, 0, time.UTC),
	})
	if err := svc.HandleEvent(context.Background(), msg); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if len(repo.reserved) != 1 || repo.reserved[0] != "booking-1" {
		t.Fatalf("reserved = %v", repo.reserved)
	}
	if len(bus.events) != 1 || bus.events[0] != booking.EventRoomReserved {
		t.Fatalf("events = %v, want [room.reserved]", bus.events)
	}
	p, ok := bus.last.(booking.RoomReservedPayload)
	if !ok || p.PricePerNightCents != 15000 {
		t.Fatalf("payload = %+v", bus.last)
	}
}

func TestHandleReserve_BusinessRejection(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason string
	}{
		{"no availability", ErrNoAvailability, "NO_AVAILABILITY"},
		{"room not found", ErrRoomNotFound, "ROOM_NOT_FOUND"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			repo := &stubReserver{reserveErr: c.err}
			bus := &spyBus{}
			svc := &Service{Repo: repo, Bus: bus, Log: zap.NewNop()}

			msg := commandMsg(t, booking.EventRoomReserve, "booking-1", booking.RoomReservePayload{
				RoomID: "room-1", BookingID: "booking-1",
			})
			if err := svc.HandleEvent(context.Background(), msg); err != nil {
				t.Fatalf("business rejection must ack: %v", err)
			}
			if len(bus.events) != 1 || bus.events[0] != booking.EventRoomReservationFailed {
				t.Fatalf("events = %v, want [room.reservation_failed]", bus.events)
			}
			p, ok := bus.last.(booking.RoomReservationFailedPayload)
			if !ok || p.Reason != c.reason {
				t.Fatalf("payload = %+v, want reason %s", bus.last, c.reason)
			}
		})
	}
}

func TestHandleReserve_InfraErrorNacks(t *testing.T) {
	repo := &stubReserver{reserveErr: errors.New("db down")}
	bus := &spyBus{}
	svc := &Service{Repo: repo, Bus: bus, Log: zap.NewNop()}

	msg := commandMsg(t, booking.EventRoomReserve, "booking-1", booking.RoomReservePayload{
		RoomID: "room-1", BookingID: "booking-1",
	})
	if err := svc.HandleEvent(context.Background(), msg); err == nil {
		t.Fatalf("infra error must nack")
	}
	if len(bus.events) != 0 {
		t.Fatalf("nothing should be published on infra error, got %v", bus.events)
	}
}

func TestHandleRelease(t *testing.T) {
	repo := &stubReserver{}
	bus := &spyBus{}
	svc := &Service{Repo: repo, Bus: bus, Log: zap.NewNop()}

	msg := commandMsg(t, booking.EventRoomRelease, "booking-1", booking.RoomReleasePayload{
		RoomID: "room-1", BookingID: "booking-1",
	})
	if err := svc.HandleEvent(context.Background(), msg); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(repo.released) != 1 || repo.released[0] != "booking-1" {
		t.Fatalf("released = %v", repo.released)
	}
	// Release tidak mengirim outcome event.
	if len(bus.events) != 0 {
		t.Fatalf("events = %v, want none", bus.events)
	}
}

func TestHandleEvent_MalformedDropped(t *testing.T) {
	repo := &stubReserver{}
	bus := &spyBus{}
	svc := &Service{Repo: repo, Bus: bus, Log: zap.NewNop()}

	if err := svc.HandleEvent(context.Background(), kafkago.Message{Value: []byte("not json")}); err != nil {
		t.Fatalf("malformed message must ack: %v", err)
	}
	if len(repo.reserved) != 0 || len(bus.events) != 0 {
		t.Fatalf("nothing should happen for malformed input")
	}
}

func TestHandleEvent_IgnoresOtherTypes(t *testing.T) {
	repo := &stubReserver{}
	bus := &spyBus{}
	svc := &Service{Repo: repo, Bus: bus, Log: zap.NewNop()}

	msg := commandMsg(t, booking.EventPaymentProcess, "booking-1", booking.PaymentProcessPayload{})
	if err := svc.HandleEvent(context.Background(), msg); err != nil {
		t.Fatalf("foreign event must ack: %v", err)
	}
	if len(repo.reserved) != 0 {
		t.Fatalf("reserve should not run for foreign events")
	}
}
