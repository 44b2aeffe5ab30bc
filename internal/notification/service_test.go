package notification

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

type stubStore struct {
	mu        sync.Mutex
	inserted  []Notification
	insertErr error
}

func (s *stubStore) Insert(ctx context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, n)
	return nil
}

type spyBus struct {
	mu     sync.Mutex
	events []string
}

func (b *spyBus) Publish(ctx context.Context, eventType, correlationID string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
	return nil
}

func sendMsg(t *testing.T) kafkago.Message {
	t.Helper()
	raw, err := json.Marshal(booking.NotificationSendPayload{
		UserID:    "user-1",
		Type:      "email",
		Recipient: "ana@example.com",
		Subject:   "Booking Confirmation",
		Content:   "Your booking has been confirmed.",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env := booking.Envelope{
		EventID:       "evt-1",
		EventType:     booking.EventNotificationSend,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      "test",
		CorrelationID: "booking-1",
		Payload:       raw,
	}
	val, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return kafkago.Message{Value: val}
}

func TestHandleEvent_RecordsAndPublishesSent(t *testing.T) {
	store := &stubStore{}
	bus := &spyBus{}
	svc := &Service{Repo: store, Bus: bus, Log: zap.NewNop()}

	if err := svc.HandleEvent(context.Background(), sendMsg(t)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d notifications, want 1", len(store.inserted))
	}
	n := store.inserted[0]
	if n.Recipient != "ana@example.com" || n.Status != "sent" {
		t.Fatalf("notification = %+v", n)
	}
	if len(bus.events) != 1 || bus.events[0] != booking.EventNotificationSent {
		t.Fatalf("events = %v, want [notification.sent]", bus.events)
	}
}

func TestHandleEvent_InsertErrorNacks(t *testing.T) {
	store := &stubStore{insertErr: errors.New("db down")}
	bus := &spyBus{}
	svc := &Service{Repo: store, Bus: bus, Log: zap.NewNop()}

	if err := svc.HandleEvent(context.Background(), sendMsg(t)); err == nil {
		t.Fatalf("insert failure must nack")
	}
	if len(bus.events) != 0 {
		t.Fatalf("nothing should be published, got %v", bus.events)
	}
}

func TestHandleEvent_IgnoresOtherTypes(t *testing.T) {
	store := &stubStore{}
	bus := &spyBus{}
	svc := &Service{Repo: store, Bus: bus, Log: zap.NewNop()}

	env := booking.Envelope{
		EventID:       "evt-2",
		EventType:     booking.EventRoomReserve,
		CorrelationID: "booking-1",
	}
	val, _ := json.Marshal(env)
	if err := svc.HandleEvent(context.Background(), kafkago.Message{Value: val}); err != nil {
		t.Fatalf("foreign event must ack: %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("nothing should be recorded")
	}
}
