package payment

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
	byID      map[string]*Payment
	inserted  []Payment
	insertErr error
}

func newStubStore() *stubStore {
	return &stubStore{byID: make(map[string]*Payment)}
}

func (s *stubStore) Insert(ctx context.Context, p Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	cp := p
	s.byID[p.ID] = &cp
	s.inserted = append(s.inserted, p)
	return nil
}

func (s *stubStore) GetCompletedByBooking(ctx context.Context, bookingID string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byID {
		if p.BookingID == bookingID && p.Status == "completed" {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (s *stubStore) Get(ctx context.Context, id string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *stubStore) MarkRefunded(ctx context.Context, id string, refundCents int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.Status = "refunded"
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

func approveAll(ctx context.Context, amountCents int, currency string) (string, error) {
	return "txn-test", nil
}

func declineAll(ctx context.Context, amountCents int, currency string) (string, error) {
	return "", ErrDeclined
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

func processMsg(t *testing.T) kafkago.Message {
	return commandMsg(t, booking.EventPaymentProcess, "booking-1", booking.PaymentProcessPayload{
		BookingID:   "booking-1",
		UserID:      "user-1",
		AmountCents: 45000,
		Currency:    "USD",
	})
}

func TestHandleProcess_Approved(t *testing.T) {
	store := newStubStore()
	bus := &spyBus{}
	svc := &Service{Repo: store, Bus: bus, Gateway: approveAll, Log: zap.NewNop()}

	if err := svc.HandleEvent(context.Background(), processMsg(t)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if len(store.inserted) != 1 || store.inserted[0].Status != "completed" {
		t.Fatalf("inserted = %+v", store.inserted)
	}
	if len(bus.events) != 1 || bus.events[0] != booking.EventPaymentCompleted {
		t.Fatalf("events = %v, want [payment.completed]", bus.events)
	}
	p, ok := bus.last.(booking.PaymentCompletedPayload)
	if !ok || p.TransactionID != "txn-test" || p.PaymentID == "" {
		t.Fatalf("payload = %+v", bus.last)
	}
}

func TestHandleProcess_Declined(t *testing.T) {
	store := newStubStore()
	bus := &spyBus{}
	svc := &Service{Repo: store, Bus: bus, Gateway: declineAll, Log: zap.NewNop()}

	if err := svc.HandleEvent(context.Background(), processMsg(t)); err != nil {
		t.Fatalf("decline must ack: %v", err)
	}

	if len(store.inserted) != 1 || store.inserted[0].Status != "failed" {
		t.Fatalf("inserted = %+v", store.inserted)
	}
	if len(bus.events) != 1 || bus.events[0] != booking.EventPaymentFailed {
		t.Fatalf("events = %v, want [payment.failed]", bus.events)
	}
	p, ok := bus.last.(booking.PaymentFailedPayload)
	if !ok || p.Reason != "CARD_DECLINED" {
		t.Fatalf("payload = %+v", bus.last)
	}
}

func TestHandleProcess_IdempotentShortCircuit(t *testing.T) {
	store := newStubStore()
	bus := &spyBus{}
	svc := &Service{Repo: store, Bus: bus, Gateway: approveAll, Log: zap.NewNop()}
	ctx := context.Background()

	if err := svc.HandleEvent(ctx, processMsg(t)); err != nil {
		t.Fatalf("first: %v", err)
	}
	// Redelivery dengan event_id baru: dedup tidak nolong, state yang jaga.
	second := commandMsg(t, booking.EventPaymentProcess, "booking-1", booking.PaymentProcessPayload{
		BookingID: "booking-1", UserID: "user-1", AmountCents: 45000, Currency: "USD",
	})
	if err := svc.HandleEvent(ctx, second); err != nil {
		t.Fatalf("second: %v", err)
	}

	if len(store.inserted) != 1 {
		t.Fatalf("charged %d times, want 1", len(store.inserted))
	}
	// Dua publish payment.completed dengan payment_id yang sama: aman,
	// orchestrator men-dedup by step status.
	if len(bus.events) != 2 {
		t.Fatalf("events = %v", bus.events)
	}
	p := bus.last.(booking.PaymentCompletedPayload)
	if p.PaymentID != store.inserted[0].ID {
		t.Fatalf("short-circuit must reuse original payment id")
	}
}

func TestHandleProcess_InfraErrorNacks(t *testing.T) {
	store := newStubStore()
	store.insertErr = errors.New("db down")
	bus := &spyBus{}
	svc := &Service{Repo: store, Bus: bus, Gateway: approveAll, Log: zap.NewNop()}

	if err := svc.HandleEvent(context.Background(), processMsg(t)); err == nil {
		t.Fatalf("infra error must nack")
	}
	if len(bus.events) != 0 {
		t.Fatalf("nothing should be published, got %v", bus.events)
	}
}

func TestHandleRefund(t *testing.T) {
	store := newStubStore()
	store.byID["pay-1"] = &Payment{ID: "pay-1", BookingID: "booking-1", Status: "completed"}
	bus := &spyBus{}
	svc := &Service{Repo: store, Bus: bus, Gateway: approveAll, Log: zap.NewNop()}

	msg := commandMsg(t, booking.EventPaymentRefund, "booking-1", booking.PaymentRefundPayload{
		PaymentID: "pay-1", RefundAmountCents: 45000,
	})
	if err := svc.HandleEvent(context.Background(), msg); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if store.byID["pay-1"].Status != "refunded" {
		t.Fatalf("payment status = %s, want refunded", store.byID["pay-1"].Status)
	}
	if len(bus.events) != 1 || bus.events[0] != booking.EventPaymentRefunded {
		t.Fatalf("events = %v, want [payment.refunded]", bus.events)
	}
}

func TestHandleRefund_UnknownPayment(t *testing.T) {
	store := newStubStore()
	bus := &spyBus{}
	svc := &Service{Repo: store, Bus: bus, Gateway: approveAll, Log: zap.NewNop()}

	msg := commandMsg(t, booking.EventPaymentRefund, "booking-1", booking.PaymentRefundPayload{
		PaymentID: "nope", RefundAmountCents: 45000,
	})
	if err := svc.HandleEvent(context.Background(), msg); err != nil {
		t.Fatalf("unknown payment must ack with refund_failed: %v", err)
	}
	if len(bus.events) != 1 || bus.events[0] != booking.EventPaymentRefundFailed {
		t.Fatalf("events = %v, want [payment.refund_failed]", bus.events)
	}
}
