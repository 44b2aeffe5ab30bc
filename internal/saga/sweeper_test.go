package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-booking-saga.git/internal/booking"
)

func TestSweep_TimesOutStuckSaga(t *testing.T) {
	store := newMemStore()
	bus := &spyBus{}
	o := NewOrchestrator(store, store, bus, zap.NewNop())
	sw := NewSweeper(o, 2*time.Minute, 30*time.Second, 100, zap.NewNop())
	ctx := context.Background()

	bookingID, sagaID := startSaga(t, o, store)

	// Step pertama selesai, lalu payment tidak pernah menjawab.
	if err := o.HandleOutcome(ctx, outcomeEnv(t, booking.EventRoomReserved, bookingID, booking.RoomReservedPayload{
		BookingID: bookingID, RoomID: "room-1",
	})); err != nil {
		t.Fatalf("room.reserved: %v", err)
	}
	store.setUpdatedAt(sagaID, time.Now().UTC().Add(-10*time.Minute))

	if err := sw.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	s, _ := store.GetSaga(ctx, sagaID)
	if s.OverallStatus != booking.SagaFailed {
		t.Fatalf("saga status = %s, want failed", s.OverallStatus)
	}
	if st := s.Step(booking.StepProcessPayment); st.Status != booking.StepFailed || st.Error != "timeout" {
		t.Fatalf("process_payment = %+v, want failed/timeout", st)
	}
	if st := s.Step(booking.StepReserveRoom); st.Status != booking.StepCompensated {
		t.Fatalf("reserve_room status = %s, want compensated", st.Status)
	}
	if got := bus.count(booking.EventRoomRelease); got != 1 {
		t.Fatalf("room.release published %d times, want 1", got)
	}

	b, _ := store.GetBooking(ctx, bookingID)
	if b.Status != booking.StatusFailed {
		t.Fatalf("booking status = %s, want failed", b.Status)
	}
}

func TestSweep_SkipsFreshSagas(t *testing.T) {
	store := newMemStore()
	bus := &spyBus{}
	o := NewOrchestrator(store, store, bus, zap.NewNop())
	sw := NewSweeper(o, 2*time.Minute, 30*time.Second, 100, zap.NewNop())
	ctx := context.Background()

	_, sagaID := startSaga(t, o, store)

	if err := sw.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	s, _ := store.GetSaga(ctx, sagaID)
	if s.OverallStatus != booking.SagaRunning {
		t.Fatalf("fresh saga touched: status = %s", s.OverallStatus)
	}
}

func TestSweep_SkipsSagaThatAdvancedAfterListing(t *testing.T) {
	store := newMemStore()
	bus := &spyBus{}
	o := NewOrchestrator(store, store, bus, zap.NewNop())
	sw := NewSweeper(o, 2*time.Minute, 30*time.Second, 100, zap.NewNop())
	ctx := context.Background()

	bookingID, sagaID := startSaga(t, o, store)
	store.setUpdatedAt(sagaID, time.Now().UTC().Add(-10*time.Minute))

	// Saga maju persis sebelum sweepOne mengambil lock: re-read di bawah lock
	// melihat updated_at baru dan mundur.
	if err := o.HandleOutcome(ctx, outcomeEnv(t, booking.EventRoomReserved, bookingID, booking.RoomReservedPayload{
		BookingID: bookingID, RoomID: "room-1",
	})); err != nil {
		t.Fatalf("room.reserved: %v", err)
	}

	if err := sw.sweepOne(ctx, sagaID); err != nil {
		t.Fatalf("sweepOne: %v", err)
	}

	s, _ := store.GetSaga(ctx, sagaID)
	if s.OverallStatus != booking.SagaRunning {
		t.Fatalf("saga status = %s, want running", s.OverallStatus)
	}
}

func TestSweep_ResumesInterruptedCompensation(t *testing.T) {
	store := newMemStore()
	bus := &spyBus{}
	o := NewOrchestrator(store, store, bus, zap.NewNop())
	sw := NewSweeper(o, 2*time.Minute, 30*time.Second, 100, zap.NewNop())
	ctx := context.Background()

	bookingID, sagaID := startSaga(t, o, store)

	if err := o.HandleOutcome(ctx, outcomeEnv(t, booking.EventRoomReserved, bookingID, booking.RoomReservedPayload{
		BookingID: bookingID, RoomID: "room-1",
	})); err != nil {
		t.Fatalf("room.reserved: %v", err)
	}

	// Pass kompensasi pertama terputus: compensating durable, lalu infra error.
	store.mu.Lock()
	store.failGetBooking = errors.New("db down")
	store.mu.Unlock()
	if err := o.HandleOutcome(ctx, outcomeEnv(t, booking.EventPaymentFailed, bookingID, booking.PaymentFailedPayload{
		BookingID: bookingID, Reason: "CARD_DECLINED",
	})); err == nil {
		t.Fatalf("interrupted compensation must nack")
	}
	store.setUpdatedAt(sagaID, time.Now().UTC().Add(-10*time.Minute))

	if err := sw.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	s, _ := store.GetSaga(ctx, sagaID)
	if s.OverallStatus != booking.SagaFailed {
		t.Fatalf("saga status = %s, want failed", s.OverallStatus)
	}
	if st := s.Step(booking.StepReserveRoom); st.Status != booking.StepCompensated {
		t.Fatalf("reserve_room status = %s, want compensated", st.Status)
	}
	if got := bus.count(booking.EventRoomRelease); got != 1 {
		t.Fatalf("room.release published %d times, want 1", got)
	}
	b, _ := store.GetBooking(ctx, bookingID)
	if b.Status != booking.StatusFailed {
		t.Fatalf("booking status = %s, want failed", b.Status)
	}
}

func TestSweep_CompensatesInReverseOrder(t *testing.T) {
	store := newMemStore()
	bus := &spyBus{}
	o := NewOrchestrator(store, store, bus, zap.NewNop())
	sw := NewSweeper(o, 2*time.Minute, 30*time.Second, 100, zap.NewNop())
	ctx := context.Background()

	bookingID, sagaID := startSaga(t, o, store)

	if err := o.HandleOutcome(ctx, outcomeEnv(t, booking.EventRoomReserved, bookingID, booking.RoomReservedPayload{
		BookingID: bookingID, RoomID: "room-1",
	})); err != nil {
		t.Fatalf("room.reserved: %v", err)
	}

	// payment.completed tercatat (dua step completed, paymentRef tersimpan),
	// tapi advance ke confirm gagal di infra. Saga tetap running dan dirawat
	// sweeper.
	store.mu.Lock()
	store.failGetBooking = errors.New("db down")
	store.mu.Unlock()
	if err := o.HandleOutcome(ctx, outcomeEnv(t, booking.EventPaymentCompleted, bookingID, booking.PaymentCompletedPayload{
		BookingID: bookingID, PaymentID: "pay-1", TransactionID: "txn-1",
	})); err == nil {
		t.Fatalf("advance with infra error must nack")
	}
	store.setUpdatedAt(sagaID, time.Now().UTC().Add(-10*time.Minute))

	if err := sw.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	s, _ := store.GetSaga(ctx, sagaID)
	if s.OverallStatus != booking.SagaFailed {
		t.Fatalf("saga status = %s, want failed", s.OverallStatus)
	}
	if st := s.Step(booking.StepProcessPayment); st.Status != booking.StepCompensated {
		t.Fatalf("process_payment status = %s, want compensated", st.Status)
	}
	if st := s.Step(booking.StepReserveRoom); st.Status != booking.StepCompensated {
		t.Fatalf("reserve_room status = %s, want compensated", st.Status)
	}

	// Urutan mundur: refund dulu, baru release.
	bus.mu.Lock()
	refundIdx, releaseIdx := -1, -1
	for i, ev := range bus.events {
		switch ev.eventType {
		case booking.EventPaymentRefund:
			refundIdx = i
			p, ok := ev.payload.(booking.PaymentRefundPayload)
			if !ok || p.PaymentID != "pay-1" {
				t.Errorf("refund payload = %+v, want PaymentID pay-1", ev.payload)
			}
		case booking.EventRoomRelease:
			releaseIdx = i
		}
	}
	bus.mu.Unlock()
	if refundIdx == -1 || releaseIdx == -1 {
		t.Fatalf("missing compensation events: refund=%d release=%d", refundIdx, releaseIdx)
	}
	if refundIdx > releaseIdx {
		t.Fatalf("payment.refund at %d after room.release at %d, want reverse completion order", refundIdx, releaseIdx)
	}
	if got := bus.count(booking.EventBookingCancelled); got != 0 {
		t.Fatalf("booking.cancelled published %d times, want 0 for unconfirmed booking", got)
	}
}

func TestCompensate_RecordsActionFailureButFinishes(t *testing.T) {
	store := newMemStore()
	bus := &spyBus{failOn: map[string]error{booking.EventRoomRelease: errors.New("broker down")}}
	o := NewOrchestrator(store, store, bus, zap.NewNop())
	ctx := context.Background()

	bookingID, sagaID := startSaga(t, o, store)

	if err := o.HandleOutcome(ctx, outcomeEnv(t, booking.EventRoomReserved, bookingID, booking.RoomReservedPayload{
		BookingID: bookingID, RoomID: "room-1",
	})); err != nil {
		t.Fatalf("room.reserved: %v", err)
	}
	if err := o.HandleOutcome(ctx, outcomeEnv(t, booking.EventPaymentFailed, bookingID, booking.PaymentFailedPayload{
		BookingID: bookingID, Reason: "CARD_DECLINED",
	})); err != nil {
		t.Fatalf("payment.failed: %v", err)
	}

	s, _ := store.GetSaga(ctx, sagaID)
	if s.OverallStatus != booking.SagaFailed {
		t.Fatalf("saga status = %s, want failed", s.OverallStatus)
	}
	st := s.Step(booking.StepReserveRoom)
	if st.Status != booking.StepCompensated {
		t.Fatalf("reserve_room status = %s, want compensated even on action error", st.Status)
	}
	if st.Error == "" {
		t.Fatalf("failed compensation action must be recorded on the step")
	}
}

func TestCompensate_RequiresCompensatingStatus(t *testing.T) {
	store := newMemStore()
	bus := &spyBus{}
	e := NewEngine(store, store, bus, zap.NewNop())

	s := &booking.SagaInstance{
		SagaID:        "s1",
		BookingID:     "b1",
		Steps:         booking.NewSteps(),
		OverallStatus: booking.SagaRunning,
		Version:       1,
	}
	if err := e.Compensate(context.Background(), s); err == nil {
		t.Fatalf("expected error for non-compensating saga")
	}
}
