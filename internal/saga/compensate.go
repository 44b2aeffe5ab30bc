package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-booking-saga.git/internal/booking"
)

func unmarshalPayload(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(raw, out)
}

// Engine menjalankan reverse action untuk step yang sudah completed saat saga
// gagal. Satu pass: setiap step completed diproses dalam urutan kebalikan,
// kegagalan satu kompensasi tidak memblokir yang lain.
type Engine struct {
	bookings BookingStore
	sagas    SagaStore
	bus      Bus
	log      *zap.Logger
}

func NewEngine(bookings BookingStore, sagas SagaStore, bus Bus, log *zap.Logger) *Engine {
	return &Engine{bookings: bookings, sagas: sagas, bus: bus, log: log}
}

// Compensate expects overallStatus=compensating. Setelah semua step eligible
// diproses: saga failed, booking failed, satu notifikasi kegagalan keluar.
// Aman diulang: pass yang terputus (infra error) meninggalkan saga di
// compensating, dan re-entry men-skip step yang sudah compensated. Command
// yang mungkin terkirim dobel ditangkap downstream (release/refund idempotent).
func (e *Engine) Compensate(ctx context.Context, s *booking.SagaInstance) error {
	if s.OverallStatus != booking.SagaCompensating {
		return fmt.Errorf("saga %s not compensating (status=%s)", s.SagaID, s.OverallStatus)
	}

	b, err := e.bookings.GetBooking(ctx, s.BookingID)
	if err != nil {
		return fmt.Errorf("load booking for compensation: %w", err)
	}

	// Step selesai berurutan sesuai katalog, jadi urutan kebalikan index =
	// urutan kebalikan penyelesaian.
	for i := len(s.Steps) - 1; i >= 0; i-- {
		step := &s.Steps[i]
		if step.Status != booking.StepCompleted {
			continue
		}

		if err := e.compensateStep(ctx, step.Name, b); err != nil {
			// Tercatat untuk reconciliation; kompensasi lain tetap jalan.
			step.Error = err.Error()
			e.log.Error("compensation action failed",
				zap.String("saga_id", s.SagaID),
				zap.String("step", step.Name),
				zap.Error(err),
			)
		}
		step.Status = booking.StepCompensated
	}

	// Booking dulu, saga status terakhir. Terputus di antaranya -> saga masih
	// compensating dan pass berikutnya mengulang sampai terminal.
	if err := e.bookings.UpdateBookingStatus(ctx, b.ID, booking.StatusFailed); err != nil {
		return fmt.Errorf("mark booking failed: %w", err)
	}

	s.OverallStatus = booking.SagaFailed
	if err := e.save(ctx, s); err != nil {
		return err
	}

	// Satu-satunya notifikasi kegagalan untuk saga ini; pass kompensasi cuma
	// jalan sekali karena status sudah failed.
	if err := e.bus.Publish(ctx, booking.EventNotificationSend, b.ID, booking.NotificationSendPayload{
		UserID:    b.UserID,
		Type:      "email",
		Recipient: b.GuestDetails.Email,
		Subject:   "Booking Failed",
		Content:   fmt.Sprintf("Unfortunately your booking could not be completed. Booking ID: %s", b.ID),
		TemplateData: map[string]string{
			"booking_id": b.ID,
			"first_name": b.GuestDetails.FirstName,
		},
	}); err != nil {
		e.log.Warn("failure notification publish failed",
			zap.String("booking_id", b.ID), zap.Error(err))
	}

	e.log.Info("saga compensated",
		zap.String("saga_id", s.SagaID),
		zap.String("booking_id", b.ID),
	)
	return nil
}

func (e *Engine) compensateStep(ctx context.Context, stepName string, b *booking.Booking) error {
	switch stepName {
	case booking.StepReserveRoom:
		return e.bus.Publish(ctx, booking.EventRoomRelease, b.ID, booking.RoomReleasePayload{
			RoomID:    b.RoomID,
			BookingID: b.ID,
		})
	case booking.StepProcessPayment:
		if b.PaymentRef == "" {
			// Tidak ada payment tercatat, tidak ada yang direfund.
			return nil
		}
		return e.bus.Publish(ctx, booking.EventPaymentRefund, b.ID, booking.PaymentRefundPayload{
			PaymentID:         b.PaymentRef,
			RefundAmountCents: b.TotalCents,
		})
	case booking.StepConfirmBooking:
		// Jarang: gagal di antara confirm dan notification.
		if b.Status != booking.StatusConfirmed {
			return nil
		}
		return e.bus.Publish(ctx, booking.EventBookingCancelled, b.ID, booking.BookingCancelledPayload{
			BookingID: b.ID,
			UserID:    b.UserID,
			UserEmail: b.GuestDetails.Email,
			FirstName: b.GuestDetails.FirstName,
			Reason:    "saga failed after confirmation",
		})
	default:
		// send_notification tidak punya reverse action.
		return nil
	}
}

// save mirrors the orchestrator's single-retry CAS write.
func (e *Engine) save(ctx context.Context, s *booking.SagaInstance) error {
	err := e.sagas.UpdateSaga(ctx, s)
	if err == nil {
		return nil
	}
	if !errors.Is(err, booking.ErrVersionConflict) {
		return err
	}
	fresh, rerr := e.sagas.GetSaga(ctx, s.SagaID)
	if rerr != nil {
		return rerr
	}
	fresh.Steps = s.Steps
	fresh.OverallStatus = s.OverallStatus
	if err := e.sagas.UpdateSaga(ctx, fresh); err != nil {
		return err
	}
	*s = *fresh
	return nil
}
