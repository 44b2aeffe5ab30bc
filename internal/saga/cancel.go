package saga

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-booking-saga.git/internal/booking"
)

// Cancel is the post-confirmation cancel flow: bukan mutasi saga, tapi
// compensation-equivalent — release room, refund payment, kabari user.
// Hanya booking confirmed yang boleh dibatalkan.
func (o *Orchestrator) Cancel(ctx context.Context, bookingID string) error {
	unlock := o.locks.Lock(bookingID)
	defer unlock()

	b, err := o.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status == booking.StatusCancelled {
		return fmt.Errorf("%w: booking already cancelled", booking.ErrNotCancellable)
	}
	if b.Status != booking.StatusConfirmed {
		return fmt.Errorf("%w: only confirmed bookings can be cancelled", booking.ErrNotCancellable)
	}

	if err := o.bookings.UpdateBookingStatus(ctx, b.ID, booking.StatusCancelled); err != nil {
		return err
	}

	if err := o.bus.Publish(ctx, booking.EventRoomRelease, b.ID, booking.RoomReleasePayload{
		RoomID:    b.RoomID,
		BookingID: b.ID,
	}); err != nil {
		o.log.Error("room.release publish failed during cancel",
			zap.String("booking_id", b.ID), zap.Error(err))
	}

	if b.PaymentRef != "" {
		if err := o.bus.Publish(ctx, booking.EventPaymentRefund, b.ID, booking.PaymentRefundPayload{
			PaymentID:         b.PaymentRef,
			RefundAmountCents: b.TotalCents,
		}); err != nil {
			o.log.Error("payment.refund publish failed during cancel",
				zap.String("booking_id", b.ID), zap.Error(err))
		}
	}

	if err := o.bus.Publish(ctx, booking.EventBookingCancelled, b.ID, booking.BookingCancelledPayload{
		BookingID: b.ID,
		UserID:    b.UserID,
		UserEmail: b.GuestDetails.Email,
		FirstName: b.GuestDetails.FirstName,
		Reason:    "cancelled by user",
	}); err != nil {
		o.log.Warn("booking.cancelled publish failed",
			zap.String("booking_id", b.ID), zap.Error(err))
	}

	o.log.Info("booking cancelled", zap.String("booking_id", b.ID))
	return nil
}
