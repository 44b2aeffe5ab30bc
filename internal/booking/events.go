package booking

import (
	"encoding/json"
	"errors"
	"time"
)

const (
	// Forward commands (orchestrator -> collaborators).
	EventRoomReserve      = "room.reserve"
	EventPaymentProcess   = "payment.process"
	EventNotificationSend = "notification.send"

	// Outcome events (collaborators -> orchestrator).
	EventRoomReserved          = "room.reserved"
	EventRoomReservationFailed = "room.reservation_failed"
	EventPaymentCompleted      = "payment.completed"
	EventPaymentFailed         = "payment.failed"

	// Compensation commands.
	EventRoomRelease   = "room.release"
	EventPaymentRefund = "payment.refund"

	// Informational.
	EventBookingConfirmed    = "booking.confirmed"
	EventBookingCancelled    = "booking.cancelled"
	EventPaymentRefunded     = "payment.refunded"
	EventPaymentRefundFailed = "payment.refund_failed"
	EventNotificationSent    = "notification.sent"
)

var ErrMissingCorrelation = errors.New("event missing correlation id")

// Envelope membungkus semua event di wire. CorrelationID wajib untuk event
// yang menyentuh saga; tanpa itu event dianggap malformed dan di-drop.
type Envelope struct {
	EventID       string          `json:"event_id"`       // uuid
	EventType     string          `json:"event_type"`     // salah satu const di atas
	EventVersion  int             `json:"event_version"`  // 1
	OccurredAt    time.Time       `json:"occurred_at"`    // RFC3339
	Producer      string          `json:"producer"`       // e.g. "booking-service"
	CorrelationID string          `json:"correlation_id"` // booking_id (atau saga_id)
	Payload       json.RawMessage `json:"payload"`
}

// Validate checks the envelope carries enough to route it.
func (e Envelope) Validate() error {
	if e.CorrelationID == "" {
		return ErrMissingCorrelation
	}
	if e.EventType == "" {
		return errors.New("event missing type")
	}
	return nil
}

// ---- Payload tipe per event ----

type RoomReservePayload struct {
	RoomID       string    `json:"room_id"`
	BookingID    string    `json:"booking_id"`
	CheckInDate  time.Time `json:"check_in_date"`
	CheckOutDate time.Time `json:"check_out_date"`
}

type RoomReservedPayload struct {
	BookingID          string `json:"booking_id"`
	RoomID             string `json:"room_id"`
	PricePerNightCents int    `json:"price_per_night_cents"`
}

type RoomReservationFailedPayload struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"` // e.g. NO_AVAILABILITY
}

type RoomReleasePayload struct {
	RoomID    string `json:"room_id"`
	BookingID string `json:"booking_id"`
}

type PaymentProcessPayload struct {
	BookingID      string          `json:"booking_id"`
	UserID         string          `json:"user_id"`
	AmountCents    int             `json:"amount_cents"`
	Currency       string          `json:"currency"`
	PaymentMethod  string          `json:"payment_method"`
	PaymentDetails json.RawMessage `json:"payment_details,omitempty"`
}

type PaymentCompletedPayload struct {
	BookingID     string `json:"booking_id"`
	PaymentID     string `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
}

type PaymentFailedPayload struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"` // e.g. CARD_DECLINED
}

type PaymentRefundPayload struct {
	PaymentID         string `json:"payment_id"`
	RefundAmountCents int    `json:"refund_amount_cents"`
}

type NotificationSendPayload struct {
	UserID       string            `json:"user_id"`
	Type         string            `json:"type"` // "email"
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject"`
	Content      string            `json:"content"`
	TemplateData map[string]string `json:"template_data,omitempty"`
}

type BookingConfirmedPayload struct {
	BookingID    string    `json:"booking_id"`
	UserID       string    `json:"user_id"`
	UserEmail    string    `json:"user_email"`
	FirstName    string    `json:"first_name"`
	HotelID      string    `json:"hotel_id"`
	RoomID       string    `json:"room_id"`
	CheckInDate  time.Time `json:"check_in_date"`
	CheckOutDate time.Time `json:"check_out_date"`
	TotalCents   int       `json:"total_cents"`
}

type BookingCancelledPayload struct {
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
