package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-booking-saga.git/internal/booking"
)

// BookingStore is the booking-aggregate surface the orchestrator needs.
type BookingStore interface {
	CreateBookingSaga(ctx context.Context, b *booking.Booking, s *booking.SagaInstance) error
	GetBooking(ctx context.Context, id string) (*booking.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status booking.Status) error
	SetPaymentRef(ctx context.Context, id, paymentRef string) error
}

// SagaStore persists SagaInstance aggregates with optimistic concurrency.
type SagaStore interface {
	GetSaga(ctx context.Context, sagaID string) (*booking.SagaInstance, error)
	GetSagaByBooking(ctx context.Context, bookingID string) (*booking.SagaInstance, error)
	UpdateSaga(ctx context.Context, s *booking.SagaInstance) error
	ListStuck(ctx context.Context, olderThan time.Duration, limit int) ([]*booking.SagaInstance, error)
}

// Bus is the durable publish surface. Publish boleh lambat (retry+backoff)
// tapi tidak boleh silent drop: error selalu pulang ke caller.
type Bus interface {
	Publish(ctx context.Context, eventType, correlationID string, payload any) error
}

// CreateBookingRequest is the validated input of StartSaga.
type CreateBookingRequest struct {
	UserID          string               `json:"user_id"`
	HotelID         string               `json:"hotel_id"`
	RoomID          string               `json:"room_id"`
	CheckInDate     time.Time            `json:"check_in_date"`
	CheckOutDate    time.Time            `json:"check_out_date"`
	GuestCount      int                  `json:"guest_count"`
	TotalCents      int                  `json:"total_cents"`
	Currency        string               `json:"currency"`
	GuestDetails    booking.GuestDetails `json:"guest_details"`
	SpecialRequests string               `json:"special_requests"`
}

func (r CreateBookingRequest) validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: user_id required", booking.ErrValidation)
	case r.HotelID == "":
		return fmt.Errorf("%w: hotel_id required", booking.ErrValidation)
	case r.RoomID == "":
		return fmt.Errorf("%w: room_id required", booking.ErrValidation)
	case r.CheckInDate.IsZero() || r.CheckOutDate.IsZero():
		return fmt.Errorf("%w: check-in and check-out dates required", booking.ErrValidation)
	case !r.CheckOutDate.After(r.CheckInDate):
		return fmt.Errorf("%w: check-out must be after check-in", booking.ErrValidation)
	case r.GuestCount < 1:
		return fmt.Errorf("%w: guest_count must be >= 1", booking.ErrValidation)
	case r.TotalCents <= 0:
		return fmt.Errorf("%w: total_cents must be > 0", booking.ErrValidation)
	case r.GuestDetails.FirstName == "" || r.GuestDetails.LastName == "" || r.GuestDetails.Email == "":
		return fmt.Errorf("%w: guest details (first name, last name, email) required", booking.ErrValidation)
	}
	return nil
}

// Orchestrator drives a booking through the step catalog and reacts to
// collaborator outcome events. Semua mutasi SagaInstance lewat sini.
type Orchestrator struct {
	bookings BookingStore
	sagas    SagaStore
	bus      Bus
	engine   *Engine
	locks    *keyedLocks
	log      *zap.Logger
}

func NewOrchestrator(bookings BookingStore, sagas SagaStore, bus Bus, log *zap.Logger) *Orchestrator {
	o := &Orchestrator{
		bookings: bookings,
		sagas:    sagas,
		bus:      bus,
		locks:    newKeyedLocks(),
		log:      log,
	}
	o.engine = &Engine{bookings: bookings, sagas: sagas, bus: bus, log: log}
	return o
}

// StartSaga validates the request, persists Booking (pending) + SagaInstance
// (running) atomically, lalu publish command step pertama. Tidak menunggu
// konfirmasi collaborator. Publish gagal setelah persist bukan fatal: saga
// sudah durable, sweeper yang menindaklanjuti.
func (o *Orchestrator) StartSaga(ctx context.Context, req CreateBookingRequest) (bookingID, sagaID string, err error) {
	if err := req.validate(); err != nil {
		return "", "", err
	}

	now := time.Now().UTC()
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	b := &booking.Booking{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		HotelID:         req.HotelID,
		RoomID:          req.RoomID,
		CheckInDate:     req.CheckInDate,
		CheckOutDate:    req.CheckOutDate,
		GuestCount:      req.GuestCount,
		TotalCents:      req.TotalCents,
		Currency:        currency,
		Status:          booking.StatusPending,
		GuestDetails:    req.GuestDetails,
		SpecialRequests: req.SpecialRequests,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s := &booking.SagaInstance{
		SagaID:        uuid.NewString(),
		BookingID:     b.ID,
		Steps:         booking.NewSteps(),
		OverallStatus: booking.SagaRunning,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := o.bookings.CreateBookingSaga(ctx, b, s); err != nil {
		return "", "", fmt.Errorf("create booking saga: %w", err)
	}

	if err := o.publishRoomReserve(ctx, b); err != nil {
		o.log.Error("reserve_room command publish failed, sweeper will pick it up",
			zap.String("saga_id", s.SagaID),
			zap.String("booking_id", b.ID),
			zap.Error(err),
		)
	}

	o.log.Info("saga started",
		zap.String("saga_id", s.SagaID),
		zap.String("booking_id", b.ID),
	)
	return b.ID, s.SagaID, nil
}

// GetSagaState returns a read-only snapshot of the saga.
func (o *Orchestrator) GetSagaState(ctx context.Context, sagaID string) (*booking.SagaInstance, error) {
	return o.sagas.GetSaga(ctx, sagaID)
}

// HandleOutcome adalah satu-satunya pintu masuk event collaborator.
// Return nil = ack (termasuk event stale/unknown yang memang di-drop);
// error = nack, transport mengulang delivery.
func (o *Orchestrator) HandleOutcome(ctx context.Context, env booking.Envelope) error {
	if err := env.Validate(); err != nil {
		o.log.Warn("malformed event dropped", zap.String("event_type", env.EventType), zap.Error(err))
		return nil
	}
	outcome, ok := booking.OutcomeFor(env.EventType)
	if !ok {
		o.log.Debug("non-outcome event ignored", zap.String("event_type", env.EventType))
		return nil
	}

	s, err := o.resolveSaga(ctx, env.CorrelationID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			// Saga tidak dikenal: event basi atau milik instance lain. Ack.
			o.log.Info("event for unknown saga dropped",
				zap.String("event_type", env.EventType),
				zap.String("correlation_id", env.CorrelationID),
			)
			return nil
		}
		return err
	}

	unlock := o.locks.Lock(s.SagaID)
	defer unlock()

	// Re-read di bawah lock; copy hasil resolve bisa sudah basi.
	s, err = o.sagas.GetSaga(ctx, s.SagaID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return nil
		}
		return err
	}

	if s.OverallStatus == booking.SagaCompensating {
		// Pass kompensasi sebelumnya terputus di tengah (infra error).
		// Event apa pun untuk saga ini jadi pemicu resume.
		o.log.Warn("resuming interrupted compensation",
			zap.String("saga_id", s.SagaID),
			zap.String("event_type", env.EventType),
		)
		return o.engine.Compensate(ctx, s)
	}
	if s.OverallStatus != booking.SagaRunning {
		o.log.Debug("event for settled saga ignored",
			zap.String("saga_id", s.SagaID),
			zap.String("event_type", env.EventType),
		)
		return nil
	}
	active := s.ActiveStep()
	if active == nil || active.Name != outcome.StepName || active.Status != booking.StepPending {
		// Duplicate delivery / event untuk step yang bukan head: no-op.
		o.log.Debug("stale outcome ignored",
			zap.String("saga_id", s.SagaID),
			zap.String("event_type", env.EventType),
			zap.String("step", outcome.StepName),
		)
		return nil
	}

	if outcome.Success {
		return o.applySuccess(ctx, s, active, env)
	}
	return o.applyFailure(ctx, s, active, env)
}

func (o *Orchestrator) resolveSaga(ctx context.Context, correlationID string) (*booking.SagaInstance, error) {
	s, err := o.sagas.GetSagaByBooking(ctx, correlationID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, booking.ErrNotFound) {
		return nil, err
	}
	// correlationId boleh juga saga_id.
	return o.sagas.GetSaga(ctx, correlationID)
}

func (o *Orchestrator) applySuccess(ctx context.Context, s *booking.SagaInstance, step *booking.SagaStep, env booking.Envelope) error {
	now := time.Now().UTC()
	step.Status = booking.StepCompleted
	step.CompletedAt = &now
	step.ResultData = env.Payload

	if env.EventType == booking.EventPaymentCompleted {
		var p booking.PaymentCompletedPayload
		if err := unmarshalPayload(env.Payload, &p); err == nil && p.PaymentID != "" {
			if err := o.bookings.SetPaymentRef(ctx, s.BookingID, p.PaymentID); err != nil {
				return fmt.Errorf("set payment ref: %w", err)
			}
		}
	}

	if err := o.saveWithRetry(ctx, s); err != nil {
		return err
	}

	o.log.Info("step completed",
		zap.String("saga_id", s.SagaID),
		zap.String("step", step.Name),
	)

	return o.advance(ctx, s)
}

func (o *Orchestrator) applyFailure(ctx context.Context, s *booking.SagaInstance, step *booking.SagaStep, env booking.Envelope) error {
	step.Status = booking.StepFailed
	step.Error = failureReason(env)
	s.OverallStatus = booking.SagaCompensating

	if err := o.saveWithRetry(ctx, s); err != nil {
		return err
	}

	o.log.Warn("step failed, compensating",
		zap.String("saga_id", s.SagaID),
		zap.String("step", step.Name),
		zap.String("reason", step.Error),
	)

	return o.engine.Compensate(ctx, s)
}

// advance mengeksekusi step aktif berikutnya sampai ketemu step yang harus
// menunggu event eksternal (atau saga selesai). Persist selalu duluan
// sebelum command keluar.
func (o *Orchestrator) advance(ctx context.Context, s *booking.SagaInstance) error {
	for {
		active := s.ActiveStep()
		if active == nil {
			return nil
		}

		switch active.Name {
		case booking.StepProcessPayment:
			b, err := o.bookings.GetBooking(ctx, s.BookingID)
			if err != nil {
				return err
			}
			if err := o.bus.Publish(ctx, booking.EventPaymentProcess, s.BookingID, booking.PaymentProcessPayload{
				BookingID:     b.ID,
				UserID:        b.UserID,
				AmountCents:   b.TotalCents,
				Currency:      b.Currency,
				PaymentMethod: "credit_card",
			}); err != nil {
				// Saga durable dengan step masih pending; timeout sweeper
				// yang memutuskan nasibnya kalau bus terus gagal.
				o.log.Error("payment.process publish failed",
					zap.String("saga_id", s.SagaID), zap.Error(err))
			}
			return nil

		case booking.StepConfirmBooking:
			b, err := o.bookings.GetBooking(ctx, s.BookingID)
			if err != nil {
				return err
			}
			if err := o.bookings.UpdateBookingStatus(ctx, b.ID, booking.StatusConfirmed); err != nil {
				return fmt.Errorf("confirm booking: %w", err)
			}
			now := time.Now().UTC()
			active.Status = booking.StepCompleted
			active.CompletedAt = &now
			if err := o.saveWithRetry(ctx, s); err != nil {
				return err
			}
			if err := o.bus.Publish(ctx, booking.EventBookingConfirmed, b.ID, booking.BookingConfirmedPayload{
				BookingID:    b.ID,
				UserID:       b.UserID,
				UserEmail:    b.GuestDetails.Email,
				FirstName:    b.GuestDetails.FirstName,
				HotelID:      b.HotelID,
				RoomID:       b.RoomID,
				CheckInDate:  b.CheckInDate,
				CheckOutDate: b.CheckOutDate,
				TotalCents:   b.TotalCents,
			}); err != nil {
				// Informational; konfirmasi sudah durable di booking row.
				o.log.Warn("booking.confirmed publish failed",
					zap.String("booking_id", b.ID), zap.Error(err))
			}
			o.log.Info("step completed",
				zap.String("saga_id", s.SagaID),
				zap.String("step", booking.StepConfirmBooking),
			)
			continue

		case booking.StepSendNotification:
			b, err := o.bookings.GetBooking(ctx, s.BookingID)
			if err != nil {
				return err
			}
			// Fire-and-forget: step dianggap selesai begitu bus menerima.
			if err := o.bus.Publish(ctx, booking.EventNotificationSend, b.ID, booking.NotificationSendPayload{
				UserID:    b.UserID,
				Type:      "email",
				Recipient: b.GuestDetails.Email,
				Subject:   "Booking Confirmation",
				Content:   fmt.Sprintf("Your booking has been confirmed. Booking ID: %s", b.ID),
				TemplateData: map[string]string{
					"booking_id":     b.ID,
					"first_name":     b.GuestDetails.FirstName,
					"check_in_date":  b.CheckInDate.Format(time.RFC3339),
					"check_out_date": b.CheckOutDate.Format(time.RFC3339),
				},
			}); err != nil {
				o.log.Error("notification.send publish failed",
					zap.String("saga_id", s.SagaID), zap.Error(err))
				return nil
			}
			now := time.Now().UTC()
			active.Status = booking.StepCompleted
			active.CompletedAt = &now
			s.OverallStatus = booking.SagaCompleted
			if err := o.saveWithRetry(ctx, s); err != nil {
				return err
			}
			o.log.Info("saga completed", zap.String("saga_id", s.SagaID))
			return nil

		default:
			// reserve_room cuma pernah jadi step aktif sebelum event pertama;
			// sampai sini berarti ada step baru yang belum di-handle.
			return fmt.Errorf("no executor for step %s", active.Name)
		}
	}
}

// saveWithRetry does one CAS write dan satu kali re-read+retry kalau kalah
// versi. Konflik kedua dianggap transient dan di-nack.
func (o *Orchestrator) saveWithRetry(ctx context.Context, s *booking.SagaInstance) error {
	err := o.sagas.UpdateSaga(ctx, s)
	if err == nil {
		return nil
	}
	if !errors.Is(err, booking.ErrVersionConflict) {
		return err
	}

	fresh, rerr := o.sagas.GetSaga(ctx, s.SagaID)
	if rerr != nil {
		return rerr
	}
	// Bawa mutasi step kita ke atas state terbaru.
	for i := range s.Steps {
		if fresh.Steps[i].Status == booking.StepPending {
			fresh.Steps[i] = s.Steps[i]
		}
	}
	fresh.OverallStatus = s.OverallStatus
	if err := o.sagas.UpdateSaga(ctx, fresh); err != nil {
		return err
	}
	*s = *fresh
	return nil
}

func (o *Orchestrator) publishRoomReserve(ctx context.Context, b *booking.Booking) error {
	return o.bus.Publish(ctx, booking.EventRoomReserve, b.ID, booking.RoomReservePayload{
		RoomID:       b.RoomID,
		BookingID:    b.ID,
		CheckInDate:  b.CheckInDate,
		CheckOutDate: b.CheckOutDate,
	})
}

func failureReason(env booking.Envelope) string {
	var p struct {
		Reason string `json:"reason"`
	}
	if err := unmarshalPayload(env.Payload, &p); err == nil && p.Reason != "" {
		return p.Reason
	}
	return env.EventType
}
