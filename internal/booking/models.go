package booking

import (
	"encoding/json"
	"time"
)

type GuestDetails struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

type Booking struct {
	ID              string       `json:"id"`
	UserID          string       `json:"user_id"`
	HotelID         string       `json:"hotel_id"`
	RoomID          string       `json:"room_id"`
	CheckInDate     time.Time    `json:"check_in_date"`
	CheckOutDate    time.Time    `json:"check_out_date"`
	GuestCount      int          `json:"guest_count"`
	TotalCents      int          `json:"total_cents"`
	Currency        string       `json:"currency"`
	Status          Status       `json:"status"` // lihat status.go
	PaymentRef      string       `json:"payment_ref,omitempty"`
	GuestDetails    GuestDetails `json:"guest_details"`
	SpecialRequests string       `json:"special_requests,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// SagaStep is one unit of the fixed step catalog. ResultData keeps whatever
// payload the collaborator reported back (price, payment ref, ...).
type SagaStep struct {
	Name        string          `json:"name"`
	Status      StepStatus      `json:"status"`
	ResultData  json.RawMessage `json:"result_data,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// SagaInstance is the aggregate the orchestrator owns exclusively. Steps
// length is fixed for the whole lifetime; Version backs optimistic CAS on
// every write.
type SagaInstance struct {
	SagaID        string     `json:"saga_id"`
	BookingID     string     `json:"booking_id"`
	Steps         []SagaStep `json:"steps"`
	OverallStatus SagaStatus `json:"overall_status"`
	Version       int64      `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ActiveStep returns the head of the pending sequence, or nil when no step
// is pending (saga finished or mid-compensation).
func (s *SagaInstance) ActiveStep() *SagaStep {
	for i := range s.Steps {
		switch s.Steps[i].Status {
		case StepPending:
			return &s.Steps[i]
		case StepCompleted:
			continue
		default:
			// failed/compensated: forward progress sudah berhenti.
			return nil
		}
	}
	return nil
}

// Step looks a step up by name.
func (s *SagaInstance) Step(name string) *SagaStep {
	for i := range s.Steps {
		if s.Steps[i].Name == name {
			return &s.Steps[i]
		}
	}
	return nil
}

// AllCompleted reports whether every step finished successfully.
func (s *SagaInstance) AllCompleted() bool {
	for i := range s.Steps {
		if s.Steps[i].Status != StepCompleted {
			return false
		}
	}
	return true
}
