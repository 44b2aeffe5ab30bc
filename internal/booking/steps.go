package booking

// Step catalog, urutan tetap sejak saga dibuat.
const (
	StepReserveRoom      = "reserve_room"
	StepProcessPayment   = "process_payment"
	StepConfirmBooking   = "confirm_booking"
	StepSendNotification = "send_notification"
)

// StepCatalog returns the ordered step names for a booking saga.
func StepCatalog() []string {
	return []string{StepReserveRoom, StepProcessPayment, StepConfirmBooking, StepSendNotification}
}

// NewSteps builds the fixed-length pending step list for a fresh saga.
func NewSteps() []SagaStep {
	catalog := StepCatalog()
	steps := make([]SagaStep, len(catalog))
	for i, name := range catalog {
		steps[i] = SagaStep{Name: name, Status: StepPending}
	}
	return steps
}

// Outcome maps an inbound event type onto the step it reports on.
type Outcome struct {
	StepName string
	Success  bool
}

var outcomeByEvent = map[string]Outcome{
	EventRoomReserved:          {StepName: StepReserveRoom, Success: true},
	EventRoomReservationFailed: {StepName: StepReserveRoom, Success: false},
	EventPaymentCompleted:      {StepName: StepProcessPayment, Success: true},
	EventPaymentFailed:         {StepName: StepProcessPayment, Success: false},
}

// OutcomeFor resolves an event type to a step outcome. ok=false berarti
// event bukan outcome saga (di-ack dan diabaikan).
func OutcomeFor(eventType string) (Outcome, bool) {
	o, ok := outcomeByEvent[eventType]
	return o, ok
}
