package booking

// Satu topic per event type, nama topic == event type. Partition key =
// correlation id supaya event satu saga selalu urut di satu partition.
func TopicFor(eventType string) string { return eventType }

func PartitionKey(correlationID string) []byte { return []byte(correlationID) }

// OutcomeTopics are the inbound topics the orchestrator consumes.
func OutcomeTopics() []string {
	return []string{
		EventRoomReserved,
		EventRoomReservationFailed,
		EventPaymentCompleted,
		EventPaymentFailed,
	}
}
