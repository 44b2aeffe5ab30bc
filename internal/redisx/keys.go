package redisx

import "time"

const (
	// Idempotency create booking: idem:booking:create:{request_id} -> booking_id
	KeyIdemBookingCreate = "idem:booking:create:%s"

	// Cache status booking: booking_status:{booking_id} -> {"status": "..."}
	KeyBookingStatus = "booking_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
