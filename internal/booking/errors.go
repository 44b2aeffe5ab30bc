package booking

import "errors"

var (
	// ErrValidation: input StartSaga tidak lengkap; ditolak sinkron, saga
	// tidak pernah dibuat.
	ErrValidation = errors.New("invalid booking request")

	// ErrNotFound: booking/saga tidak dikenal.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict: CAS versi saga kalah melawan writer lain.
	// Transient: caller re-read lalu retry sekali.
	ErrVersionConflict = errors.New("saga version conflict")

	// ErrNotCancellable: cancel hanya untuk booking berstatus confirmed.
	ErrNotCancellable = errors.New("booking not cancellable")
)
