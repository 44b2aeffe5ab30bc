package room

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrNoAvailability = errors.New("no availability")
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			hotel_id TEXT NOT NULL,
			room_number TEXT NOT NULL,
			room_type TEXT NOT NULL,
			capacity INT NOT NULL,
			price_per_night_cents INT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (hotel_id, room_number)
		)`,
		`CREATE TABLE IF NOT EXISTS room_reservations (
			booking_id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL REFERENCES rooms(id),
			check_in_date TIMESTAMPTZ NOT NULL,
			check_out_date TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_room ON room_reservations(room_id, status)`,
	}
	for _, stmt := range statements {
		if _, err := r.DB.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Reserve: lock kamar (FOR UPDATE) -> cek overlap -> catat reservation.
// Idempotent per booking_id: reservation yang sudah ada cuma mengembalikan
// harga lagi.
func (r *Repo) Reserve(ctx context.Context, roomID, bookingID string, checkIn, checkOut time.Time) (priceCents int, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var active bool
	err = tx.QueryRow(ctx, `SELECT price_per_night_cents, is_active FROM rooms WHERE id=$1 FOR UPDATE`, roomID).
		Scan(&priceCents, &active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrRoomNotFound
		}
		return 0, err
	}
	if !active {
		return 0, ErrNoAvailability
	}

	// Short-circuit: booking ini sudah punya reservation.
	var existing string
	err = tx.QueryRow(ctx, `SELECT status FROM room_reservations WHERE booking_id=$1`, bookingID).Scan(&existing)
	if err == nil && existing == "RESERVED" {
		return priceCents, tx.Commit(ctx)
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	var overlapping int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM room_reservations
		WHERE room_id=$1 AND status='RESERVED' AND booking_id<>$2
		  AND check_in_date < $4 AND check_out_date > $3
	`, roomID, bookingID, checkIn, checkOut).Scan(&overlapping)
	if err != nil {
		return 0, err
	}
	if overlapping > 0 {
		return 0, ErrNoAvailability
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO room_reservations(booking_id, room_id, check_in_date, check_out_date, status)
		VALUES ($1,$2,$3,$4,'RESERVED')
		ON CONFLICT (booking_id) DO UPDATE SET status='RESERVED'
	`, bookingID, roomID, checkIn, checkOut)
	if err != nil {
		return 0, err
	}

	return priceCents, tx.Commit(ctx)
}

// Release frees the reservation. No-op kalau sudah released (idempotent).
func (r *Repo) Release(ctx context.Context, bookingID string) error {
	_, err := r.DB.Exec(ctx,
		`UPDATE room_reservations SET status='RELEASED' WHERE booking_id=$1 AND status='RESERVED'`,
		bookingID)
	return err
}
