package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// InitSchema creates the aggregate tables if they do not exist.
func (r *Repo) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			hotel_id TEXT NOT NULL,
			room_id TEXT NOT NULL,
			check_in_date TIMESTAMPTZ NOT NULL,
			check_out_date TIMESTAMPTZ NOT NULL,
			guest_count INT NOT NULL,
			total_cents INT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'USD',
			status TEXT NOT NULL,
			payment_ref TEXT,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT,
			special_requests TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS sagas (
			saga_id TEXT PRIMARY KEY,
			booking_id TEXT UNIQUE NOT NULL REFERENCES bookings(id),
			steps JSONB NOT NULL,
			overall_status TEXT NOT NULL,
			version BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sagas_status_updated ON sagas(overall_status, updated_at)`,
	}
	for _, stmt := range statements {
		if _, err := r.DB.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateBookingSaga inserts booking dan saga dalam satu tx. Keduanya harus
// ada sebelum command pertama boleh keluar (persist-before-publish).
func (r *Repo) CreateBookingSaga(ctx context.Context, b *Booking, s *SagaInstance) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO bookings(id, user_id, hotel_id, room_id, check_in_date, check_out_date,
			guest_count, total_cents, currency, status, first_name, last_name, email, phone,
			special_requests, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$16)
	`, b.ID, b.UserID, b.HotelID, b.RoomID, b.CheckInDate, b.CheckOutDate,
		b.GuestCount, b.TotalCents, b.Currency, b.Status,
		b.GuestDetails.FirstName, b.GuestDetails.LastName, b.GuestDetails.Email, b.GuestDetails.Phone,
		b.SpecialRequests, b.CreatedAt)
	if err != nil {
		return err
	}

	stepsJSON, err := marshalSteps(s.Steps)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO sagas(saga_id, booking_id, steps, overall_status, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
	`, s.SagaID, s.BookingID, stepsJSON, s.OverallStatus, s.Version, s.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const bookingColumns = `id, user_id, hotel_id, room_id, check_in_date, check_out_date,
	guest_count, total_cents, currency, status, COALESCE(payment_ref,''),
	first_name, last_name, email, COALESCE(phone,''), COALESCE(special_requests,''),
	created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.UserID, &b.HotelID, &b.RoomID, &b.CheckInDate, &b.CheckOutDate,
		&b.GuestCount, &b.TotalCents, &b.Currency, &b.Status, &b.PaymentRef,
		&b.GuestDetails.FirstName, &b.GuestDetails.LastName, &b.GuestDetails.Email,
		&b.GuestDetails.Phone, &b.SpecialRequests, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *Repo) GetBooking(ctx context.Context, id string) (*Booking, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	return scanBooking(row)
}

// ListUserBookings returns one page of a user's bookings, newest first.
// status kosong = semua status.
func (r *Repo) ListUserBookings(ctx context.Context, userID string, status Status, page, limit int) ([]*Booking, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	where := `WHERE user_id=$1`
	args := []any{userID}
	if status != "" {
		where += ` AND status=$2`
		args = append(args, status)
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM bookings `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM bookings %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		bookingColumns, where, limit, (page-1)*limit)
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func (r *Repo) UpdateBookingStatus(ctx context.Context, id string, status Status) error {
	ct, err := r.DB.Exec(ctx, `UPDATE bookings SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) SetPaymentRef(ctx context.Context, id, paymentRef string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE bookings SET payment_ref=$2, updated_at=NOW() WHERE id=$1`, id, paymentRef)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
