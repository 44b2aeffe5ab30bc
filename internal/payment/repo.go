package payment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPaymentNotFound = errors.New("payment not found")

type Payment struct {
	ID            string
	BookingID     string
	UserID        string
	AmountCents   int
	Currency      string
	Status        string // completed | failed | refunded
	TransactionID string
	RefundCents   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) InitSchema(ctx context.Context) error {
	_, err := r.DB.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			booking_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			amount_cents INT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			transaction_id TEXT,
			refund_cents INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_payments_booking ON payments(booking_id)`)
	return err
}

func (r *Repo) Insert(ctx context.Context, p Payment) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payments(id, booking_id, user_id, amount_cents, currency, status, transaction_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, p.ID, p.BookingID, p.UserID, p.AmountCents, p.Currency, p.Status, p.TransactionID)
	return err
}

// GetCompletedByBooking returns the completed payment for a booking, kalau
// ada. Dipakai untuk idempotent short-circuit di payment.process.
func (r *Repo) GetCompletedByBooking(ctx context.Context, bookingID string) (*Payment, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT id, booking_id, user_id, amount_cents, currency, status, COALESCE(transaction_id,''), refund_cents
		FROM payments WHERE booking_id=$1 AND status='completed'
	`, bookingID)
	var p Payment
	err := row.Scan(&p.ID, &p.BookingID, &p.UserID, &p.AmountCents, &p.Currency, &p.Status, &p.TransactionID, &p.RefundCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Payment, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT id, booking_id, user_id, amount_cents, currency, status, COALESCE(transaction_id,''), refund_cents
		FROM payments WHERE id=$1
	`, id)
	var p Payment
	err := row.Scan(&p.ID, &p.BookingID, &p.UserID, &p.AmountCents, &p.Currency, &p.Status, &p.TransactionID, &p.RefundCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// MarkRefunded is idempotent: refund kedua untuk payment yang sama no-op.
func (r *Repo) MarkRefunded(ctx context.Context, id string, refundCents int) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE payments SET status='refunded', refund_cents=$2, updated_at=NOW()
		WHERE id=$1 AND status IN ('completed','refunded')
	`, id, refundCents)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}
