package booking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SagaRepo persists SagaInstance aggregates. Semua write lewat CAS versi:
// in-memory copy yang basi tidak bisa menimpa versi yang lebih baru.
type SagaRepo struct{ DB *pgxpool.Pool }

func marshalSteps(steps []SagaStep) ([]byte, error) {
	return json.Marshal(steps)
}

func scanSaga(row pgx.Row) (*SagaInstance, error) {
	var s SagaInstance
	var stepsJSON []byte
	err := row.Scan(&s.SagaID, &s.BookingID, &stepsJSON, &s.OverallStatus, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(stepsJSON, &s.Steps); err != nil {
		return nil, err
	}
	return &s, nil
}

const sagaColumns = `saga_id, booking_id, steps, overall_status, version, created_at, updated_at`

func (r *SagaRepo) GetSaga(ctx context.Context, sagaID string) (*SagaInstance, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+sagaColumns+` FROM sagas WHERE saga_id=$1`, sagaID)
	return scanSaga(row)
}

func (r *SagaRepo) GetSagaByBooking(ctx context.Context, bookingID string) (*SagaInstance, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+sagaColumns+` FROM sagas WHERE booking_id=$1`, bookingID)
	return scanSaga(row)
}

// UpdateSaga writes steps + overall_status dengan version check. Kalah CAS ->
// ErrVersionConflict (caller re-read dan retry sekali). On success versi di
// memory ikut naik supaya write berikutnya tidak langsung konflik.
func (r *SagaRepo) UpdateSaga(ctx context.Context, s *SagaInstance) error {
	stepsJSON, err := marshalSteps(s.Steps)
	if err != nil {
		return err
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE sagas SET steps=$2, overall_status=$3, version=version+1, updated_at=NOW()
		WHERE saga_id=$1 AND version=$4
	`, s.SagaID, stepsJSON, s.OverallStatus, s.Version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// ListStuck returns non-terminal sagas untouched for longer than olderThan:
// running dengan step pending melewati deadline, atau compensating yang
// pass kompensasinya terputus dan harus diulang.
func (r *SagaRepo) ListStuck(ctx context.Context, olderThan time.Duration, limit int) ([]*SagaInstance, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := r.DB.Query(ctx, `
		SELECT `+sagaColumns+` FROM sagas
		WHERE overall_status = ANY($1) AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3
	`, []string{string(SagaRunning), string(SagaCompensating)}, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SagaInstance
	for rows.Next() {
		s, err := scanSaga(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
