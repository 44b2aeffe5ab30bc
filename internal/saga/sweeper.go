package saga

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-booking-saga.git/internal/booking"
)

// Sweeper mendeteksi saga yang macet: overallStatus running tapi step aktif
// pending melewati deadline, atau compensating yang pass kompensasinya
// terputus. Step macet diperlakukan persis seperti failure event dengan
// reason "timeout"; kompensasi terputus diulang sampai terminal.
type Sweeper struct {
	orch     *Orchestrator
	timeout  time.Duration
	interval time.Duration
	limit    int
	log      *zap.Logger
}

func NewSweeper(orch *Orchestrator, timeout, interval time.Duration, limit int, log *zap.Logger) *Sweeper {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if limit <= 0 {
		limit = 100
	}
	return &Sweeper{orch: orch, timeout: timeout, interval: interval, limit: limit, log: log}
}

// Run blocks until ctx is done.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep does one pass over stuck sagas.
func (w *Sweeper) Sweep(ctx context.Context) error {
	stuck, err := w.orch.sagas.ListStuck(ctx, w.timeout, w.limit)
	if err != nil {
		return err
	}

	for _, candidate := range stuck {
		if err := w.sweepOne(ctx, candidate.SagaID); err != nil {
			w.log.Error("sweep saga failed",
				zap.String("saga_id", candidate.SagaID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (w *Sweeper) sweepOne(ctx context.Context, sagaID string) error {
	unlock := w.orch.locks.Lock(sagaID)
	defer unlock()

	// Re-read di bawah lock; saga bisa saja maju di antara list dan lock.
	s, err := w.orch.sagas.GetSaga(ctx, sagaID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return nil
		}
		return err
	}
	if time.Since(s.UpdatedAt) < w.timeout {
		return nil
	}
	if s.OverallStatus == booking.SagaCompensating {
		w.log.Warn("resuming interrupted compensation",
			zap.String("saga_id", s.SagaID),
		)
		return w.orch.engine.Compensate(ctx, s)
	}
	if s.OverallStatus != booking.SagaRunning {
		return nil
	}
	active := s.ActiveStep()
	if active == nil {
		return nil
	}

	active.Status = booking.StepFailed
	active.Error = "timeout"
	s.OverallStatus = booking.SagaCompensating
	if err := w.orch.saveWithRetry(ctx, s); err != nil {
		return err
	}

	w.log.Warn("stuck saga timed out, compensating",
		zap.String("saga_id", s.SagaID),
		zap.String("step", active.Name),
	)
	return w.orch.engine.Compensate(ctx, s)
}
