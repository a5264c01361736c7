package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/craftstore-backend/internal/reconciliation"
	"github.com/angelmondragon/craftstore-backend/pkg/db/models"
	"github.com/angelmondragon/craftstore-backend/pkg/enums"
	"github.com/angelmondragon/craftstore-backend/pkg/logger"
)

const (
	defaultSweepMinAge = 30 * time.Minute
	defaultSweepBatch  = 50
)

type stalePendingQueue interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	MarkSwept(ctx context.Context, orderID uuid.UUID, sessionRef string) error
}

type sessionReconciler interface {
	ReconcileSession(ctx context.Context, sessionRef string, source enums.ResolutionSource) (reconciliation.ReconcileResult, error)
}

type PendingPaymentSweepParams struct {
	Logger     *logger.Logger
	Orders     stalePendingQueue
	Reconciler sessionReconciler
	MinAge     time.Duration
	BatchSize  int
}

// NewPendingPaymentSweepJob re-verifies orders whose buyer never came back
// from the hosted payment page and whose webhook never arrived.
func NewPendingPaymentSweepJob(params PendingPaymentSweepParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("pending order reader required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = defaultSweepMinAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &pendingPaymentSweepJob{
		logg:       params.Logger,
		orders:     params.Orders,
		reconciler: params.Reconciler,
		minAge:     minAge,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type pendingPaymentSweepJob struct {
	logg       *logger.Logger
	orders     stalePendingQueue
	reconciler sessionReconciler
	minAge     time.Duration
	batch      int
	now        func() time.Time
}

func (j *pendingPaymentSweepJob) Name() string { return "pending-payment-sweep" }

func (j *pendingPaymentSweepJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.minAge)
	stale, err := j.orders.ListStalePending(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list stale pending orders: %w", err)
	}

	var errs error
	settled, deferred := 0, 0
	for _, order := range stale {
		ref := order.SessionRef()
		if ref == "" {
			continue
		}
		result, err := j.reconciler.ReconcileSession(ctx, ref, enums.ResolutionSourceSweep)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		switch {
		case result.Applied:
			settled++
		case result.PaymentStatus == enums.PaymentStatusPending:
			// still open at the processor; requeue behind the rest
			if err := j.orders.MarkSwept(ctx, order.ID, ref); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
				continue
			}
			deferred++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(stale),
		"settled":    settled,
		"deferred":   deferred,
	}), "pending payment sweep finished")
	return errs
}
