package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/craftstore-backend/internal/reconciliation"
	"github.com/angelmondragon/craftstore-backend/pkg/db/models"
	"github.com/angelmondragon/craftstore-backend/pkg/enums"
)

type stubPendingReader struct {
	orders  []models.Order
	err     error
	markErr error
	cutoff  time.Time
	limit   int
	swept   []uuid.UUID
}

func (s *stubPendingReader) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	s.cutoff = cutoff
	s.limit = limit
	return s.orders, s.err
}

func (s *stubPendingReader) MarkSwept(_ context.Context, orderID uuid.UUID, _ string) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.swept = append(s.swept, orderID)
	return nil
}

type stubReconciler struct {
	results map[string]reconciliation.ReconcileResult
	errs    map[string]error
	calls   []string
	sources []enums.ResolutionSource
}

func (s *stubReconciler) ReconcileSession(_ context.Context, ref string, source enums.ResolutionSource) (reconciliation.ReconcileResult, error) {
	s.calls = append(s.calls, ref)
	s.sources = append(s.sources, source)
	return s.results[ref], s.errs[ref]
}

func pendingOrder(ref string) models.Order {
	order := models.Order{ID: uuid.New(), PaymentStatus: enums.PaymentStatusPending}
	if ref != "" {
		order.ExternalSessionRef = &ref
	}
	return order
}

func newSweep(t *testing.T, reader stalePendingQueue, rec sessionReconciler) *pendingPaymentSweepJob {
	t.Helper()
	job, err := NewPendingPaymentSweepJob(PendingPaymentSweepParams{
		Logger:     quietLogger(),
		Orders:     reader,
		Reconciler: rec,
		MinAge:     time.Hour,
		BatchSize:  10,
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	sweep := job.(*pendingPaymentSweepJob)
	sweep.now = func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) }
	return sweep
}

func TestSweepReconcilesEachSession(t *testing.T) {
	reader := &stubPendingReader{orders: []models.Order{pendingOrder("cs_1"), pendingOrder(""), pendingOrder("cs_2")}}
	rec := &stubReconciler{results: map[string]reconciliation.ReconcileResult{"cs_1": {Applied: true}}}
	job := newSweep(t, reader, rec)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if want := time.Date(2026, 10, 1, 11, 0, 0, 0, time.UTC); !reader.cutoff.Equal(want) || reader.limit != 10 {
		t.Fatalf("unexpected query cutoff=%v limit=%d", reader.cutoff, reader.limit)
	}
	if len(rec.calls) != 2 || rec.calls[0] != "cs_1" || rec.calls[1] != "cs_2" {
		t.Fatalf("unexpected reconcile calls %v", rec.calls)
	}
	for _, source := range rec.sources {
		if source != enums.ResolutionSourceSweep {
			t.Fatalf("expected sweep source, got %s", source)
		}
	}
}

func TestSweepContinuesPastFailures(t *testing.T) {
	reader := &stubPendingReader{orders: []models.Order{pendingOrder("cs_1"), pendingOrder("cs_2")}}
	rec := &stubReconciler{errs: map[string]error{"cs_1": errors.New("processor down")}}
	job := newSweep(t, reader, rec)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if len(rec.calls) != 2 {
		t.Fatalf("sweep should keep going after a failure, calls=%v", rec.calls)
	}
}

func TestSweepListFailure(t *testing.T) {
	job := newSweep(t, &stubPendingReader{err: errors.New("db down")}, &stubReconciler{})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected list error")
	}
}

func TestSweepDefaults(t *testing.T) {
	job, err := NewPendingPaymentSweepJob(PendingPaymentSweepParams{
		Logger:     quietLogger(),
		Orders:     &stubPendingReader{},
		Reconciler: &stubReconciler{},
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	sweep := job.(*pendingPaymentSweepJob)
	if sweep.minAge != defaultSweepMinAge || sweep.batch != defaultSweepBatch {
		t.Fatalf("unexpected defaults %v %d", sweep.minAge, sweep.batch)
	}
	if job.Name() != "pending-payment-sweep" {
		t.Fatalf("unexpected name %s", job.Name())
	}
	if _, err := NewPendingPaymentSweepJob(PendingPaymentSweepParams{Logger: quietLogger()}); err == nil {
		t.Fatal("expected missing deps error")
	}
}

func TestSweepRequeuesStillOpenSessions(t *testing.T) {
	open, paid, vanished := pendingOrder("cs_open"), pendingOrder("cs_paid"), pendingOrder("cs_gone")
	reader := &stubPendingReader{orders: []models.Order{open, paid, vanished}}
	rec := &stubReconciler{results: map[string]reconciliation.ReconcileResult{
		"cs_open": {OrderID: open.ID, PaymentStatus: enums.PaymentStatusPending, Skipped: "session not settled: session still open"},
		"cs_paid": {OrderID: paid.ID, PaymentStatus: enums.PaymentStatusPaid, Applied: true},
		"cs_gone": {Skipped: "unknown session"},
	}}
	job := newSweep(t, reader, rec)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(reader.swept) != 1 || reader.swept[0] != open.ID {
		t.Fatalf("only the still-open order should be requeued, got %v", reader.swept)
	}

	reader.swept = nil
	reader.markErr = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected requeue failure to be reported")
	}
}
