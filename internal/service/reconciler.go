package service

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"paylink/internal/domain"
	"paylink/internal/provider"
	"paylink/internal/repository"
)

// RunLock guards a reconciler run across engine instances. A single
// instance is additionally guarded in-process; see Reconciler.Run.
type RunLock interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// ReconcilerConfig bounds each sweep.
type ReconcilerConfig struct {
	// MinAge keeps the sweep away from checkouts a customer may still be
	// completing.
	MinAge time.Duration

	// BatchSize caps records per run, bounding load on the provider API
	// and the database.
	BatchSize int
}

// RunReport summarizes one reconciler run.
type RunReport struct {
	Selected int
	Applied  int
	Skipped  int
}

// Reconciler periodically re-queries providers for payment records stuck in
// pending, self-healing missed or lost webhooks. It funnels every change
// through the same transition the webhook ingestor uses and never touches a
// terminal record.
type Reconciler struct {
	paymentRepo repository.PaymentRepository
	providers   *provider.Registry
	payments    *PaymentService
	cfg         ReconcilerConfig
	lock        RunLock
	nrApp       *newrelic.Application
	now         func() time.Time

	running atomic.Bool
}

// NewReconciler creates a new Reconciler. lock and nrApp may be nil.
func NewReconciler(
	paymentRepo repository.PaymentRepository,
	providers *provider.Registry,
	payments *PaymentService,
	cfg ReconcilerConfig,
	lock RunLock,
	nrApp *newrelic.Application,
) *Reconciler {
	if cfg.MinAge <= 0 {
		cfg.MinAge = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Reconciler{
		paymentRepo: paymentRepo,
		providers:   providers,
		payments:    payments,
		cfg:         cfg,
		lock:        lock,
		nrApp:       nrApp,
		now:         time.Now,
	}
}

// Run executes one sweep. A tick that fires while the previous run is still
// in flight is skipped, as is a tick that loses the cross-instance lock.
// A single record's provider failure is logged and skipped; it aborts
// neither the batch nor the run.
func (r *Reconciler) Run(ctx context.Context) (RunReport, error) {
	var report RunReport

	if !r.running.CompareAndSwap(false, true) {
		log.Println("[RECONCILER] previous run still in flight, skipping tick")
		return report, nil
	}
	defer r.running.Store(false)

	if r.lock != nil {
		acquired, err := r.lock.Acquire(ctx, 2*r.cfg.MinAge)
		if err != nil {
			return report, err
		}
		if !acquired {
			log.Println("[RECONCILER] run lock held elsewhere, skipping tick")
			return report, nil
		}
		defer func() {
			if err := r.lock.Release(ctx); err != nil {
				log.Printf("[RECONCILER] releasing run lock failed: %v", err)
			}
		}()
	}

	if r.nrApp != nil {
		txn := r.nrApp.StartTransaction("reconciler-run")
		defer txn.End()
		ctx = newrelic.NewContext(ctx, txn)
	}

	cutoff := r.now().Add(-r.cfg.MinAge)
	records, err := r.paymentRepo.ListStalePending(ctx, cutoff, r.cfg.BatchSize)
	if err != nil {
		return report, err
	}
	report.Selected = len(records)

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		applied, err := r.reconcile(ctx, record)
		if err != nil {
			report.Skipped++
			continue
		}
		if applied {
			report.Applied++
		}
	}

	if report.Selected > 0 {
		log.Printf("[RECONCILER] run complete: selected=%d applied=%d skipped=%d",
			report.Selected, report.Applied, report.Skipped)
	}

	return report, nil
}

// reconcile checks one record against provider truth.
func (r *Reconciler) reconcile(ctx context.Context, record *domain.PaymentRecord) (bool, error) {
	adapter, err := r.providers.ForProvider(record.Provider)
	if err != nil {
		log.Printf("[RECONCILER] no adapter for record: payment=%s provider=%s", record.ID, record.Provider)
		return false, err
	}

	status, err := adapter.GetStatus(ctx, record.ProviderReference)
	if err != nil {
		if errors.Is(err, provider.ErrProviderUnavailable) {
			log.Printf("[RECONCILER] provider unavailable, skipping record: payment=%s provider=%s err=%v",
				record.ID, record.Provider, err)
		} else {
			log.Printf("[RECONCILER] status lookup failed: payment=%s provider=%s err=%v",
				record.ID, record.Provider, err)
		}
		return false, err
	}

	if status == domain.PaymentStatusPending {
		// Still legitimately pending, likely an abandoned checkout; the
		// next run revisits it.
		return false, nil
	}

	return r.payments.Transition(ctx, record.ID, status, domain.SourceReconciler)
}
