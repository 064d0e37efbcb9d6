package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/observability"
)

// DefaultReconciliationSchedule runs the sweep at the top of every hour.
const DefaultReconciliationSchedule = "@hourly"

// Reconciler flags stuck payouts. *service.ReconciliationService implements it.
type Reconciler interface {
	Run(ctx context.Context) (int, error)
}

// ReconciliationWorker runs the payout reconciliation sweep on a cron schedule.
type ReconciliationWorker struct {
	svc      Reconciler
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	stopOnce sync.Once
}

// NewReconciliationWorker constructs a worker on the default schedule.
func NewReconciliationWorker(svc Reconciler) *ReconciliationWorker {
	return &ReconciliationWorker{
		svc:      svc,
		schedule: DefaultReconciliationSchedule,
		timeout:  10 * time.Minute,
	}
}

// WithSchedule sets a standard five-field cron expression or a descriptor such as "@every 30m".
func (w *ReconciliationWorker) WithSchedule(schedule string) *ReconciliationWorker {
	if schedule != "" {
		w.schedule = schedule
	}
	return w
}

// Run registers the sweep, runs it once immediately, and returns a stop function.
func (w *ReconciliationWorker) Run(ctx context.Context) (func(), error) {
	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(w.schedule, func() { w.runOnce(ctx) }); err != nil {
		return nil, fmt.Errorf("invalid reconciliation schedule %q: %w", w.schedule, err)
	}
	w.cron = c

	zap.L().Info("reconciliation worker starting", zap.String("schedule", w.schedule))
	go w.runOnce(ctx)
	c.Start()

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return w.Stop, nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (w *ReconciliationWorker) Stop() {
	w.stopOnce.Do(func() {
		if w.cron == nil {
			return
		}
		<-w.cron.Stop().Done()
		zap.L().Info("reconciliation worker stopped")
	})
}

func (w *ReconciliationWorker) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if _, err := w.svc.Run(ctx); err != nil {
		observability.IncrementWorkerRun("reconciliation", "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("reconciliation", "success")
}
