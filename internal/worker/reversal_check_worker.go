package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/observability"
)

// ReversalCheckProcessor runs due reversal checks. *service.PayoutEventReconciler implements it.
type ReversalCheckProcessor interface {
	ProcessDueReversalChecks(ctx context.Context, batchSize int32) (int, error)
}

// ReversalCheckWorker polls for due reversal checks.
// Safe for concurrent instances: checks are claimed with FOR UPDATE SKIP LOCKED.
type ReversalCheckWorker struct {
	processor    ReversalCheckProcessor
	pollInterval time.Duration
	batchSize    int32
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// NewReversalCheckWorker creates a worker polling every minute, 50 checks at a time.
func NewReversalCheckWorker(processor ReversalCheckProcessor) *ReversalCheckWorker {
	return &ReversalCheckWorker{
		processor:    processor,
		pollInterval: time.Minute,
		batchSize:    50,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets the poll interval for the worker.
func (w *ReversalCheckWorker) WithPollInterval(interval time.Duration) *ReversalCheckWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithBatchSize sets the batch size for the worker.
func (w *ReversalCheckWorker) WithBatchSize(size int32) *ReversalCheckWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks until Stop is called or ctx is canceled.
func (w *ReversalCheckWorker) Start(ctx context.Context) {
	zap.L().Info("reversal check worker starting",
		zap.Duration("poll_interval", w.pollInterval), zap.Int32("batch_size", w.batchSize))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("reversal check worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("reversal check worker stop signal received")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *ReversalCheckWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ReversalCheckWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// ProcessOnce runs a single batch immediately.
func (w *ReversalCheckWorker) ProcessOnce(ctx context.Context) (int, error) {
	n, err := w.processor.ProcessDueReversalChecks(ctx, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun("reversal_checks", "failed")
		return n, err
	}
	observability.IncrementWorkerRun("reversal_checks", "success")
	return n, nil
}

// drain keeps claiming while full batches come back, so a backlog clears in one tick.
func (w *ReversalCheckWorker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.ProcessOnce(ctx)
		if err != nil {
			zap.L().Error("reversal check batch failed", zap.Error(err))
			return
		}
		if n < int(w.batchSize) {
			return
		}
	}
}

func (w *ReversalCheckWorker) String() string {
	return fmt.Sprintf("ReversalCheckWorker(interval=%v, batch=%d)", w.pollInterval, w.batchSize)
}
