package worker

import (
	"context"
	"time"
)

type reconciliationRunner interface {
	Run(ctx context.Context) (int64, error)
}

// ReconciliationWorker watches for external deposits whose provider callback
// is overdue. It only reports; a late callback can still settle them.
type ReconciliationWorker struct {
	svc  reconciliationRunner
	loop *loop
}

// NewReconciliationWorker constructs a worker with a one-minute interval.
func NewReconciliationWorker(svc reconciliationRunner) *ReconciliationWorker {
	w := &ReconciliationWorker{svc: svc}
	w.loop = newLoop("reconciliation", time.Minute, func(ctx context.Context) error {
		_, err := w.svc.Run(ctx)
		return err
	})
	return w
}

func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	w.loop.setInterval(interval)
	return w
}

func (w *ReconciliationWorker) Start(ctx context.Context) { w.loop.start(ctx) }

func (w *ReconciliationWorker) Stop() { w.loop.stop() }

func (w *ReconciliationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}
