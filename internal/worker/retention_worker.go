package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/kenyabank/internal/service"
)

type retentionRunner interface {
	Run(ctx context.Context) (service.RetentionResult, error)
}

// RetentionWorker purges old audit entries, login attempts and expired
// idempotency keys.
type RetentionWorker struct {
	svc  retentionRunner
	loop *loop
}

// NewRetentionWorker creates a worker that runs hourly by default.
func NewRetentionWorker(svc retentionRunner) *RetentionWorker {
	w := &RetentionWorker{svc: svc}
	w.loop = newLoop("retention", time.Hour, w.RunOnce)
	return w
}

func (w *RetentionWorker) WithInterval(interval time.Duration) *RetentionWorker {
	w.loop.setInterval(interval)
	return w
}

// Start blocks until ctx is canceled or Stop is called.
func (w *RetentionWorker) Start(ctx context.Context) { w.loop.start(ctx) }

func (w *RetentionWorker) Stop() { w.loop.stop() }

// Run starts the worker in a goroutine and returns a stop function.
func (w *RetentionWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// RunOnce performs a single purge.
func (w *RetentionWorker) RunOnce(ctx context.Context) error {
	_, err := w.svc.Run(ctx)
	return err
}

func (w *RetentionWorker) String() string {
	return fmt.Sprintf("RetentionWorker(interval=%v)", w.loop.interval)
}
