package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/kenyabank/internal/observability"
	"go.uber.org/zap"
)

// loop runs job once at start and then on every tick until the context is
// canceled or stop is called.
type loop struct {
	name     string
	interval time.Duration
	job      func(ctx context.Context) error
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newLoop(name string, interval time.Duration, job func(ctx context.Context) error) *loop {
	return &loop{name: name, interval: interval, job: job, stopCh: make(chan struct{})}
}

func (l *loop) setInterval(interval time.Duration) {
	if interval > 0 {
		l.interval = interval
	}
}

func (l *loop) start(ctx context.Context) {
	logger := zap.L().With(zap.String("worker", l.name))
	logger.Info("worker starting", zap.Duration("interval", l.interval))
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.tick(ctx, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context canceled")
			return
		case <-l.stopCh:
			logger.Info("worker stop signal received")
			return
		case <-ticker.C:
			l.tick(ctx, logger)
		}
	}
}

func (l *loop) stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *loop) tick(ctx context.Context, logger *zap.Logger) {
	start := time.Now()
	if err := l.job(ctx); err != nil {
		observability.IncrementWorkerRun(l.name, "failed")
		logger.Error("worker run failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	observability.IncrementWorkerRun(l.name, "success")
}
