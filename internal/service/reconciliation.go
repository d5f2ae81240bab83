package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/kenyabank/internal/observability"
	"go.uber.org/zap"
)

// ReconciliationService watches for external deposits whose callback never
// arrived. It only reports: a pending deposit stays claimable by a late callback.
type ReconciliationService struct {
	store  MaintenanceStore
	maxAge time.Duration
	now    func() time.Time
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store MaintenanceStore, maxAge time.Duration) *ReconciliationService {
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	return &ReconciliationService{store: store, maxAge: maxAge, now: time.Now}
}

// Run counts stale pending deposits and publishes the count.
func (s *ReconciliationService) Run(ctx context.Context) (int64, error) {
	stale, err := s.store.CountStalePendingDeposits(ctx, s.now().Add(-s.maxAge))
	if err != nil {
		return 0, fmt.Errorf("count stale pending deposits: %w", err)
	}
	observability.SetStalePendingDeposits(stale)
	if stale > 0 {
		zap.L().Warn("external deposits awaiting callback", zap.Int64("count", stale), zap.Duration("older_than", s.maxAge))
	}
	return stale, nil
}

// RetentionService purges audit and login history past the retention period.
type RetentionService struct {
	store  MaintenanceStore
	period time.Duration
	now    func() time.Time
}

func NewRetentionService(store MaintenanceStore, period time.Duration) *RetentionService {
	if period <= 0 {
		period = 90 * 24 * time.Hour
	}
	return &RetentionService{store: store, period: period, now: time.Now}
}

// RetentionResult reports the rows removed by one run.
type RetentionResult struct {
	AuditLogs       int64
	LoginAttempts   int64
	IdempotencyKeys int64
}

func (s *RetentionService) Run(ctx context.Context) (RetentionResult, error) {
	var res RetentionResult
	now := s.now()
	cutoff := now.Add(-s.period)

	var err error
	if res.AuditLogs, err = s.store.DeleteAuditLogsBefore(ctx, cutoff); err != nil {
		return res, err
	}
	if res.LoginAttempts, err = s.store.DeleteLoginAttemptsBefore(ctx, cutoff); err != nil {
		return res, err
	}
	if res.IdempotencyKeys, err = s.store.DeleteExpiredIdempotencyKeys(ctx, now); err != nil {
		return res, err
	}
	zap.L().Info("retention cleanup completed",
		zap.Int64("audit_logs", res.AuditLogs),
		zap.Int64("login_attempts", res.LoginAttempts),
		zap.Int64("idempotency_keys", res.IdempotencyKeys))
	return res, nil
}
