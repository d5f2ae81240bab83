package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/kenyabank/internal/models"
)

// UserStats aggregates the dashboard figures of one account. Balance and
// account number are filled in by the caller.
func (q *Queries) UserStats(ctx context.Context, accountNumber string, since time.Time) (*models.UserStats, error) {
	recent, _, err := q.ListTransactions(ctx, models.TransactionFilter{AccountNumber: accountNumber, Limit: 5})
	if err != nil {
		return nil, err
	}

	rows, err := q.db.Query(ctx, `
		SELECT type, COUNT(*), COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE (from_account = $1 OR to_account = $1) AND status = 'completed'
		GROUP BY type ORDER BY type`, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("aggregate transactions: %w", err)
	}
	defer rows.Close()

	byType := []models.TypeAggregate{}
	for rows.Next() {
		var agg models.TypeAggregate
		if err := rows.Scan(&agg.Type, &agg.Count, &agg.Amount); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		byType = append(byType, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}

	var recentCount int64
	err = q.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE (from_account = $1 OR to_account = $1) AND created_at >= $2`, accountNumber, since).Scan(&recentCount)
	if err != nil {
		return nil, fmt.Errorf("count recent transactions: %w", err)
	}

	return &models.UserStats{
		RecentTransactions: recent,
		ByType:             byType,
		LastThirtyDays:     recentCount,
	}, nil
}

func (q *Queries) AdminStats(ctx context.Context, since time.Time) (*models.AdminStats, error) {
	stats := &models.AdminStats{}
	err := q.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE is_active),
			(SELECT COUNT(*) FROM transactions),
			(SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE status = 'completed'),
			(SELECT COUNT(*) FROM transactions WHERE type = 'external_deposit' AND status = 'pending')`,
	).Scan(&stats.TotalUsers, &stats.ActiveUsers, &stats.TotalTransactions, &stats.CompletedVolume, &stats.PendingDeposits)
	if err != nil {
		return nil, fmt.Errorf("admin totals: %w", err)
	}

	rows, err := q.db.Query(ctx, `
		SELECT date_trunc('day', created_at) AS day, COUNT(*), COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE created_at >= $1
		GROUP BY day ORDER BY day`, since)
	if err != nil {
		return nil, fmt.Errorf("daily activity: %w", err)
	}
	defer rows.Close()

	stats.LastSevenDays = []models.DailyActivity{}
	for rows.Next() {
		var d models.DailyActivity
		if err := rows.Scan(&d.Day, &d.Count, &d.Amount); err != nil {
			return nil, fmt.Errorf("scan daily activity: %w", err)
		}
		stats.LastSevenDays = append(stats.LastSevenDays, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily activity: %w", err)
	}
	return stats, nil
}
