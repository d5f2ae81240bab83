package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/models"
)

const transactionColumns = `id, from_account, to_account, amount, type, status, description,
	correlation_id, receipt_number, payer_reference, failure_reason, user_id, signature,
	created_at, completed_at`

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	t := &models.Transaction{}
	err := row.Scan(
		&t.ID, &t.FromAccount, &t.ToAccount, &t.Amount, &t.Type, &t.Status, &t.Description,
		&t.CorrelationID, &t.ReceiptNumber, &t.PayerReference, &t.FailureReason, &t.UserID, &t.Signature,
		&t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (q *Queries) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), $14)
		RETURNING created_at`
	err := q.db.QueryRow(ctx, query,
		t.ID, t.FromAccount, t.ToAccount, t.Amount, t.Type, t.Status, t.Description,
		t.CorrelationID, t.ReceiptNumber, t.PayerReference, t.FailureReason, t.UserID, t.Signature,
		t.CompletedAt,
	).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (q *Queries) GetTransactionByCorrelationID(ctx context.Context, correlationID string) (*models.Transaction, error) {
	row := q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE correlation_id = $1`, correlationID)
	t, err := scanTransaction(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUnknownCorrelation
		}
		return nil, fmt.Errorf("get transaction by correlation id: %w", err)
	}
	return t, nil
}

// ClaimPendingDeposit moves a pending deposit to completed. Only one caller can
// win the claim; the others get domain.ErrNotPending.
func (q *Queries) ClaimPendingDeposit(ctx context.Context, s models.DepositSettlement) (*models.Transaction, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE transactions SET
			status = 'completed',
			receipt_number = NULLIF($2, ''),
			payer_reference = NULLIF($3, ''),
			amount = CASE WHEN $4::BIGINT > 0 THEN $4::BIGINT ELSE amount END,
			completed_at = $5
		WHERE correlation_id = $1 AND status = 'pending'
		RETURNING `+transactionColumns,
		s.CorrelationID, s.ReceiptNumber, s.PayerReference, s.Amount, s.CompletedAt)
	t, err := scanTransaction(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotPending
		}
		return nil, fmt.Errorf("claim pending deposit: %w", err)
	}
	return t, nil
}

// FailPendingDeposit marks a pending deposit failed and reports whether it did.
func (q *Queries) FailPendingDeposit(ctx context.Context, correlationID, reason string, at time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE transactions SET status = 'failed', failure_reason = $2, completed_at = $3
		WHERE correlation_id = $1 AND status = 'pending'`, correlationID, reason, at)
	if err != nil {
		return false, fmt.Errorf("fail pending deposit: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListTransactions returns a page of transactions newest first and the total match count.
// An AccountNumber filter matches either side of the transaction.
func (q *Queries) ListTransactions(ctx context.Context, f models.TransactionFilter) ([]models.Transaction, int64, error) {
	var (
		conds []string
		args  []any
	)
	if f.AccountNumber != "" {
		args = append(args, f.AccountNumber)
		conds = append(conds, fmt.Sprintf("(from_account = $%d OR to_account = $%d)", len(args), len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM transactions%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)-1, len(args))
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]models.Transaction, 0, f.Limit)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, total, nil
}

// CountStalePendingDeposits counts external deposits still pending since before cutoff.
func (q *Queries) CountStalePendingDeposits(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE type = 'external_deposit' AND status = 'pending' AND created_at < $1`, cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale pending deposits: %w", err)
	}
	return n, nil
}
