package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/google/uuid"
)

const accountColumns = `account_number, user_id, balance, is_active, created_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	a := &models.Account{}
	if err := row.Scan(&a.AccountNumber, &a.UserID, &a.Balance, &a.IsActive, &a.CreatedAt); err != nil {
		return nil, err
	}
	return a, nil
}

func (q *Queries) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `INSERT INTO accounts (account_number, user_id, balance, is_active, created_at)
		VALUES ($1, $2, $3, $4, NOW()) RETURNING created_at`
	err := q.db.QueryRow(ctx, query, account.AccountNumber, account.UserID, account.Balance, account.IsActive).Scan(&account.CreatedAt)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (q *Queries) GetAccount(ctx context.Context, accountNumber string) (*models.Account, error) {
	row := q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, accountNumber)
	a, err := scanAccount(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (q *Queries) GetAccountByUserID(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	row := q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
	a, err := scanAccount(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account by user: %w", err)
	}
	return a, nil
}

// DebitAccount subtracts amount only when the account is active and covers it.
// It reports false when no row matched; the balance is then untouched.
func (q *Queries) DebitAccount(ctx context.Context, accountNumber string, amount int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE accounts SET balance = balance - $2
		WHERE account_number = $1 AND is_active AND balance >= $2`, accountNumber, amount)
	if err != nil {
		return false, fmt.Errorf("debit account: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreditAccount adds amount to an active account.
func (q *Queries) CreditAccount(ctx context.Context, accountNumber string, amount int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE accounts SET balance = balance + $2
		WHERE account_number = $1 AND is_active`, accountNumber, amount)
	if err != nil {
		return false, fmt.Errorf("credit account: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ForceCreditAccount adds amount regardless of account state. It backs
// compensations and provider-confirmed deposits, where the money has already moved.
func (q *Queries) ForceCreditAccount(ctx context.Context, accountNumber string, amount int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `UPDATE accounts SET balance = balance + $2 WHERE account_number = $1`, accountNumber, amount)
	if err != nil {
		return false, fmt.Errorf("force credit account: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (q *Queries) SetAccountActive(ctx context.Context, accountNumber string, active bool) (*models.Account, error) {
	row := q.db.QueryRow(ctx, `UPDATE accounts SET is_active = $2 WHERE account_number = $1 RETURNING `+accountColumns, accountNumber, active)
	a, err := scanAccount(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("set account active: %w", err)
	}
	return a, nil
}
