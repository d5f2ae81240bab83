package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides access to the query set and transaction scoping.
// Its promoted Queries methods run outside any transaction.
type Store struct {
	*Queries
	db *pgxpool.Pool
}

// NewStore creates a store wrapper around a pgx connection pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		Queries: New(db),
		db:      db,
	}
}

// RunInTx executes fn within a database transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// SettleDeposit claims a pending deposit and credits its destination account
// in one transaction. A lost claim returns domain.ErrNotPending and credits nothing.
func (s *Store) SettleDeposit(ctx context.Context, settlement models.DepositSettlement) (*models.Transaction, error) {
	var settled *models.Transaction
	err := s.RunInTx(ctx, func(q *Queries) error {
		t, err := q.ClaimPendingDeposit(ctx, settlement)
		if err != nil {
			return err
		}
		if t.ToAccount == nil {
			return fmt.Errorf("deposit %s has no destination account", t.ID)
		}
		ok, err := q.ForceCreditAccount(ctx, *t.ToAccount, t.Amount)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("credit deposit %s: account %s not found", t.ID, *t.ToAccount)
		}
		settled = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// CreateUserWithAccount inserts a user, their account and an optional opening
// deposit atomically.
func (s *Store) CreateUserWithAccount(ctx context.Context, user *models.User, account *models.Account, opening *models.Transaction) error {
	return s.RunInTx(ctx, func(q *Queries) error {
		if err := q.CreateUser(ctx, user); err != nil {
			return err
		}
		if err := q.CreateAccount(ctx, account); err != nil {
			return err
		}
		if opening != nil {
			if err := q.CreateTransaction(ctx, opening); err != nil {
				return err
			}
		}
		return nil
	})
}
