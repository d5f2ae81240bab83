package service

import (
	"context"
	"time"

	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/google/uuid"
)

// Ledger is the balance and transaction surface the money flows run on.
// Every balance mutation is a single conditional update; there is no
// cross-row transaction.
type Ledger interface {
	GetAccount(ctx context.Context, accountNumber string) (*models.Account, error)
	DebitAccount(ctx context.Context, accountNumber string, amount int64) (bool, error)
	CreditAccount(ctx context.Context, accountNumber string, amount int64) (bool, error)
	ForceCreditAccount(ctx context.Context, accountNumber string, amount int64) (bool, error)
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransactionByCorrelationID(ctx context.Context, correlationID string) (*models.Transaction, error)
	// SettleDeposit claims a pending deposit and credits it atomically.
	SettleDeposit(ctx context.Context, settlement models.DepositSettlement) (*models.Transaction, error)
	FailPendingDeposit(ctx context.Context, correlationID, reason string, at time.Time) (bool, error)
}

// AccountLookup resolves the account owned by a user.
type AccountLookup interface {
	GetAccountByUserID(ctx context.Context, userID uuid.UUID) (*models.Account, error)
}

type DepositStore interface {
	Ledger
	AccountLookup
}

type AuditStore interface {
	InsertAuditLog(ctx context.Context, entry models.AuditLog) error
}

type UserStore interface {
	AccountLookup
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUserWithAccount(ctx context.Context, user *models.User, account *models.Account, opening *models.Transaction) error
	RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) (int, *time.Time, error)
	RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time) error
	InsertLoginAttempt(ctx context.Context, attempt models.LoginAttempt) error
}

type ReportStore interface {
	AccountLookup
	GetAccount(ctx context.Context, accountNumber string) (*models.Account, error)
	ListTransactions(ctx context.Context, f models.TransactionFilter) ([]models.Transaction, int64, error)
	UserStats(ctx context.Context, accountNumber string, since time.Time) (*models.UserStats, error)
	AdminStats(ctx context.Context, since time.Time) (*models.AdminStats, error)
	ListUsers(ctx context.Context, f models.UserFilter) ([]models.User, int64, error)
	SetAccountActive(ctx context.Context, accountNumber string, active bool) (*models.Account, error)
}

type MaintenanceStore interface {
	DeleteAuditLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteLoginAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteExpiredIdempotencyKeys(ctx context.Context, cutoff time.Time) (int64, error)
	CountStalePendingDeposits(ctx context.Context, cutoff time.Time) (int64, error)
}

// RequestMeta identifies the client behind an operation for the audit trail.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
