package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	FullName      string     `json:"full_name"`
	Phone         string     `json:"phone"`
	PasswordHash  string     `json:"-"`
	Role          string     `json:"role"`
	IsActive      bool       `json:"is_active"`
	LoginAttempts int        `json:"-"`
	LockedUntil   *time.Time `json:"-"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Account balances are integer cents of KES.
type Account struct {
	AccountNumber string    `json:"account_number"`
	UserID        uuid.UUID `json:"user_id"`
	Balance       int64     `json:"balance"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

type Transaction struct {
	ID             uuid.UUID  `json:"id"`
	FromAccount    *string    `json:"from_account,omitempty"`
	ToAccount      *string    `json:"to_account,omitempty"`
	Amount         int64      `json:"amount"`
	Type           string     `json:"type"`   // transfer, deposit, withdrawal, external_deposit
	Status         string     `json:"status"` // pending, completed, failed
	Description    string     `json:"description,omitempty"`
	CorrelationID  *string    `json:"correlation_id,omitempty"`
	ReceiptNumber  *string    `json:"receipt_number,omitempty"`
	PayerReference *string    `json:"payer_reference,omitempty"`
	FailureReason  *string    `json:"failure_reason,omitempty"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	Signature      string     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

type AuditLog struct {
	ID        int64          `json:"id"`
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Details   map[string]any `json:"details,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type LoginAttempt struct {
	Email         string    `json:"email"`
	IPAddress     string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// DepositSettlement carries the provider-confirmed details of an external deposit.
// Amount of zero means the originally requested amount.
type DepositSettlement struct {
	CorrelationID  string
	Amount         int64
	ReceiptNumber  string
	PayerReference string
	CompletedAt    time.Time
}

type TransactionFilter struct {
	AccountNumber string
	Type          string
	Status        string
	Limit         int
	Offset        int
}

type UserFilter struct {
	Role   string
	Active *bool
	Limit  int
	Offset int
}

type Page struct {
	TotalCount int64 `json:"total_count"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Page
}

type UserPage struct {
	Users []User `json:"users"`
	Page
}

type TypeAggregate struct {
	Type   string `json:"type"`
	Count  int64  `json:"count"`
	Amount int64  `json:"amount"`
}

type UserStats struct {
	AccountNumber      string          `json:"account_number"`
	Balance            int64           `json:"balance"`
	RecentTransactions []Transaction   `json:"recent_transactions"`
	ByType             []TypeAggregate `json:"by_type"`
	LastThirtyDays     int64           `json:"last_30_days_count"`
}

type DailyActivity struct {
	Day    time.Time `json:"day"`
	Count  int64     `json:"count"`
	Amount int64     `json:"amount"`
}

type AdminStats struct {
	TotalUsers        int64           `json:"total_users"`
	ActiveUsers       int64           `json:"active_users"`
	TotalTransactions int64           `json:"total_transactions"`
	CompletedVolume   int64           `json:"completed_volume"`
	PendingDeposits   int64           `json:"pending_deposits"`
	LastSevenDays     []DailyActivity `json:"last_7_days"`
}

// Profile is the caller-facing view of a user and their account.
type Profile struct {
	User    User     `json:"user"`
	Account *Account `json:"account,omitempty"`
}

// NewPage computes pagination metadata for a 1-based page.
func NewPage(total int64, page, limit int) Page {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Page{
		TotalCount: total,
		Page:       page,
		Limit:      limit,
		TotalPages: pages,
		HasNext:    page < pages,
		HasPrev:    page > 1,
	}
}
