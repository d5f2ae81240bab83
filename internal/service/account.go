package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/kenyabank/internal/cache"
	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/google/uuid"
)

// AccountService serves balances, history and dashboards.
type AccountService struct {
	store  ReportStore
	audit  *AuditService
	caches *cache.Caches
	now    func() time.Time
}

func NewAccountService(store ReportStore, audit *AuditService, caches *cache.Caches) *AccountService {
	if caches == nil {
		caches = cache.Disabled()
	}
	return &AccountService{store: store, audit: audit, caches: caches, now: time.Now}
}

// AccountForUser returns the caller's account.
func (s *AccountService) AccountForUser(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	return s.store.GetAccountByUserID(ctx, userID)
}

// History returns a page of the caller's transactions.
func (s *AccountService) History(ctx context.Context, userID uuid.UUID, page, limit int, txType, status string) (*models.TransactionPage, error) {
	account, err := s.store.GetAccountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.listTransactions(ctx, account.AccountNumber, page, limit, txType, status)
}

func (s *AccountService) listTransactions(ctx context.Context, accountNumber string, page, limit int, txType, status string) (*models.TransactionPage, error) {
	page, limit, offset := pageBounds(page, limit)
	txs, total, err := s.store.ListTransactions(ctx, models.TransactionFilter{
		AccountNumber: accountNumber,
		Type:          txType,
		Status:        status,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return nil, err
	}
	return &models.TransactionPage{Transactions: txs, Page: models.NewPage(total, page, limit)}, nil
}

// DashboardStats returns the caller's dashboard, cached per account.
func (s *AccountService) DashboardStats(ctx context.Context, userID uuid.UUID) (*models.UserStats, error) {
	account, err := s.store.GetAccountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stats, ok := s.caches.UserStats.Get(ctx, account.AccountNumber); ok {
		return &stats, nil
	}

	stats, err := s.store.UserStats(ctx, account.AccountNumber, s.now().AddDate(0, 0, -30))
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	stats.AccountNumber = account.AccountNumber
	stats.Balance = account.Balance
	s.caches.UserStats.Set(ctx, account.AccountNumber, *stats)
	return stats, nil
}

// Account returns an account by number through the account cache.
func (s *AccountService) Account(ctx context.Context, accountNumber string) (*models.Account, error) {
	if a, ok := s.caches.Accounts.Get(ctx, accountNumber); ok {
		return &a, nil
	}
	a, err := s.store.GetAccount(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	s.caches.Accounts.Set(ctx, accountNumber, *a)
	return a, nil
}

// AdminService serves the administrator surface.
type AdminService struct {
	*AccountService
}

func NewAdminService(accounts *AccountService) *AdminService {
	return &AdminService{AccountService: accounts}
}

func (s *AdminService) Users(ctx context.Context, page, limit int, role string, active *bool) (*models.UserPage, error) {
	page, limit, offset := pageBounds(page, limit)
	users, total, err := s.store.ListUsers(ctx, models.UserFilter{Role: role, Active: active, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &models.UserPage{Users: users, Page: models.NewPage(total, page, limit)}, nil
}

func (s *AdminService) Transactions(ctx context.Context, page, limit int, txType, status string) (*models.TransactionPage, error) {
	return s.listTransactions(ctx, "", page, limit, txType, status)
}

func (s *AdminService) Dashboard(ctx context.Context) (*models.AdminStats, error) {
	if stats, ok := s.caches.AdminStats.Get(ctx, cache.AdminStatsKey); ok {
		return &stats, nil
	}
	stats, err := s.store.AdminStats(ctx, s.now().AddDate(0, 0, -7))
	if err != nil {
		return nil, fmt.Errorf("admin stats: %w", err)
	}
	s.caches.AdminStats.Set(ctx, cache.AdminStatsKey, *stats)
	return stats, nil
}

// SetAccountStatus activates or deactivates an account. Inactive accounts
// can neither send nor receive transfers.
func (s *AdminService) SetAccountStatus(ctx context.Context, adminID uuid.UUID, accountNumber string, active bool, meta RequestMeta) (*models.Account, error) {
	if accountNumber == "" {
		return nil, domain.ErrAccountNotFound
	}
	account, err := s.store.SetAccountActive(ctx, accountNumber, active)
	if err != nil {
		return nil, err
	}
	s.caches.Accounts.Delete(ctx, accountNumber)
	s.caches.UserStats.Delete(ctx, accountNumber)
	s.caches.AdminStats.Delete(ctx, cache.AdminStatsKey)
	s.audit.Record(ctx, &adminID, "account_status_changed", "account", map[string]any{
		"account_number": accountNumber,
		"active":         active,
	}, meta)
	return account, nil
}
