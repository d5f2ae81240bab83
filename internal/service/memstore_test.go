package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/google/uuid"
)

// memStore is an in-memory implementation of every store interface. Each
// method holds the mutex for its whole body, mirroring single-row atomicity.
type memStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	accounts map[string]*models.Account
	txs      []*models.Transaction
	audit    []models.AuditLog
	attempts []models.LoginAttempt

	creditErr      error
	creditNoRows   bool
	forceCreditErr error
	createTxErr    error
	settleErr      error
	lookupPanic    bool
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[uuid.UUID]*models.User{},
		accounts: map[string]*models.Account{},
	}
}

func (m *memStore) addAccount(number string, balance int64, active bool) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID := uuid.New()
	m.users[userID] = &models.User{
		ID:       userID,
		Email:    strings.ToLower(number) + "@example.com",
		FullName: "Holder " + number,
		Phone:    "2547" + number[len(number)-8:],
		Role:     domain.RoleCustomer,
		IsActive: true,
	}
	a := &models.Account{AccountNumber: number, UserID: userID, Balance: balance, IsActive: active, CreatedAt: time.Now()}
	m.accounts[number] = a
	cp := *a
	return &cp
}

func (m *memStore) balance(number string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[number].Balance
}

func (m *memStore) transactions() []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Transaction, len(m.txs))
	for i, t := range m.txs {
		out[i] = *t
	}
	return out
}

func (m *memStore) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.audit {
		out = append(out, a.Action)
	}
	return out
}

func (m *memStore) GetAccount(ctx context.Context, number string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[number]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) GetAccountByUserID(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.UserID == userID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (m *memStore) DebitAccount(ctx context.Context, number string, amount int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[number]
	if !ok || !a.IsActive || a.Balance < amount {
		return false, nil
	}
	a.Balance -= amount
	return true, nil
}

func (m *memStore) CreditAccount(ctx context.Context, number string, amount int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creditErr != nil {
		return false, m.creditErr
	}
	if m.creditNoRows {
		return false, nil
	}
	a, ok := m.accounts[number]
	if !ok || !a.IsActive {
		return false, nil
	}
	a.Balance += amount
	return true, nil
}

func (m *memStore) ForceCreditAccount(ctx context.Context, number string, amount int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forceCreditLocked(number, amount)
}

func (m *memStore) forceCreditLocked(number string, amount int64) (bool, error) {
	if m.forceCreditErr != nil {
		return false, m.forceCreditErr
	}
	a, ok := m.accounts[number]
	if !ok {
		return false, nil
	}
	a.Balance += amount
	return true, nil
}

func (m *memStore) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createTxErr != nil {
		return m.createTxErr
	}
	if t.CorrelationID != nil {
		for _, existing := range m.txs {
			if existing.CorrelationID != nil && *existing.CorrelationID == *t.CorrelationID {
				return errors.New("duplicate correlation id")
			}
		}
	}
	cp := *t
	cp.CreatedAt = time.Now().UTC()
	t.CreatedAt = cp.CreatedAt
	m.txs = append(m.txs, &cp)
	return nil
}

func (m *memStore) findByCorrelation(id string) *models.Transaction {
	for _, t := range m.txs {
		if t.CorrelationID != nil && *t.CorrelationID == id {
			return t
		}
	}
	return nil
}

func (m *memStore) GetTransactionByCorrelationID(ctx context.Context, id string) (*models.Transaction, error) {
	if m.lookupPanic {
		panic("lookup exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.findByCorrelation(id)
	if t == nil {
		return nil, domain.ErrUnknownCorrelation
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) SettleDeposit(ctx context.Context, s models.DepositSettlement) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settleErr != nil {
		return nil, m.settleErr
	}
	t := m.findByCorrelation(s.CorrelationID)
	if t == nil || t.Status != domain.TxStatusPending {
		return nil, domain.ErrNotPending
	}
	amount := t.Amount
	if s.Amount > 0 {
		amount = s.Amount
	}
	if ok, err := m.forceCreditLocked(*t.ToAccount, amount); err != nil || !ok {
		return nil, errors.New("credit failed")
	}
	t.Status = domain.TxStatusCompleted
	t.Amount = amount
	t.ReceiptNumber = strPtr(s.ReceiptNumber)
	t.PayerReference = strPtr(s.PayerReference)
	at := s.CompletedAt
	t.CompletedAt = &at
	cp := *t
	return &cp, nil
}

func (m *memStore) FailPendingDeposit(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.findByCorrelation(id)
	if t == nil || t.Status != domain.TxStatusPending {
		return false, nil
	}
	t.Status = domain.TxStatusFailed
	t.FailureReason = &reason
	t.CompletedAt = &at
	return true, nil
}

func (m *memStore) InsertAuditLog(ctx context.Context, entry models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.CreatedAt = time.Now()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *memStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memStore) CreateUserWithAccount(ctx context.Context, user *models.User, account *models.Account, opening *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email || u.Phone == user.Phone {
			return domain.ErrDuplicateUser
		}
	}
	user.CreatedAt = time.Now()
	u := *user
	a := *account
	m.users[u.ID] = &u
	m.accounts[a.AccountNumber] = &a
	if opening != nil {
		t := *opening
		m.txs = append(m.txs, &t)
	}
	return nil
}

func (m *memStore) RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.LoginAttempts++
	if u.LoginAttempts >= maxAttempts {
		lu := lockUntil
		u.LockedUntil = &lu
	}
	return u.LoginAttempts, u.LockedUntil, nil
}

func (m *memStore) RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.LoginAttempts = 0
	u.LockedUntil = nil
	u.LastLogin = &at
	return nil
}

func (m *memStore) InsertLoginAttempt(ctx context.Context, a models.LoginAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *memStore) ListTransactions(ctx context.Context, f models.TransactionFilter) ([]models.Transaction, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.Transaction
	for i := len(m.txs) - 1; i >= 0; i-- {
		t := m.txs[i]
		if f.AccountNumber != "" {
			from := t.FromAccount != nil && *t.FromAccount == f.AccountNumber
			to := t.ToAccount != nil && *t.ToAccount == f.AccountNumber
			if !from && !to {
				continue
			}
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		matched = append(matched, *t)
	}
	total := int64(len(matched))
	start := min(f.Offset, len(matched))
	end := min(start+f.Limit, len(matched))
	return matched[start:end], total, nil
}

func (m *memStore) UserStats(ctx context.Context, number string, since time.Time) (*models.UserStats, error) {
	recent, _, _ := m.ListTransactions(ctx, models.TransactionFilter{AccountNumber: number, Limit: 5})
	all, _, _ := m.ListTransactions(ctx, models.TransactionFilter{AccountNumber: number, Limit: 1 << 20})
	byType := map[string]*models.TypeAggregate{}
	var lastThirty int64
	for _, t := range all {
		if !t.CreatedAt.Before(since) {
			lastThirty++
		}
		if t.Status != domain.TxStatusCompleted {
			continue
		}
		agg, ok := byType[t.Type]
		if !ok {
			agg = &models.TypeAggregate{Type: t.Type}
			byType[t.Type] = agg
		}
		agg.Count++
		agg.Amount += t.Amount
	}
	stats := &models.UserStats{RecentTransactions: recent, LastThirtyDays: lastThirty, ByType: []models.TypeAggregate{}}
	for _, agg := range byType {
		stats.ByType = append(stats.ByType, *agg)
	}
	sort.Slice(stats.ByType, func(i, j int) bool { return stats.ByType[i].Type < stats.ByType[j].Type })
	return stats, nil
}

func (m *memStore) AdminStats(ctx context.Context, since time.Time) (*models.AdminStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.AdminStats{LastSevenDays: []models.DailyActivity{}}
	for _, u := range m.users {
		stats.TotalUsers++
		if u.IsActive {
			stats.ActiveUsers++
		}
	}
	for _, t := range m.txs {
		stats.TotalTransactions++
		if t.Status == domain.TxStatusCompleted {
			stats.CompletedVolume += t.Amount
		}
		if t.Type == domain.TxTypeExternalDeposit && t.Status == domain.TxStatusPending {
			stats.PendingDeposits++
		}
	}
	return stats, nil
}

func (m *memStore) ListUsers(ctx context.Context, f models.UserFilter) ([]models.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.User
	for _, u := range m.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Active != nil && u.IsActive != *f.Active {
			continue
		}
		matched = append(matched, *u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Email < matched[j].Email })
	total := int64(len(matched))
	start := min(f.Offset, len(matched))
	end := min(start+f.Limit, len(matched))
	return matched[start:end], total, nil
}

func (m *memStore) SetAccountActive(ctx context.Context, number string, active bool) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[number]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	a.IsActive = active
	cp := *a
	return &cp, nil
}

func (m *memStore) DeleteAuditLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.audit[:0]
	var n int64
	for _, a := range m.audit {
		if a.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	m.audit = kept
	return n, nil
}

func (m *memStore) DeleteLoginAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.attempts[:0]
	var n int64
	for _, a := range m.attempts {
		if a.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	m.attempts = kept
	return n, nil
}

func (m *memStore) DeleteExpiredIdempotencyKeys(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *memStore) CountStalePendingDeposits(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.txs {
		if t.Type == domain.TxTypeExternalDeposit && t.Status == domain.TxStatusPending && t.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}
