package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/ayo6706/kenyabank/internal/testutil/pgtest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, store *Store, number string, balance int64) *models.Account {
	t.Helper()
	id := uuid.New()
	user := &models.User{
		ID:           id,
		Email:        "user_" + id.String()[:8] + "@example.com",
		FullName:     "Test User",
		Phone:        "2547" + id.String()[:8],
		PasswordHash: "x",
		Role:         domain.RoleCustomer,
		IsActive:     true,
	}
	account := &models.Account{AccountNumber: number, UserID: id, Balance: balance, IsActive: true}
	require.NoError(t, store.CreateUserWithAccount(context.Background(), user, account, nil))
	return account
}

func TestCreateUserAndAccount(t *testing.T) {
	store := NewStore(pgtest.Open(t))
	ctx := context.Background()

	acc := seedAccount(t, store, "KB0000000001", 1000)

	got, err := store.GetAccount(ctx, acc.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.Balance)
	assert.True(t, got.IsActive)

	byUser, err := store.GetAccountByUserID(ctx, acc.UserID)
	require.NoError(t, err)
	assert.Equal(t, acc.AccountNumber, byUser.AccountNumber)

	_, err = store.GetAccount(ctx, "KB00000000FF")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestDebitAccount_Conditional(t *testing.T) {
	store := NewStore(pgtest.Open(t))
	ctx := context.Background()
	seedAccount(t, store, "KB0000000002", 500)

	ok, err := store.DebitAccount(ctx, "KB0000000002", 501)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.DebitAccount(ctx, "KB0000000002", 500)
	require.NoError(t, err)
	assert.True(t, ok)

	acc, err := store.GetAccount(ctx, "KB0000000002")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Balance)
}

func TestDebitAccount_ConcurrentNeverOverdraws(t *testing.T) {
	store := NewStore(pgtest.Open(t))
	ctx := context.Background()
	seedAccount(t, store, "KB0000000003", 1000)

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.DebitAccount(ctx, "KB0000000003", 100)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), wins.Load())
	acc, err := store.GetAccount(ctx, "KB0000000003")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Balance)
}

func TestSettleDeposit_OnlyOnce(t *testing.T) {
	store := NewStore(pgtest.Open(t))
	ctx := context.Background()
	acc := seedAccount(t, store, "KB0000000004", 0)

	corr := "ws_CO_" + uuid.NewString()
	to := acc.AccountNumber
	require.NoError(t, store.CreateTransaction(ctx, &models.Transaction{
		ID:            uuid.New(),
		ToAccount:     &to,
		Amount:        10_000,
		Type:          domain.TxTypeExternalDeposit,
		Status:        domain.TxStatusPending,
		CorrelationID: &corr,
	}))

	settlement := models.DepositSettlement{
		CorrelationID: corr,
		Amount:        10_000,
		ReceiptNumber: "QGR7XYZ",
		CompletedAt:   time.Now().UTC(),
	}

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.SettleDeposit(ctx, settlement); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
	got, err := store.GetAccount(ctx, to)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), got.Balance)

	_, err = store.SettleDeposit(ctx, settlement)
	assert.ErrorIs(t, err, domain.ErrNotPending)
}

func TestRecordLoginFailure_Locks(t *testing.T) {
	store := NewStore(pgtest.Open(t))
	ctx := context.Background()
	acc := seedAccount(t, store, "KB0000000005", 0)
	lockUntil := time.Now().Add(15 * time.Minute)

	attempts, locked, err := store.RecordLoginFailure(ctx, acc.UserID, 2, lockUntil)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Nil(t, locked)

	attempts, locked, err = store.RecordLoginFailure(ctx, acc.UserID, 2, lockUntil)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	require.NotNil(t, locked)

	require.NoError(t, store.RecordLoginSuccess(ctx, acc.UserID, time.Now()))
	user, err := store.GetUserByID(ctx, acc.UserID)
	require.NoError(t, err)
	assert.Zero(t, user.LoginAttempts)
	assert.Nil(t, user.LockedUntil)
}

func TestIdempotencyKey_ReserveOnce(t *testing.T) {
	store := NewStore(pgtest.Open(t))
	ctx := context.Background()

	params := ReserveIdempotencyKeyParams{
		IdempotencyKey: "user:key-1",
		RequestHash:    "abc",
		Method:         "POST",
		Path:           "/api/transactions/transfer",
		ExpiresAt:      time.Now().Add(time.Hour),
	}
	_, err := store.ReserveIdempotencyKey(ctx, params)
	require.NoError(t, err)

	_, err = store.ReserveIdempotencyKey(ctx, params)
	assert.True(t, isNoRows(err))

	row, err := store.FinalizeIdempotencyKey(ctx, FinalizeIdempotencyKeyParams{
		IdempotencyKey: "user:key-1",
		RequestHash:    "abc",
		ResponseStatus: 201,
		ResponseBody:   []byte(`{"ok":true}`),
		ContentType:    "application/json",
	})
	require.NoError(t, err)
	assert.False(t, row.InProgress)
	assert.Equal(t, int32(201), row.ResponseStatus)
}
