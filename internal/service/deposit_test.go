package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/gateway"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	err      error
	requests []gateway.STKPushRequest
}

func (g *stubGateway) STKPush(ctx context.Context, req gateway.STKPushRequest) (*gateway.STKPushResponse, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.STKPushResponse{CheckoutRequestID: checkoutID, ResponseCode: "0"}, nil
}

func (g *stubGateway) Ping(ctx context.Context) error { return g.err }

func newDepositFixture(t *testing.T, gw gateway.Gateway) (*memStore, *DepositService, uuid.UUID) {
	t.Helper()
	store := newMemStore()
	acct := store.addAccount(acctA, 0, true)
	return store, NewDepositService(store, gw, NewAuditService(store), nil), acct.UserID
}

func TestInitiateDepositCreatesPendingRecord(t *testing.T) {
	gw := &stubGateway{}
	store, svc, userID := newDepositFixture(t, gw)

	res, err := svc.Initiate(context.Background(), DepositRequest{
		UserID:        userID,
		Phone:         "254708374149",
		Amount:        1_500_00,
		AccountNumber: strings.ToLower(acctA),
	})
	require.NoError(t, err)
	assert.Equal(t, checkoutID, res.CheckoutRequestID)

	require.Len(t, gw.requests, 1)
	assert.Equal(t, int64(1_500), gw.requests[0].Amount)
	assert.Equal(t, acctA, gw.requests[0].AccountReference)

	tx := depositTx(t, store)
	assert.Equal(t, res.TransactionID, tx.ID)
	assert.Equal(t, domain.TxStatusPending, tx.Status)
	assert.Equal(t, domain.TxTypeExternalDeposit, tx.Type)
	assert.Equal(t, int64(1_500_00), tx.Amount)
	assert.NotContains(t, tx.Description, "254708374149")
	assert.Equal(t, int64(0), store.balance(acctA), "balance moves only on callback")
}

func TestInitiateDepositThenCallback(t *testing.T) {
	store, deposits, userID := newDepositFixture(t, &stubGateway{})
	callbacks := NewCallbackService(store, nil, nil)
	ctx := context.Background()

	_, err := deposits.Initiate(ctx, DepositRequest{UserID: userID, Phone: "254708374149", Amount: 200_00, AccountNumber: acctA})
	require.NoError(t, err)

	ack := callbacks.Reconcile(ctx, successBody(checkoutID, "200"))
	require.Equal(t, 0, ack.ResultCode)
	assert.Equal(t, int64(200_00), store.balance(acctA))
}

func TestInitiateDepositValidation(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
	}{
		{"below minimum", 99},
		{"above maximum", domain.MaxExternalDeposit + 1_00},
		{"fractional shillings", 150_50},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gw := &stubGateway{}
			store, svc, userID := newDepositFixture(t, gw)
			_, err := svc.Initiate(context.Background(), DepositRequest{UserID: userID, Phone: "254708374149", Amount: tc.amount, AccountNumber: acctA})
			require.ErrorIs(t, err, domain.ErrInvalidAmount)
			assert.Empty(t, gw.requests)
			assert.Empty(t, store.transactions())
		})
	}
}

func TestInitiateDepositRejectsForeignAccount(t *testing.T) {
	gw := &stubGateway{}
	store, svc, userID := newDepositFixture(t, gw)
	store.addAccount(acctB, 0, true)

	_, err := svc.Initiate(context.Background(), DepositRequest{UserID: userID, Phone: "254708374149", Amount: 100_00, AccountNumber: acctB})
	require.ErrorIs(t, err, domain.ErrForbiddenAccount)
	assert.Empty(t, gw.requests)
	assert.Contains(t, store.auditActions(), "mpesa_deposit_unauthorized")
}

func TestInitiateDepositProviderFailure(t *testing.T) {
	gw := &stubGateway{err: errors.New("503 service unavailable")}
	store, svc, userID := newDepositFixture(t, gw)

	_, err := svc.Initiate(context.Background(), DepositRequest{UserID: userID, Phone: "254708374149", Amount: 100_00, AccountNumber: acctA})
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Empty(t, store.transactions())
}

func TestInitiateDepositWithMockGateway(t *testing.T) {
	store, svc, userID := newDepositFixture(t, gateway.NewMockGateway())

	res, err := svc.Initiate(context.Background(), DepositRequest{UserID: userID, Phone: "254708374149", Amount: 100_00, AccountNumber: acctA})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.CheckoutRequestID, "ws_CO_"))
	assert.Len(t, store.transactions(), 1)
}
