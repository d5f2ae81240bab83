package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/kenyabank/internal/cache"
	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/gateway"
	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/ayo6706/kenyabank/internal/security"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DepositRequest struct {
	UserID        uuid.UUID
	Phone         string
	Amount        int64 // cents, whole shillings only
	AccountNumber string
	Meta          RequestMeta
}

type DepositResult struct {
	Message           string    `json:"message"`
	CheckoutRequestID string    `json:"checkout_request_id"`
	TransactionID     uuid.UUID `json:"transaction_id"`
}

// DepositService starts provider-initiated deposits. The money arrives later
// through CallbackService.
type DepositService struct {
	store   DepositStore
	gateway gateway.Gateway
	audit   *AuditService
	caches  *cache.Caches
}

func NewDepositService(store DepositStore, gw gateway.Gateway, audit *AuditService, caches *cache.Caches) *DepositService {
	if caches == nil {
		caches = cache.Disabled()
	}
	return &DepositService{store: store, gateway: gw, audit: audit, caches: caches}
}

func (s *DepositService) Initiate(ctx context.Context, req DepositRequest) (*DepositResult, error) {
	req.AccountNumber = strings.ToUpper(strings.TrimSpace(req.AccountNumber))
	if req.Amount < domain.MinExternalDeposit || req.Amount > domain.MaxExternalDeposit {
		return nil, fmt.Errorf("%w: must be between %s and %s", domain.ErrInvalidAmount,
			domain.NewMoney(domain.MinExternalDeposit), domain.NewMoney(domain.MaxExternalDeposit))
	}
	shillings, whole := domain.NewMoney(req.Amount).WholeShillings()
	if !whole {
		return nil, fmt.Errorf("%w: must be whole shillings", domain.ErrInvalidAmount)
	}

	own, err := s.store.GetAccountByUserID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup caller account: %w", err)
	}
	if own.AccountNumber != req.AccountNumber {
		s.audit.Record(ctx, uuidPtr(req.UserID), "mpesa_deposit_unauthorized", "mpesa", map[string]any{
			"attempted_account": req.AccountNumber,
		}, req.Meta)
		return nil, domain.ErrForbiddenAccount
	}
	if !own.IsActive {
		return nil, domain.ErrAccountInactive
	}

	push, err := s.gateway.STKPush(ctx, gateway.STKPushRequest{
		Phone:            req.Phone,
		Amount:           shillings,
		AccountReference: own.AccountNumber,
		Description:      "KenyaBank deposit to " + own.AccountNumber,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
		}
		return nil, err
	}

	to := own.AccountNumber
	correlationID := push.CheckoutRequestID
	record := &models.Transaction{
		ID:            uuid.New(),
		ToAccount:     &to,
		Amount:        req.Amount,
		Type:          domain.TxTypeExternalDeposit,
		Status:        domain.TxStatusPending,
		Description:   "M-Pesa deposit from " + security.MaskPhone(req.Phone),
		CorrelationID: &correlationID,
		UserID:        uuidPtr(req.UserID),
	}
	if err := s.store.CreateTransaction(context.WithoutCancel(ctx), record); err != nil {
		zap.L().Error("pending deposit write failed after stk push",
			zap.String("checkout_request_id", correlationID), zap.Error(err))
		return nil, fmt.Errorf("record pending deposit: %w", err)
	}

	s.caches.UserStats.Delete(ctx, to)
	s.audit.Record(ctx, uuidPtr(req.UserID), "mpesa_stk_push_initiated", "mpesa", map[string]any{
		"phone":          security.MaskPhone(req.Phone),
		"amount":         req.Amount,
		"account_number": to,
		"response_code":  push.ResponseCode,
	}, req.Meta)

	return &DepositResult{
		Message:           "STK Push sent to your phone",
		CheckoutRequestID: correlationID,
		TransactionID:     record.ID,
	}, nil
}
