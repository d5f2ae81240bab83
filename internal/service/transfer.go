package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/kenyabank/internal/cache"
	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/ayo6706/kenyabank/internal/observability"
	"github.com/ayo6706/kenyabank/internal/security"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransferRequest describes a movement of funds between two accounts.
type TransferRequest struct {
	UserID      uuid.UUID
	Role        string
	FromAccount string
	ToAccount   string
	Amount      int64 // cents
	Description string
	Meta        RequestMeta
}

type TransferResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
}

// TransferService moves funds with a conditional debit followed by a credit.
// A failed credit is compensated by re-crediting the sender.
type TransferService struct {
	ledger Ledger
	audit  *AuditService
	caches *cache.Caches
	signer *security.Signer
	now    func() time.Time
}

func NewTransferService(ledger Ledger, audit *AuditService, caches *cache.Caches, signer *security.Signer) *TransferService {
	if caches == nil {
		caches = cache.Disabled()
	}
	return &TransferService{
		ledger: ledger,
		audit:  audit,
		caches: caches,
		signer: signer,
		now:    time.Now,
	}
}

func (s *TransferService) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	req.FromAccount = strings.TrimSpace(req.FromAccount)
	req.ToAccount = strings.ToUpper(strings.TrimSpace(req.ToAccount))

	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidAmount, req.Amount)
	}
	if req.FromAccount == "" {
		return nil, domain.ErrAccountNotFound
	}
	if req.FromAccount == req.ToAccount {
		return nil, domain.ErrSelfTransfer
	}
	if limit := domain.TransferLimit(req.Role); req.Amount > limit {
		return nil, fmt.Errorf("%w: maximum is %s", domain.ErrLimitExceeded, domain.NewMoney(limit))
	}

	recipient, err := s.ledger.GetAccount(ctx, req.ToAccount)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			observability.IncrementTransfer("recipient_not_found")
			return nil, domain.ErrRecipientNotFound
		}
		return nil, fmt.Errorf("lookup recipient: %w", err)
	}
	if !recipient.IsActive {
		observability.IncrementTransfer("recipient_inactive")
		return nil, domain.ErrRecipientInactive
	}

	debited, err := s.ledger.DebitAccount(ctx, req.FromAccount, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("debit sender: %w", err)
	}
	if !debited {
		return nil, s.debitRejection(ctx, req.FromAccount)
	}

	// From here on the sender has been debited; the request context may be
	// cancelled but the outcome must still be settled.
	settleCtx := context.WithoutCancel(ctx)
	txID := uuid.New()
	logger := zap.L().With(
		zap.String("transaction_id", txID.String()),
		zap.String("from_account", req.FromAccount),
		zap.String("to_account", req.ToAccount),
		zap.Int64("amount", req.Amount),
	)

	credited, creditErr := s.ledger.CreditAccount(settleCtx, req.ToAccount, req.Amount)
	if creditErr != nil || !credited {
		return nil, s.compensate(settleCtx, logger, txID, req, creditErr)
	}

	record := s.newRecord(txID, req, domain.TxStatusCompleted, "")
	if err := s.ledger.CreateTransaction(settleCtx, record); err != nil {
		logger.Error("transfer succeeded but transaction record write failed", zap.Error(err))
	}

	observability.IncrementTransfer("completed")
	s.invalidate(settleCtx, req.FromAccount, req.ToAccount)
	s.audit.Record(settleCtx, uuidPtr(req.UserID), "transfer_completed", "transaction", map[string]any{
		"transaction_id": txID.String(),
		"to_account":     req.ToAccount,
		"amount":         req.Amount,
	}, req.Meta)
	logger.Info("transfer completed")

	return &TransferResult{
		TransactionID: txID,
		Status:        domain.TxStatusCompleted,
		Message:       fmt.Sprintf("Transferred %s to %s", domain.NewMoney(req.Amount), req.ToAccount),
	}, nil
}

// debitRejection explains why the conditional debit matched no row.
func (s *TransferService) debitRejection(ctx context.Context, from string) error {
	sender, err := s.ledger.GetAccount(ctx, from)
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		observability.IncrementTransfer("sender_not_found")
		return domain.ErrAccountNotFound
	case err == nil && !sender.IsActive:
		observability.IncrementTransfer("sender_inactive")
		return domain.ErrAccountInactive
	default:
		observability.IncrementTransfer("insufficient_funds")
		return domain.ErrInsufficientFunds
	}
}

func (s *TransferService) compensate(ctx context.Context, logger *zap.Logger, txID uuid.UUID, req TransferRequest, creditErr error) error {
	reason := "recipient account update failed"
	if creditErr != nil {
		reason = creditErr.Error()
	}
	logger.Warn("credit failed, re-crediting sender", zap.String("reason", reason))

	restored, err := s.ledger.ForceCreditAccount(ctx, req.FromAccount, req.Amount)
	if err != nil || !restored {
		observability.IncrementCompensationFailure()
		observability.IncrementTransfer("compensation_failed")
		logger.Error("CRITICAL: compensation failed, sender debited without credit",
			zap.NamedError("credit_error", creditErr), zap.Error(err), zap.Bool("restored", restored))
		if err == nil {
			err = errors.New("sender account not updated")
		}
		return fmt.Errorf("%w: %v", domain.ErrCompensationFailed, err)
	}

	record := s.newRecord(txID, req, domain.TxStatusFailed, reason)
	if err := s.ledger.CreateTransaction(ctx, record); err != nil {
		logger.Error("failed transfer record write failed", zap.Error(err))
	}
	observability.IncrementTransfer("recipient_update_failed")
	s.invalidate(ctx, req.FromAccount, req.ToAccount)
	s.audit.Record(ctx, uuidPtr(req.UserID), "transfer_failed", "transaction", map[string]any{
		"transaction_id": txID.String(),
		"to_account":     req.ToAccount,
		"amount":         req.Amount,
		"reason":         reason,
	}, req.Meta)

	if creditErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrRecipientUpdateFailed, creditErr)
	}
	return domain.ErrRecipientUpdateFailed
}

func (s *TransferService) newRecord(id uuid.UUID, req TransferRequest, status, reason string) *models.Transaction {
	now := s.now().UTC()
	from, to := req.FromAccount, req.ToAccount
	t := &models.Transaction{
		ID:            id,
		FromAccount:   &from,
		ToAccount:     &to,
		Amount:        req.Amount,
		Type:          domain.TxTypeTransfer,
		Status:        status,
		Description:   req.Description,
		FailureReason: strPtr(reason),
		UserID:        uuidPtr(req.UserID),
		CompletedAt:   &now,
	}
	if s.signer != nil {
		t.Signature = s.signer.SignTransaction(id, from, to, req.Amount, now.Unix())
	}
	return t
}

func (s *TransferService) invalidate(ctx context.Context, accounts ...string) {
	s.caches.Accounts.Delete(ctx, accounts...)
	s.caches.UserStats.Delete(ctx, accounts...)
	s.caches.AdminStats.Delete(ctx, cache.AdminStatsKey)
}
