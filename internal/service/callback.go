package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/kenyabank/internal/cache"
	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/ayo6706/kenyabank/internal/observability"
	"github.com/ayo6706/kenyabank/internal/security"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CallbackAck is the body returned to the provider. ResultCode 0 means the
// callback was accepted and must not be retried.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var (
	ackSuccess          = CallbackAck{ResultCode: 0, ResultDesc: "Success"}
	ackAlreadyProcessed = CallbackAck{ResultCode: 0, ResultDesc: "Already processed"}
	ackMissingID        = CallbackAck{ResultCode: 1, ResultDesc: "Missing CheckoutRequestID"}
	ackMalformed        = CallbackAck{ResultCode: 1, ResultDesc: "Malformed callback"}
	ackNotFound         = CallbackAck{ResultCode: 1, ResultDesc: "Transaction not found"}
	ackInternal         = CallbackAck{ResultCode: 1, ResultDesc: "Internal server error"}
)

type CallbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

var errMissingCheckoutID = fmt.Errorf("%w: missing CheckoutRequestID", domain.ErrMalformedCallback)

// resultCode accepts both numeric and string encodings.
type resultCode int

func (c *resultCode) UnmarshalJSON(b []byte) error {
	v, err := json.Number(strings.Trim(string(b), `"`)).Int64()
	if err != nil {
		return fmt.Errorf("result code %s: %w", b, err)
	}
	*c = resultCode(v)
	return nil
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        *resultCode       `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackPayload struct {
	Body struct {
		STKCallback *STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// callbackDetails are the typed values of the metadata items.
type callbackDetails struct {
	Amount        int64 // cents, zero when absent
	ReceiptNumber string
	PhoneNumber   string
}

// CallbackService reconciles provider callbacks against pending deposits.
// A deposit is credited at most once no matter how often the provider
// delivers the callback.
type CallbackService struct {
	ledger Ledger
	audit  *AuditService
	caches *cache.Caches
	now    func() time.Time
}

func NewCallbackService(ledger Ledger, audit *AuditService, caches *cache.Caches) *CallbackService {
	if caches == nil {
		caches = cache.Disabled()
	}
	return &CallbackService{ledger: ledger, audit: audit, caches: caches, now: time.Now}
}

// Reconcile processes a raw callback body and always produces an ack.
func (s *CallbackService) Reconcile(ctx context.Context, raw []byte) (ack CallbackAck) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("panic while reconciling callback", zap.Any("panic", rec))
			observability.IncrementCallback("panic")
			ack = ackInternal
		}
	}()

	cb, err := parseCallback(raw)
	if err != nil {
		zap.L().Warn("malformed mpesa callback", zap.Error(err))
		observability.IncrementCallback("malformed")
		if errors.Is(err, errMissingCheckoutID) {
			return ackMissingID
		}
		return ackMalformed
	}
	ctx = context.WithoutCancel(ctx)
	logger := zap.L().With(
		zap.String("checkout_request_id", cb.CheckoutRequestID),
		zap.Int("result_code", int(*cb.ResultCode)),
	)
	logger.Info("mpesa callback received")

	tx, err := s.ledger.GetTransactionByCorrelationID(ctx, cb.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownCorrelation) {
			logger.Warn("callback for unknown transaction")
			observability.IncrementCallback("unknown")
			return ackNotFound
		}
		logger.Error("lookup transaction for callback", zap.Error(err))
		observability.IncrementCallback("error")
		return ackInternal
	}

	if *cb.ResultCode == 0 {
		return s.complete(ctx, logger, tx, cb)
	}
	return s.fail(ctx, logger, tx, cb)
}

func (s *CallbackService) complete(ctx context.Context, logger *zap.Logger, tx *models.Transaction, cb *STKCallback) CallbackAck {
	if !canTransition(tx.Status, domain.TxStatusCompleted) {
		logger.Info("duplicate callback ignored", zap.String("status", tx.Status))
		observability.IncrementCallback("duplicate")
		return ackAlreadyProcessed
	}

	details, err := parseDetails(cb.CallbackMetadata)
	if err != nil {
		logger.Warn("unreadable callback metadata, using requested amount", zap.Error(err))
	}
	if details.Amount > 0 && details.Amount != tx.Amount {
		logger.Warn("confirmed amount differs from requested",
			zap.Int64("requested", tx.Amount), zap.Int64("confirmed", details.Amount))
	}

	settled, err := s.ledger.SettleDeposit(ctx, models.DepositSettlement{
		CorrelationID:  cb.CheckoutRequestID,
		Amount:         details.Amount,
		ReceiptNumber:  details.ReceiptNumber,
		PayerReference: details.PhoneNumber,
		CompletedAt:    s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotPending) {
			logger.Info("callback lost settlement race")
			observability.IncrementCallback("duplicate")
			return ackAlreadyProcessed
		}
		logger.Error("settle deposit", zap.Error(err))
		observability.IncrementCallback("error")
		return ackInternal
	}

	observability.IncrementCallback("completed")
	s.invalidate(ctx, settled)
	s.audit.Record(ctx, settled.UserID, "mpesa_deposit_completed", "mpesa", map[string]any{
		"transaction_id": settled.ID.String(),
		"amount":         settled.Amount,
		"receipt":        details.ReceiptNumber,
		"phone":          security.MaskPhone(details.PhoneNumber),
	}, RequestMeta{IPAddress: "mpesa_callback", UserAgent: "mpesa_system"})
	logger.Info("mpesa deposit completed", zap.Int64("amount", settled.Amount))
	return ackSuccess
}

func (s *CallbackService) fail(ctx context.Context, logger *zap.Logger, tx *models.Transaction, cb *STKCallback) CallbackAck {
	if !canTransition(tx.Status, domain.TxStatusFailed) {
		logger.Info("duplicate callback ignored", zap.String("status", tx.Status))
		observability.IncrementCallback("duplicate")
		return ackAlreadyProcessed
	}

	reason := strings.TrimSpace(cb.ResultDesc)
	if reason == "" {
		reason = "Unknown error"
	}
	failed, err := s.ledger.FailPendingDeposit(ctx, cb.CheckoutRequestID, reason, s.now().UTC())
	if err != nil {
		logger.Error("fail pending deposit", zap.Error(err))
		observability.IncrementCallback("error")
		return ackInternal
	}
	if !failed {
		observability.IncrementCallback("duplicate")
		return ackAlreadyProcessed
	}

	observability.IncrementCallback("failed")
	s.invalidate(ctx, tx)
	s.audit.Record(ctx, tx.UserID, "mpesa_deposit_failed", "mpesa", map[string]any{
		"transaction_id": tx.ID.String(),
		"reason":         reason,
	}, RequestMeta{IPAddress: "mpesa_callback", UserAgent: "mpesa_system"})
	logger.Info("mpesa deposit failed", zap.String("reason", reason))
	return ackSuccess
}

func (s *CallbackService) invalidate(ctx context.Context, tx *models.Transaction) {
	keys := accountKeys(tx)
	s.caches.Accounts.Delete(ctx, keys...)
	s.caches.UserStats.Delete(ctx, keys...)
	s.caches.AdminStats.Delete(ctx, cache.AdminStatsKey)
}

func parseCallback(raw []byte) (*STKCallback, error) {
	var payload CallbackPayload
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedCallback, err)
	}
	cb := payload.Body.STKCallback
	if cb == nil {
		return nil, fmt.Errorf("%w: missing stkCallback", domain.ErrMalformedCallback)
	}
	cb.CheckoutRequestID = strings.TrimSpace(cb.CheckoutRequestID)
	if cb.CheckoutRequestID == "" {
		return nil, errMissingCheckoutID
	}
	if cb.ResultCode == nil {
		return nil, fmt.Errorf("%w: missing ResultCode", domain.ErrMalformedCallback)
	}
	return cb, nil
}

// parseDetails reads Amount (shillings), MpesaReceiptNumber and PhoneNumber.
func parseDetails(meta *CallbackMetadata) (callbackDetails, error) {
	var d callbackDetails
	if meta == nil {
		return d, nil
	}
	var amountErr error
	for _, item := range meta.Item {
		switch item.Name {
		case "Amount":
			cents, err := amountValue(item.Value)
			if err != nil {
				amountErr = fmt.Errorf("amount: %w", err)
				continue
			}
			d.Amount = cents
		case "MpesaReceiptNumber":
			d.ReceiptNumber = stringValue(item.Value)
		case "PhoneNumber":
			d.PhoneNumber = stringValue(item.Value)
		}
	}
	return d, amountErr
}

// amountValue converts a metadata amount to cents. Non-positive amounts
// yield zero so the requested amount is used instead.
func amountValue(v any) (int64, error) {
	amount, err := decimalValue(v)
	if err != nil {
		return 0, err
	}
	if !amount.IsPositive() {
		return 0, nil
	}
	return domain.FromDecimal(amount)
}

func decimalValue(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case json.Number:
		return decimal.NewFromString(val.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(val))
	case float64:
		return decimal.NewFromFloat(val), nil
	case nil:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported value type %T", v)
	}
}

func stringValue(v any) string {
	switch val := v.(type) {
	case json.Number:
		return val.String()
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
