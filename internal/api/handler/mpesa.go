package handler

import (
	"io"
	"net/http"

	"github.com/ayo6706/kenyabank/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxCallbackBytes = 64 << 10

type MpesaHandler struct {
	deposits  *service.DepositService
	callbacks *service.CallbackService
}

func NewMpesaHandler(deposits *service.DepositService, callbacks *service.CallbackService) *MpesaHandler {
	return &MpesaHandler{deposits: deposits, callbacks: callbacks}
}

type depositRequest struct {
	Phone         string          `json:"phone" validate:"required,ke_phone"`
	Amount        decimal.Decimal `json:"amount"`
	AccountNumber string          `json:"account_number" validate:"required,len=12"`
}

// Deposit handles POST /api/mpesa/deposit.
func (h *MpesaHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "transaction/invalid-amount", "amount must be a positive whole number of shillings")
		return
	}

	res, err := h.deposits.Initiate(r.Context(), service.DepositRequest{
		UserID:        p.UserID,
		Phone:         req.Phone,
		Amount:        amount,
		AccountNumber: req.AccountNumber,
		Meta:          requestMeta(r),
	})
	if err != nil {
		writeServiceError(w, r, "mpesa deposit", err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// Callback handles POST /api/mpesa/callback. The provider reads only the
// ack body, so the status is always 200.
func (h *MpesaHandler) Callback(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
	if err != nil {
		zap.L().Warn("read mpesa callback body", zap.Error(err))
		raw = nil
	}
	RespondJSON(w, http.StatusOK, h.callbacks.Reconcile(r.Context(), raw))
}
