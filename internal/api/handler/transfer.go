package handler

import (
	"net/http"

	"github.com/ayo6706/kenyabank/internal/service"
	"github.com/shopspring/decimal"
)

type TransferHandler struct {
	transfers *service.TransferService
	accounts  *service.AccountService
}

func NewTransferHandler(transfers *service.TransferService, accounts *service.AccountService) *TransferHandler {
	return &TransferHandler{transfers: transfers, accounts: accounts}
}

type transferRequest struct {
	ToAccount   string          `json:"to_account" validate:"required,len=12"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=255"`
}

// Transfer handles POST /api/transactions/transfer. The sender is always the
// caller's own account.
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "transaction/invalid-amount", "amount must be positive with at most two decimal places")
		return
	}

	from, err := h.accounts.AccountForUser(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, r, "resolve sender account", err)
		return
	}

	res, err := h.transfers.Transfer(r.Context(), service.TransferRequest{
		UserID:      p.UserID,
		Role:        p.Role,
		FromAccount: from.AccountNumber,
		ToAccount:   req.ToAccount,
		Amount:      amount,
		Description: req.Description,
		Meta:        requestMeta(r),
	})
	if err != nil {
		writeServiceError(w, r, "transfer", err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// History handles GET /api/transactions.
func (h *TransferHandler) History(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	txType, status, ok := transactionFilters(w, r)
	if !ok {
		return
	}
	page, err := h.accounts.History(r.Context(), p.UserID, queryInt(r, "page"), queryInt(r, "limit"), txType, status)
	if err != nil {
		writeServiceError(w, r, "list transactions", err)
		return
	}
	RespondJSON(w, http.StatusOK, page)
}

func transactionFilters(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	q := r.URL.Query()
	txType, status := q.Get("type"), q.Get("status")
	if err := validate.Var(txType, "omitempty,oneof=transfer deposit withdrawal external_deposit"); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-filter", "unknown transaction type")
		return "", "", false
	}
	if err := validate.Var(status, "omitempty,oneof=pending completed failed"); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-filter", "unknown transaction status")
		return "", "", false
	}
	return txType, status, true
}
