package handler

import (
	"net/http"

	"github.com/ayo6706/kenyabank/internal/service"
)

type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

// Stats handles GET /api/dashboard/stats.
func (h *AccountHandler) Stats(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.DashboardStats(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, r, "dashboard stats", err)
		return
	}
	RespondJSON(w, http.StatusOK, stats)
}

// Balance handles GET /api/account.
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	account, err := h.svc.AccountForUser(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, r, "get account", err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}
