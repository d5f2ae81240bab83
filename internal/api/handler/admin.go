package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ayo6706/kenyabank/internal/service"
	"github.com/go-chi/chi/v5"
)

type AdminHandler struct {
	svc *service.AdminService
}

func NewAdminHandler(svc *service.AdminService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// Users handles GET /api/admin/users.
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role := q.Get("role")
	if err := validate.Var(role, "omitempty,oneof=customer admin"); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-filter", "unknown role")
		return
	}
	var active *bool
	if raw := q.Get("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-filter", "active must be true or false")
			return
		}
		active = &v
	}

	page, err := h.svc.Users(r.Context(), queryInt(r, "page"), queryInt(r, "limit"), role, active)
	if err != nil {
		writeServiceError(w, r, "list users", err)
		return
	}
	RespondJSON(w, http.StatusOK, page)
}

// Transactions handles GET /api/admin/transactions.
func (h *AdminHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	txType, status, ok := transactionFilters(w, r)
	if !ok {
		return
	}
	page, err := h.svc.Transactions(r.Context(), queryInt(r, "page"), queryInt(r, "limit"), txType, status)
	if err != nil {
		writeServiceError(w, r, "list all transactions", err)
		return
	}
	RespondJSON(w, http.StatusOK, page)
}

// Dashboard handles GET /api/admin/dashboard.
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, r, "admin dashboard", err)
		return
	}
	RespondJSON(w, http.StatusOK, stats)
}

type accountStatusRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// SetAccountStatus handles PATCH /api/admin/accounts/{number}/status.
func (h *AdminHandler) SetAccountStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req accountStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	number := strings.ToUpper(chi.URLParam(r, "number"))
	account, err := h.svc.SetAccountStatus(r.Context(), p.UserID, number, *req.Active, requestMeta(r))
	if err != nil {
		writeServiceError(w, r, "set account status", err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}
