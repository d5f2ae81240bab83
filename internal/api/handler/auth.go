package handler

import (
	"net/http"

	"github.com/ayo6706/kenyabank/internal/service"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	FullName string `json:"full_name" validate:"required,min=2,max=100"`
	Phone    string `json:"phone" validate:"required,ke_phone"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=128"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	profile, err := h.svc.Register(r.Context(), service.RegisterRequest{
		Email:    req.Email,
		FullName: req.FullName,
		Phone:    req.Phone,
		Password: req.Password,
		Meta:     requestMeta(r),
	})
	if err != nil {
		writeServiceError(w, r, "register", err)
		return
	}
	RespondJSON(w, http.StatusCreated, profile)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), service.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		Meta:     requestMeta(r),
	})
	if err != nil {
		writeServiceError(w, r, "login", err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	profile, err := h.svc.Profile(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, r, "load profile", err)
		return
	}
	RespondJSON(w, http.StatusOK, profile)
}

// Logout handles POST /api/auth/logout. The token stays revoked until it
// would have expired.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	h.svc.Logout(r.Context(), p.UserID, p.TokenID, p.ExpiresAt, requestMeta(r))
	RespondJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}
