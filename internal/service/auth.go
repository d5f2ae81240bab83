package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/kenyabank/internal/auth"
	"github.com/ayo6706/kenyabank/internal/cache"
	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/ayo6706/kenyabank/internal/observability"
	"github.com/ayo6706/kenyabank/internal/security"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// AuthConfig tunes login protection and onboarding.
type AuthConfig struct {
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	// LoginRate is a limiter format string such as "5-15m", applied per email.
	LoginRate string
	// WelcomeBonus is credited to every new customer account, in cents.
	WelcomeBonus int64
}

type RegisterRequest struct {
	Email    string
	FullName string
	Phone    string
	Password string
	Meta     RequestMeta
}

type LoginRequest struct {
	Email    string
	Password string
	Meta     RequestMeta
}

type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AuthService owns registration, login and token revocation.
type AuthService struct {
	users        UserStore
	tokens       *auth.TokenManager
	audit        *AuditService
	caches       *cache.Caches
	loginLimiter *limiter.Limiter
	cfg          AuthConfig
	now          func() time.Time
}

func NewAuthService(users UserStore, tokens *auth.TokenManager, audit *AuditService, caches *cache.Caches, cfg AuthConfig) (*AuthService, error) {
	if caches == nil {
		caches = cache.Disabled()
	}
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.LoginRate == "" {
		cfg.LoginRate = "5-15m"
	}
	rate, err := parseRate(cfg.LoginRate)
	if err != nil {
		return nil, err
	}
	return &AuthService{
		users:        users,
		tokens:       tokens,
		audit:        audit,
		caches:       caches,
		loginLimiter: limiter.New(memory.NewStore(), rate),
		cfg:          cfg,
		now:          time.Now,
	}, nil
}

// parseRate accepts "<limit>-<period>" with a Go duration period ("5-15m")
// as well as the limiter's own single-letter periods ("5-M").
func parseRate(formatted string) (limiter.Rate, error) {
	if rate, err := limiter.NewRateFromFormatted(formatted); err == nil {
		return rate, nil
	}
	parts := strings.SplitN(formatted, "-", 2)
	if len(parts) != 2 {
		return limiter.Rate{}, fmt.Errorf("invalid rate %q", formatted)
	}
	var limit int64
	if _, err := fmt.Sscanf(parts[0], "%d", &limit); err != nil || limit <= 0 {
		return limiter.Rate{}, fmt.Errorf("invalid rate limit %q", formatted)
	}
	period, err := time.ParseDuration(parts[1])
	if err != nil || period <= 0 {
		return limiter.Rate{}, fmt.Errorf("invalid rate period %q", formatted)
	}
	return limiter.Rate{Formatted: formatted, Limit: limit, Period: period}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a customer, their account and the welcome bonus.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.Profile, error) {
	return s.createUser(ctx, req, domain.RoleCustomer, s.cfg.WelcomeBonus)
}

// CreateAdmin bootstraps an administrator without a bonus.
func (s *AuthService) CreateAdmin(ctx context.Context, req RegisterRequest) (*models.Profile, error) {
	return s.createUser(ctx, req, domain.RoleAdmin, 0)
}

func (s *AuthService) createUser(ctx context.Context, req RegisterRequest, role string, bonus int64) (*models.Profile, error) {
	hash, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        normalizeEmail(req.Email),
		FullName:     strings.TrimSpace(req.FullName),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	account := &models.Account{
		AccountNumber: newAccountNumber(),
		UserID:        user.ID,
		Balance:       bonus,
		IsActive:      true,
	}
	var opening *models.Transaction
	if bonus > 0 {
		now := s.now().UTC()
		to := account.AccountNumber
		opening = &models.Transaction{
			ID:          uuid.New(),
			ToAccount:   &to,
			Amount:      bonus,
			Type:        domain.TxTypeDeposit,
			Status:      domain.TxStatusCompleted,
			Description: "Welcome bonus",
			UserID:      &user.ID,
			CompletedAt: &now,
		}
	}

	if err := s.users.CreateUserWithAccount(ctx, user, account, opening); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &user.ID, "user_registered", "user", map[string]any{
		"email":          user.Email,
		"role":           role,
		"account_number": account.AccountNumber,
	}, req.Meta)
	zap.L().Info("user registered", zap.String("user_id", user.ID.String()), zap.String("role", role))

	return &models.Profile{User: *user, Account: account}, nil
}

// Login verifies credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := normalizeEmail(req.Email)

	lctx, err := s.loginLimiter.Get(ctx, "login:"+email)
	if err != nil {
		zap.L().Warn("login limiter unavailable", zap.Error(err))
	} else if lctx.Reached {
		s.recordAttempt(ctx, email, req.Meta, false, "rate_limited")
		return nil, domain.ErrTooManyAttempts
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.recordAttempt(ctx, email, req.Meta, false, "unknown_email")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		s.recordAttempt(ctx, email, req.Meta, false, "locked")
		return nil, domain.ErrUserLocked
	}
	if !user.IsActive {
		s.recordAttempt(ctx, email, req.Meta, false, "inactive")
		return nil, domain.ErrUserInactive
	}

	if !security.CheckPassword(user.PasswordHash, req.Password) {
		attempts, lockedUntil, err := s.users.RecordLoginFailure(ctx, user.ID, s.cfg.MaxLoginAttempts, now.Add(s.cfg.LockoutDuration))
		if err != nil {
			zap.L().Warn("record login failure", zap.Error(err))
		}
		s.recordAttempt(ctx, email, req.Meta, false, "invalid_password")
		s.audit.Record(ctx, &user.ID, "login_failed", "auth", map[string]any{"attempts": attempts}, req.Meta)
		if lockedUntil != nil && now.Before(*lockedUntil) {
			return nil, domain.ErrUserLocked
		}
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.users.RecordLoginSuccess(ctx, user.ID, now.UTC()); err != nil {
		zap.L().Warn("record login success", zap.Error(err))
	}
	s.caches.Users.Delete(ctx, user.ID.String())

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	s.recordAttempt(ctx, email, req.Meta, true, "")
	s.audit.Record(ctx, &user.ID, "login_success", "auth", nil, req.Meta)

	return &LoginResult{
		AccessToken: token.AccessToken,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.tokens.TTL().Seconds()),
	}, nil
}

func (s *AuthService) recordAttempt(ctx context.Context, email string, meta RequestMeta, success bool, reason string) {
	result := "success"
	if !success {
		result = reason
	}
	observability.IncrementLogin(result)
	err := s.users.InsertLoginAttempt(context.WithoutCancel(ctx), models.LoginAttempt{
		Email:         email,
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
		Success:       success,
		FailureReason: reason,
	})
	if err != nil {
		zap.L().Warn("record login attempt", zap.Error(err))
	}
}

// Logout revokes the token id until the token would have expired.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, tokenID string, expiresAt time.Time, meta RequestMeta) {
	if ttl := expiresAt.Sub(s.now()); tokenID != "" && ttl > 0 {
		s.caches.Revoked.SetWithTTL(ctx, tokenID, true, ttl)
	}
	s.caches.Users.Delete(ctx, userID.String())
	s.audit.Record(ctx, &userID, "logout", "auth", nil, meta)
}

// IsRevoked reports whether a token id was revoked by logout.
func (s *AuthService) IsRevoked(ctx context.Context, tokenID string) bool {
	revoked, ok := s.caches.Revoked.Get(ctx, tokenID)
	return ok && revoked
}

// ActiveUser loads a user through the cache and rejects inactive ones.
func (s *AuthService) ActiveUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	key := id.String()
	if u, ok := s.caches.Users.Get(ctx, key); ok {
		if !u.IsActive {
			return nil, domain.ErrUserInactive
		}
		return &u, nil
	}
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.caches.Users.Set(ctx, key, *u)
	if !u.IsActive {
		return nil, domain.ErrUserInactive
	}
	return u, nil
}

// Profile returns the user and their account.
func (s *AuthService) Profile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	u, err := s.ActiveUser(ctx, id)
	if err != nil {
		return nil, err
	}
	account, err := s.users.GetAccountByUserID(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}
	return &models.Profile{User: *u, Account: account}, nil
}
