package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/kenyabank/internal/cache"
	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/security"
	"go.uber.org/zap"
)

const (
	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	tokenKey     = "access"
	tokenTimeout = 10 * time.Second
	// tokenMargin is subtracted from the provider's expires_in.
	tokenMargin = 5 * time.Minute
)

var eat = time.FixedZone("EAT", 3*60*60)

// MpesaConfig configures the Daraja client.
type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

// MpesaGateway talks to the Safaricom Daraja API.
type MpesaGateway struct {
	cfg    MpesaConfig
	client *http.Client
	tokens *cache.Namespace[cache.AccessToken]
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type providerError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// NewMpesaGateway creates a Daraja client. tokens may be nil, in which case
// the access token is cached in process only.
func NewMpesaGateway(cfg MpesaConfig, tokens *cache.Namespace[cache.AccessToken]) *MpesaGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &MpesaGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		tokens: tokens,
		now:    time.Now,
	}
}

// Password derives the STK password: base64(shortcode + passkey + timestamp).
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

func (g *MpesaGateway) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := g.now().In(eat).Format("20060102150405")
	payload := stkPushPayload{
		BusinessShortCode: g.cfg.ShortCode,
		Password:          Password(g.cfg.ShortCode, g.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount,
		PartyA:            req.Phone,
		PartyB:            g.cfg.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       g.cfg.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.Description,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal stk push: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+stkPushPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stk push request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: stk push: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read stk push response: %v", domain.ErrProviderUnavailable, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		g.invalidateToken(ctx)
	}
	if resp.StatusCode != http.StatusOK {
		var pe providerError
		_ = json.Unmarshal(raw, &pe)
		zap.L().Warn("mpesa stk push rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("error_code", pe.ErrorCode),
			zap.String("error_message", pe.ErrorMessage),
			zap.String("phone", security.MaskPhone(req.Phone)))
		return nil, fmt.Errorf("%w: stk push status %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}

	var out STKPushResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode stk push response: %v", domain.ErrProviderUnavailable, err)
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: stk push response code %q: %s", domain.ErrProviderUnavailable, out.ResponseCode, out.ResponseDescription)
	}
	return &out, nil
}

func (g *MpesaGateway) Ping(ctx context.Context) error {
	_, err := g.accessToken(ctx)
	return err
}

// accessToken returns a cached OAuth token, fetching a new one when needed.
// Tokens live for an hour; every instance stops using one at the expiry
// recorded when it was fetched.
func (g *MpesaGateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	if g.token != "" && g.now().Before(g.tokenExpiry) {
		t := g.token
		g.mu.Unlock()
		return t, nil
	}
	g.mu.Unlock()

	if e, ok := g.tokens.Get(ctx, tokenKey); ok && e.Value != "" && g.now().Before(e.ExpiresAt) {
		g.remember(e)
		return e.Value, nil
	}

	e, err := g.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	g.remember(e)
	g.tokens.SetWithTTL(ctx, tokenKey, e, e.ExpiresAt.Sub(g.now()))
	return e.Value, nil
}

func (g *MpesaGateway) remember(e cache.AccessToken) {
	g.mu.Lock()
	g.token = e.Value
	g.tokenExpiry = e.ExpiresAt
	g.mu.Unlock()
}

// tokenLifetime is expires_in less a safety margin, capped at MpesaTokenTTL.
func tokenLifetime(expiresIn string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(expiresIn))
	if err != nil || secs <= 0 {
		return cache.MpesaTokenTTL
	}
	life := time.Duration(secs)*time.Second - tokenMargin
	if life <= 0 {
		return time.Duration(secs) * time.Second / 2
	}
	return min(life, cache.MpesaTokenTTL)
}

func (g *MpesaGateway) invalidateToken(ctx context.Context) {
	g.mu.Lock()
	g.token = ""
	g.mu.Unlock()
	g.tokens.Delete(ctx, tokenKey)
}

func (g *MpesaGateway) fetchToken(ctx context.Context) (cache.AccessToken, error) {
	ctx, cancel := context.WithTimeout(ctx, tokenTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return cache.AccessToken{}, fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(g.cfg.ConsumerKey, g.cfg.ConsumerSecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return cache.AccessToken{}, fmt.Errorf("%w: token request: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		zap.L().Error("mpesa token request failed", zap.Int("status", resp.StatusCode))
		return cache.AccessToken{}, fmt.Errorf("%w: token status %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&tr); err != nil {
		return cache.AccessToken{}, fmt.Errorf("%w: decode token: %v", domain.ErrProviderUnavailable, err)
	}
	if tr.AccessToken == "" {
		return cache.AccessToken{}, fmt.Errorf("%w: empty access token", domain.ErrProviderUnavailable)
	}
	return cache.AccessToken{
		Value:     tr.AccessToken,
		ExpiresAt: g.now().Add(tokenLifetime(tr.ExpiresIn)),
	}, nil
}
