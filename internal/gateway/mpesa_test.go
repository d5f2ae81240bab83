package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayo6706/kenyabank/internal/cache"
	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDaraja struct {
	tokenCalls atomic.Int32
	pushCalls  atomic.Int32
	lastPush   stkPushPayload
	pushStatus int
	pushBody   any
}

func (f *fakeDaraja) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-123", ExpiresIn: "3599"})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		f.pushCalls.Add(1)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastPush))
		status := f.pushStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(f.pushBody)
	})
	return mux
}

func newTestGateway(t *testing.T, f *fakeDaraja, key string) *MpesaGateway {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	g := NewMpesaGateway(MpesaConfig{
		BaseURL:        srv.URL,
		ConsumerKey:    key,
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://bank.example/api/mpesa/callback",
		Timeout:        2 * time.Second,
	}, nil)
	g.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }
	return g
}

func TestMpesaGateway_STKPush(t *testing.T) {
	f := &fakeDaraja{pushBody: STKPushResponse{
		MerchantRequestID: "29115-34620561-1",
		CheckoutRequestID: "ws_CO_191220191020363925",
		ResponseCode:      "0",
	}}
	g := newTestGateway(t, f, "key")

	resp, err := g.STKPush(context.Background(), STKPushRequest{
		Phone:            "254712345678",
		Amount:           250,
		AccountReference: "KB0123456789",
		Description:      "KenyaBank deposit to KB0123456789",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", resp.CheckoutRequestID)

	assert.Equal(t, "20240301123000", f.lastPush.Timestamp)
	assert.Equal(t, Password("174379", "passkey", "20240301123000"), f.lastPush.Password)
	assert.Equal(t, int64(250), f.lastPush.Amount)
	assert.Equal(t, "254712345678", f.lastPush.PartyA)
	assert.Equal(t, "174379", f.lastPush.PartyB)
	assert.Equal(t, "CustomerPayBillOnline", f.lastPush.TransactionType)

	_, err = g.STKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load(), "token should be reused")
	assert.Equal(t, int32(2), f.pushCalls.Load())
}

// sharedTokens is a Redis stand-in that keeps entries until deleted, like a
// key read just before its TTL runs out.
type sharedTokens struct {
	redis.Cmdable
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newSharedTokens() *sharedTokens {
	return &sharedTokens{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *sharedTokens) Get(ctx context.Context, key string) *redis.StringCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (s *sharedTokens) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value.([]byte)
	s.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (s *sharedTokens) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestMpesaGateway_SharedTokenHonoursRecordedExpiry(t *testing.T) {
	f := &fakeDaraja{pushBody: STKPushResponse{CheckoutRequestID: "ws_CO_1", ResponseCode: "0"}}
	g := newTestGateway(t, f, "key")
	base := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	clock := base
	g.now = func() time.Time { return clock }

	rdb := newSharedTokens()
	g.tokens = cache.NewNamespace[cache.AccessToken](rdb, "mpesa:token:", cache.MpesaTokenTTL)
	ctx := context.Background()
	// Fetched by another instance 54 minutes ago.
	g.tokens.Set(ctx, tokenKey, cache.AccessToken{Value: "tok-123", ExpiresAt: base.Add(time.Minute)})

	_, err := g.STKPush(ctx, STKPushRequest{Phone: "254712345678", Amount: 10})
	require.NoError(t, err)
	assert.Zero(t, f.tokenCalls.Load(), "shared token is still valid")

	clock = base.Add(2 * time.Minute)
	_, err = g.STKPush(ctx, STKPushRequest{Phone: "254712345678", Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load(), "expired shared token must not be reused")

	stored, ok := g.tokens.Get(ctx, tokenKey)
	require.True(t, ok)
	assert.True(t, clock.Add(3599*time.Second-tokenMargin).Equal(stored.ExpiresAt), stored.ExpiresAt)
	assert.Equal(t, 3599*time.Second-tokenMargin, rdb.ttls["mpesa:token:"+tokenKey])
}

func TestMpesaGateway_IgnoresExpiredSharedToken(t *testing.T) {
	f := &fakeDaraja{pushBody: STKPushResponse{CheckoutRequestID: "ws_CO_1", ResponseCode: "0"}}
	g := newTestGateway(t, f, "key")
	g.tokens = cache.NewNamespace[cache.AccessToken](newSharedTokens(), "mpesa:token:", cache.MpesaTokenTTL)
	ctx := context.Background()
	g.tokens.Set(ctx, tokenKey, cache.AccessToken{Value: "tok-stale", ExpiresAt: g.now().Add(-time.Second)})

	_, err := g.STKPush(ctx, STKPushRequest{Phone: "254712345678", Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestTokenLifetime(t *testing.T) {
	assert.Equal(t, 3599*time.Second-tokenMargin, tokenLifetime("3599"))
	assert.Equal(t, cache.MpesaTokenTTL, tokenLifetime(""))
	assert.Equal(t, cache.MpesaTokenTTL, tokenLifetime("86400"))
	assert.Equal(t, 2*time.Minute, tokenLifetime("240"))
}

func TestMpesaGateway_BadCredentials(t *testing.T) {
	f := &fakeDaraja{}
	g := newTestGateway(t, f, "wrong")

	_, err := g.STKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 10})
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Zero(t, f.pushCalls.Load())

	assert.ErrorIs(t, g.Ping(context.Background()), domain.ErrProviderUnavailable)
}

func TestMpesaGateway_RejectedPush(t *testing.T) {
	f := &fakeDaraja{
		pushStatus: http.StatusBadRequest,
		pushBody:   providerError{ErrorCode: "400.002.02", ErrorMessage: "Bad Request - Invalid PhoneNumber"},
	}
	g := newTestGateway(t, f, "key")

	_, err := g.STKPush(context.Background(), STKPushRequest{Phone: "0712", Amount: 10})
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestMpesaGateway_NonZeroResponseCode(t *testing.T) {
	f := &fakeDaraja{pushBody: STKPushResponse{ResponseCode: "1", ResponseDescription: "rejected"}}
	g := newTestGateway(t, f, "key")

	_, err := g.STKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 10})
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestMpesaGateway_Unreachable(t *testing.T) {
	g := NewMpesaGateway(MpesaConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, nil)
	_, err := g.STKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 10})
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestMockGateway(t *testing.T) {
	g := NewMockGateway()
	resp, err := g.STKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 10})
	require.NoError(t, err)
	assert.Contains(t, resp.CheckoutRequestID, "ws_CO_")

	_, err = g.STKPush(context.Background(), STKPushRequest{Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	g.FailureRate = 1
	_, err = g.STKPush(context.Background(), STKPushRequest{Amount: 5})
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestMockGateway_CheckoutIDsAreUnique(t *testing.T) {
	g := NewMockGateway()
	seen := make(map[string]bool)
	for i := 0; i < 2000; i++ {
		resp, err := g.STKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 10})
		require.NoError(t, err)
		require.False(t, seen[resp.CheckoutRequestID], resp.CheckoutRequestID)
		seen[resp.CheckoutRequestID] = true
	}
}
