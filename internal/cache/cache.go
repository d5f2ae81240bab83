// Package cache provides typed, best-effort Redis namespaces. Every failure
// degrades to a miss or a no-op so callers stay correct without Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/ayo6706/kenyabank/internal/observability"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Namespace stores values of one type under a fixed key prefix.
type Namespace[T any] struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewNamespace returns a namespace over client. A nil client disables caching.
func NewNamespace[T any](client redis.Cmdable, prefix string, ttl time.Duration) *Namespace[T] {
	return &Namespace[T]{client: client, prefix: prefix, ttl: ttl}
}

func (n *Namespace[T]) key(k string) string {
	return n.prefix + k
}

// Get returns the cached value and whether it was found.
func (n *Namespace[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	if n == nil || n.client == nil {
		return zero, false
	}
	raw, err := n.client.Get(ctx, n.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("cache get failed", zap.String("namespace", n.prefix), zap.Error(err))
			observability.IncrementCacheOp(n.prefix, "get", "error")
			return zero, false
		}
		observability.IncrementCacheOp(n.prefix, "get", "miss")
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		zap.L().Warn("cache decode failed", zap.String("namespace", n.prefix), zap.Error(err))
		observability.IncrementCacheOp(n.prefix, "get", "error")
		return zero, false
	}
	observability.IncrementCacheOp(n.prefix, "get", "hit")
	return v, true
}

// Set stores v with the namespace TTL.
func (n *Namespace[T]) Set(ctx context.Context, key string, v T) {
	if n == nil {
		return
	}
	n.SetWithTTL(ctx, key, v, n.ttl)
}

// SetWithTTL stores v with an explicit TTL.
func (n *Namespace[T]) SetWithTTL(ctx context.Context, key string, v T, ttl time.Duration) {
	if n == nil || n.client == nil || ttl <= 0 {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		zap.L().Warn("cache encode failed", zap.String("namespace", n.prefix), zap.Error(err))
		return
	}
	if err := n.client.Set(ctx, n.key(key), payload, ttl).Err(); err != nil {
		zap.L().Warn("cache set failed", zap.String("namespace", n.prefix), zap.Error(err))
		observability.IncrementCacheOp(n.prefix, "set", "error")
		return
	}
	observability.IncrementCacheOp(n.prefix, "set", "ok")
}

// Delete removes keys from the namespace.
func (n *Namespace[T]) Delete(ctx context.Context, keys ...string) {
	if n == nil || n.client == nil || len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = n.key(k)
	}
	if err := n.client.Del(ctx, full...).Err(); err != nil {
		zap.L().Warn("cache delete failed", zap.String("namespace", n.prefix), zap.Error(err))
		observability.IncrementCacheOp(n.prefix, "delete", "error")
		return
	}
	observability.IncrementCacheOp(n.prefix, "delete", "ok")
}

// AccessToken is a provider token with its absolute expiry, so every
// instance sharing the entry stops using it at the same moment.
type AccessToken struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Caches groups the namespaces used by the service.
type Caches struct {
	Users      *Namespace[models.User]
	Accounts   *Namespace[models.Account]
	UserStats  *Namespace[models.UserStats]
	AdminStats *Namespace[models.AdminStats]
	MpesaToken *Namespace[AccessToken]
	Revoked    *Namespace[bool]
}

const (
	UserTTL       = 15 * time.Minute
	AccountTTL    = 5 * time.Minute
	UserStatsTTL  = 5 * time.Minute
	AdminStatsTTL = 2 * time.Minute
	MpesaTokenTTL = 55 * time.Minute
)

// AdminStatsKey is the single key of the admin dashboard namespace.
const AdminStatsKey = "dashboard"

// New builds all namespaces over client, which may be nil.
func New(client redis.Cmdable) *Caches {
	return &Caches{
		Users:      NewNamespace[models.User](client, "user:", UserTTL),
		Accounts:   NewNamespace[models.Account](client, "account:", AccountTTL),
		UserStats:  NewNamespace[models.UserStats](client, "stats:user:", UserStatsTTL),
		AdminStats: NewNamespace[models.AdminStats](client, "stats:admin:", AdminStatsTTL),
		MpesaToken: NewNamespace[AccessToken](client, "mpesa:token:", MpesaTokenTTL),
		Revoked:    NewNamespace[bool](client, "revoked:", 0),
	}
}

// Disabled returns namespaces that never hit.
func Disabled() *Caches {
	return New(nil)
}
