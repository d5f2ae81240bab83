package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/ayo6706/kenyabank/internal/domain"
)

// MockGateway simulates the provider for local development and tests.
// It accepts every push unless FailureRate says otherwise.
//
// Checkout ids carry a per-process sequence, so they are unique within one
// process but may collide across instances or restarts. Do not run several
// mock instances against one database.
type MockGateway struct {
	// FailureRate is the probability of failure (0.0 to 1.0).
	FailureRate float64
	// Delay simulates provider latency.
	Delay time.Duration
}

// NewMockGateway creates a MockGateway that always succeeds immediately.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

var mockSequence atomic.Uint64

func (g *MockGateway) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("gateway call canceled: %w", ctx.Err())
		}
	}

	if rand.Float64() < g.FailureRate {
		return nil, fmt.Errorf("%w: mock gateway failure", domain.ErrProviderUnavailable)
	}

	// Format: ws_CO_DDMMYYYYHHMMSS<5 random digits><sequence>, like the
	// provider's checkout ids.
	stamp := time.Now().In(eat).Format("02012006150405")
	seq := mockSequence.Add(1)
	return &STKPushResponse{
		MerchantRequestID:   fmt.Sprintf("MOCK-%05d", rand.Intn(100000)),
		CheckoutRequestID:   fmt.Sprintf("ws_CO_%s%05d%d", stamp, rand.Intn(100000), seq),
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}, nil
}

func (g *MockGateway) Ping(ctx context.Context) error {
	return ctx.Err()
}
