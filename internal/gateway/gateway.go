package gateway

import "context"

// STKPushRequest asks the provider to prompt a customer's phone for payment.
// Amount is in whole shillings, the provider's smallest unit.
type STKPushRequest struct {
	Phone            string
	Amount           int64
	AccountReference string
	Description      string
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// Gateway represents the external mobile-money provider.
type Gateway interface {
	// STKPush initiates a customer-approved payment. The returned
	// CheckoutRequestID correlates the later callback.
	STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error)
	// Ping verifies the provider is reachable and credentials are accepted.
	Ping(ctx context.Context) error
}
