package domain

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"

	TxTypeTransfer        = "transfer"
	TxTypeDeposit         = "deposit"
	TxTypeWithdrawal      = "withdrawal"
	TxTypeExternalDeposit = "external_deposit"

	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"

	// AccountNumberPrefix is followed by 10 upper-case hex characters.
	AccountNumberPrefix = "KB"

	Currency = "KES"
)

// Per-transaction transfer limits in cents.
const (
	CustomerTransferLimit int64 = 50_000_00
	AdminTransferLimit    int64 = 500_000_00
)

// Bounds for provider-initiated deposits in cents.
const (
	MinExternalDeposit int64 = 1_00
	MaxExternalDeposit int64 = 50_000_00
)

// TransferLimit returns the single-transaction ceiling for role.
func TransferLimit(role string) int64 {
	if role == RoleAdmin {
		return AdminTransferLimit
	}
	return CustomerTransferLimit
}
