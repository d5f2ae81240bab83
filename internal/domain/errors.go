package domain

import "errors"

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrSelfTransfer          = errors.New("cannot transfer to the same account")
	ErrLimitExceeded         = errors.New("amount exceeds transaction limit")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountInactive       = errors.New("account is inactive")
	ErrForbiddenAccount      = errors.New("account does not belong to caller")
	ErrRecipientNotFound     = errors.New("recipient account not found")
	ErrRecipientInactive     = errors.New("recipient account is inactive")
	ErrRecipientUpdateFailed = errors.New("recipient account update failed")
	// ErrCompensationFailed means the sender was debited and could not be restored.
	ErrCompensationFailed  = errors.New("compensation failed")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrUnknownCorrelation  = errors.New("transaction not found for correlation id")
	ErrMalformedCallback   = errors.New("malformed callback")
	ErrNotPending          = errors.New("transaction is not pending")

	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUser      = errors.New("email or phone already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserInactive       = errors.New("user is inactive")
	ErrUserLocked         = errors.New("account temporarily locked")
	ErrTooManyAttempts    = errors.New("too many login attempts")
)
