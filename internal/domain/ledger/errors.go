package ledger

import "errors"

var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserBlocked         = errors.New("user is blocked")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateClientTx   = errors.New("duplicate client transaction id")
)
