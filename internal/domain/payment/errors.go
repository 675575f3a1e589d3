package payment

import "errors"

var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrNotFound            = errors.New("payment request not found")
	ErrAlreadyProcessed    = errors.New("payment request already used or expired")
	ErrExpired             = errors.New("payment request expired")
	ErrCardNotProvisioned  = errors.New("invalid or unprovisioned card")
	ErrUserBlocked         = errors.New("user is blocked")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotOwner            = errors.New("payment request belongs to another merchant")
)
