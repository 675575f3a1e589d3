package provision

import "errors"

var (
	ErrNotFound         = errors.New("provision request not found")
	ErrAlreadyProcessed = errors.New("provision request already completed or expired")
	ErrExpired          = errors.New("provision request expired")
	ErrUserNotFound     = errors.New("user not found")
	ErrUserBlocked      = errors.New("user is blocked")
)
