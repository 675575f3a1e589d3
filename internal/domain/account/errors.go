package account

import "errors"

var (
	ErrNotFound           = errors.New("account not found")
	ErrEmailAlreadyExists = errors.New("email already registered")
	ErrInvalidStatus      = errors.New("status must be ACTIVE or BLOCKED")
)
