package adminpin

import "errors"

var (
	ErrPinNotSet  = errors.New("PIN not set or disabled")
	ErrInvalidPin = errors.New("invalid PIN")
	ErrPinLocked  = errors.New("PIN locked due to multiple failures")
)
