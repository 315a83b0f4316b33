package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidOrder        = errors.New("invalid order parameters")
	ErrUnknownOrderStatus  = errors.New("unexpected order status")
	ErrThinBook            = errors.New("order book too thin for pricing")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrLockHeld            = errors.New("lock already held")
)
