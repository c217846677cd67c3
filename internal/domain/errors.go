package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrRateLimited    = errors.New("rate limited")
	ErrInvalidMapping = errors.New("invalid event mapping")
	ErrTradingPaused  = errors.New("trading paused by circuit breaker")
	ErrOrderTimeout   = errors.New("order confirmation timed out")
	ErrContextDone    = errors.New("context cancelled")
)
