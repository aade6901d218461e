package protocols

import "errors"

var (
	// ErrUnsupportedPoolType is returned for pool types outside the closed Kind set.
	ErrUnsupportedPoolType = errors.New("unsupported pool type")
	// ErrHookNotImplemented is returned for hooks the router cannot model.
	ErrHookNotImplemented = errors.New("hook not implemented")
	// ErrSwapLimitExceeded is returned when a swap amount exceeds LimitAmountSwap.
	ErrSwapLimitExceeded = errors.New("swap amount exceeds the pool limit")
	// ErrTokenNotInPool is returned when a swap names a token the pool does not hold.
	ErrTokenNotInPool = errors.New("pool does not contain the tokens provided")
	// ErrInvalidPool is returned when pool construction parameters are inconsistent.
	ErrInvalidPool = errors.New("invalid pool")
	// ErrInvalidHookParams is returned when a known hook is missing its parameters.
	ErrInvalidHookParams = errors.New("invalid hook parameters")
)
