package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrFeedDisconnected  = errors.New("quote feed disconnected")
	ErrStaleQuote        = errors.New("quote is stale")
	ErrNoQuote           = errors.New("no quote for symbol")
	ErrNoDepth           = errors.New("no depth for symbol")
	ErrInsufficientDepth = errors.New("insufficient order book depth")
	ErrPoolFull          = errors.New("depth pool at capacity")
	ErrInvalidLoop       = errors.New("invalid loop definition")
	ErrNotProfitable     = errors.New("loop not profitable at execution time")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrLockHeld          = errors.New("lock already held")
)
