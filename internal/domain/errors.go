package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("concurrent modification")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	ErrInvalidOrder         = errors.New("invalid order parameters")
	ErrInvalidNonce         = errors.New("nonce must be positive")
	ErrHashMismatch         = errors.New("order hash mismatch")
	ErrHashNotComputable    = errors.New("order hash is supplied by the source protocol")
	ErrUnsupportedCallData  = errors.New("unsupported call data")
	ErrMalformedSignature   = errors.New("malformed signature")
	ErrCallDataMismatch     = errors.New("call data mismatch")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)
