package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	ErrInvalidOperation   = errors.New("invalid operation")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrUpstream           = errors.New("upstream error")
	ErrAlreadyCompleted   = errors.New("already completed")
	ErrRateLimited        = errors.New("too many requests")

	// ErrStaleWrite is returned by stores when a conditional update lost a race
	// with a concurrent writer. Callers reload and re-evaluate.
	ErrStaleWrite = errors.New("stale write")
)
