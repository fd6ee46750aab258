package service

import "errors"

// Validation failures. All of these are raised before any ledger call is
// attempted, so a caller can retry with corrected input.
var (
	ErrNotFound             = errors.New("not found")
	ErrUnknownActor         = errors.New("unknown actor")
	ErrForbidden            = errors.New("forbidden")
	ErrIllegalTransition    = errors.New("illegal status transition")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidCredentials   = errors.New("invalid username or password")
)
