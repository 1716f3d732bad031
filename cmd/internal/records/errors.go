package records

import "errors"

// Sentinel errors (stable for errors.Is and for mapping to API responses).
var (
	ErrInvalidKey     = errors.New("invalid_key")
	ErrInvalidAccount = errors.New("invalid_account")
)
