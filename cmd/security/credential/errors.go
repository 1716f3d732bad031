package credential

import "errors"

// Public, stable errors for callers.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
	ErrInvalidHash      = errors.New("invalid credential hash")
	ErrPepperMissing    = errors.New("credential pepper missing")
	ErrPepperTooShort   = errors.New("credential pepper too short")
)
