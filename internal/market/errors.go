package market

import "errors"

var (
	ErrDuplicateEmail        = errors.New("market: email already registered")
	ErrDuplicateRegistration = errors.New("market: registration already exists")
	ErrInvalidCredentials    = errors.New("market: invalid credentials")
	ErrInvalidTransition     = errors.New("market: invalid state transition")
	ErrNotFound              = errors.New("market: not found")
	ErrValidation            = errors.New("market: validation failed")
	ErrNotVerified           = errors.New("market: ngo not verified")
)
