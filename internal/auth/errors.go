package auth

import "errors"

var (
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrMissingSecret is returned when no signing secret is configured.
	ErrMissingSecret = errors.New("auth: signing secret is not configured")
	// ErrEmptyPassword rejects blank passwords before hashing.
	ErrEmptyPassword = errors.New("auth: password is empty")
)
