package auth

import "errors"

// Domain errors for the auth package.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrOperatorDisabled   = errors.New("auth: operator login not configured")
)
