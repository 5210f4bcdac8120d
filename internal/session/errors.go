package session

import (
	"errors"

	"github.com/maxsfamily/stripgate/internal/capability"
)

// Domain errors for the session package.
var (
	// ErrTokenInvalid is returned when a token cannot be resolved to a session.
	ErrTokenInvalid = errors.New("session: token invalid")

	// ErrTokenRefreshFailed is returned when the provider rejects a refresh.
	// A failed resolution that attempted a refresh wraps both errors.
	ErrTokenRefreshFailed = errors.New("session: token refresh failed")

	// ErrProviderRejected is returned by providers for a non-success response.
	ErrProviderRejected = errors.New("session: provider rejected request")
)

// CodeOf maps a session error to its platform error code.
func CodeOf(err error) capability.Code {
	switch {
	case errors.Is(err, ErrTokenInvalid):
		return capability.CodeTokenInvalid
	case errors.Is(err, ErrTokenRefreshFailed):
		return capability.CodeTokenRefreshFailed
	default:
		return ""
	}
}
