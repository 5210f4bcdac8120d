package capability

import "errors"

// Domain errors for the capability package.
var (
	// ErrUnsupportedCapability is returned for an instance name not in the table.
	ErrUnsupportedCapability = errors.New("capability: unsupported instance")

	// ErrInvalidValue is returned when a value fails the instance's validator.
	ErrInvalidValue = errors.New("capability: invalid value")
)

// Code is the error code reported in a per-capability action result.
type Code string

// Error codes shared with the platform.
const (
	CodeInvalidValue          Code = "INVALID_VALUE"
	CodeUnsupportedCapability Code = "UNSUPPORTED_CAPABILITY"
	CodeDeviceNotFound        Code = "DEVICE_NOT_FOUND"
	CodeDeviceUnreachable     Code = "DEVICE_UNREACHABLE"
	CodeTokenInvalid          Code = "TOKEN_INVALID"
	CodeTokenRefreshFailed    Code = "TOKEN_REFRESH_FAILED"
)

// CodeOf maps a capability error to its code. It returns "" for errors
// that do not originate in this package.
func CodeOf(err error) Code {
	switch {
	case errors.Is(err, ErrUnsupportedCapability):
		return CodeUnsupportedCapability
	case errors.Is(err, ErrInvalidValue):
		return CodeInvalidValue
	default:
		return ""
	}
}
