package device

import (
	"errors"

	"github.com/maxsfamily/stripgate/internal/capability"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // skip this device in a batch
//	}
var (
	// ErrDeviceNotFound is returned when a device ID is not in the registry.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceUnreachable signals that a device has no live connection.
	ErrDeviceUnreachable = errors.New("device: unreachable")

	// ErrInvalidDevice is returned when registering a device without an ID.
	ErrInvalidDevice = errors.New("device: invalid")
)

// CodeOf maps a registry or capability error to its platform error code.
// It returns "" for errors with no code.
func CodeOf(err error) capability.Code {
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		return capability.CodeDeviceNotFound
	case errors.Is(err, ErrDeviceUnreachable):
		return capability.CodeDeviceUnreachable
	default:
		return capability.CodeOf(err)
	}
}
