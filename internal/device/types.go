package device

import (
	"context"

	"github.com/maxsfamily/stripgate/internal/capability"
)

// Strip class constants.
const (
	StripName = "Умная лента"
	TypeLight = "devices.types.light"
)

// Link is the outbound half of a device's live connection.
// Implementations must be comparable (pointer types) so the registry can
// tell a superseded link from the current one.
type Link interface {
	Send(ctx context.Context, command string) error
}

// Info is the descriptive hardware block reported to the platform.
type Info struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	HWVersion    string `json:"hw_version"`
	SWVersion    string `json:"sw_version"`
}

// Device is one strip known to the gateway.
//
// State is never serialised with the descriptor; it is reported per
// instance through Registry.Query.
type Device struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Type         string                  `json:"type"`
	Capabilities []capability.Descriptor `json:"capabilities"`
	Info         Info                    `json:"device_info"`
	State        capability.State        `json:"-"`

	link Link
}

// NewStrip returns a strip in its default state bound to link.
// A nil link describes a known but unreachable device.
func NewStrip(id string, link Link) *Device {
	return &Device{
		ID:           id,
		Name:         StripName,
		Type:         TypeLight,
		Capabilities: capability.StripDescriptors(),
		Info: Info{
			Manufacturer: "Maxs",
			Model:        "Strip",
			HWVersion:    "1.0",
			SWVersion:    "1.0",
		},
		State: capability.DefaultState(),
		link:  link,
	}
}

// Connected reports whether the device had a live link when it was read.
func (d *Device) Connected() bool {
	return d.link != nil
}

// DeepCopy returns an independent copy of the device. The link handle is
// shared, since it identifies a connection rather than owning data.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.Capabilities = capability.CopyDescriptors(d.Capabilities)
	return &cpy
}

// Outcome describes what happened to a successfully applied value.
type Outcome struct {
	// Command is the rendered wire command.
	Command string
	// Delivered is true when the command was written to a live link.
	Delivered bool
	// Unreachable is true when the device had no live link, so the state
	// changed locally but nothing was sent.
	Unreachable bool
}

// Err returns ErrDeviceUnreachable when the outcome carries that signal.
func (o Outcome) Err() error {
	if o.Unreachable {
		return ErrDeviceUnreachable
	}
	return nil
}
