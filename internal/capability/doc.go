// Package capability defines the capability table of the smart strip.
//
// The table maps each instance name the voice platform may reference
// (on, brightness, program, hsv) to its capability type, a strict decoder
// for the raw JSON value, a reader and writer over State, and the wire
// command token sent to the controller.
//
// Values cross the package boundary as a closed variant (Value) rather than
// as untyped JSON:
//
//	v, err := capability.Decode("brightness", json.RawMessage(`40`))
//	if err != nil {
//	    // errors.Is(err, capability.ErrInvalidValue)
//	}
//	cmd, err := capability.Apply(&state, "brightness", v) // "BRIGHTNESS:40"
//
// The package holds no mutable state; callers own the State they pass in
// and are responsible for serialising access to it.
package capability
