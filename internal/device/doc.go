// Package device provides the Device Registry for the strip gateway.
//
// The registry is the authoritative in-memory mirror of every strip the
// gateway knows about: its descriptor, its current State and the handle of
// its live connection, if any. State is volatile and lost on restart.
//
// Mutations go through the capability table:
//
//	reg := device.NewRegistry()
//	reg.SetSender(connManager)
//	out, err := reg.Apply(ctx, "kitchen", "brightness", json.RawMessage(`40`))
//	switch {
//	case err != nil:
//	    // device.CodeOf(err) is INVALID_VALUE, UNSUPPORTED_CAPABILITY or DEVICE_NOT_FOUND
//	case out.Unreachable:
//	    // state changed, no live link to send on
//	}
//
// Connections use Release rather than Deregister when they end, so a
// superseded connection never removes the entry of its replacement.
package device
