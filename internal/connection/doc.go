// Package connection manages the long-lived WebSocket connections opened by
// strip controllers.
//
// Each accepted connection becomes a Link registered in the device registry
// under the id from the URL. The handler goroutine runs the read loop for
// the lifetime of the connection; inbound frames are logged and otherwise
// ignored. A keepalive goroutine pings the controller and the read deadline
// is extended on every pong.
//
// When the read loop ends the link is released from the registry with a
// compare-and-delete, so a connection that was superseded by a newer one
// for the same id leaves the newer entry alone.
//
// Manager implements device.Sender: a failed write closes the link and is
// never retried.
package connection
