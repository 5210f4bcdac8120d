// Package api implements the HTTP surface of the strip gateway.
//
// This package provides:
//   - The voice platform endpoints under /smart-strip/v1.0 (device list,
//     query, action, unlink), authenticated by bearer tokens resolved
//     through the session cache
//   - Operator endpoints guarded by the X-API-Key header (device and user
//     inventory, single-instance reads and writes, session seeding)
//   - The controller WebSocket endpoint, handed to the connection manager
//   - Operator login issuing short-lived JWTs, the audit listing and a
//     ticket-authenticated event stream of registry changes
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Authentication
//
// Failures on the platform surface answer 401 with the platform error code
// (TOKEN_INVALID or TOKEN_REFRESH_FAILED). A wrong API key answers 403.
// The root page uses HTTP basic auth against the operator account.
//
// # Graceful Degradation
//
// The audit store and operator login are optional. Their endpoints answer
// 404 when the backing component is not configured; nothing else changes.
package api
