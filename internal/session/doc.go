// Package session caches platform user sessions keyed by bearer token.
//
// A request's bearer token is resolved to a Session by Cache.Resolve:
//
//   - cached and not expired: returned as is
//   - cached, expired, with a refresh token: one refresh against the
//     provider's token endpoint; on failure the session is evicted
//   - otherwise: validated against the provider's user-info endpoint and
//     cached with the provider's time-to-live
//
// Every provider call is bounded by the configured timeout. A timeout
// resolves as ErrTokenInvalid. Concurrent resolutions of the same token
// share one provider round-trip.
package session
