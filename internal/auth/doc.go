// Package auth authenticates the gateway's operator-facing surfaces.
//
// Three credentials exist:
//   - the static API key (X-API-Key) used by strip controllers and operator
//     endpoints, compared in constant time by CheckAPIKey
//   - the operator account (login + Argon2id password hash) used for basic
//     auth on the root page and for POST /api/v1/auth/login
//   - short-lived HS256 operator access tokens issued at login
//
// Platform users never authenticate here; their bearer tokens are resolved
// by the session package against the external identity provider.
package auth
