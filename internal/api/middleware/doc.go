// Package middleware provides the gin middleware of the control API:
// HTTP Basic authentication against the xauth option, CORS, per-client
// rate limiting, request ids, access logging and panic recovery.
package middleware
