// Package http implements the control API handlers.
//
// Domain failures are reported as HTTP 200 with {"status":"fail","error":...};
// malformed input yields 400 and authentication failures 401 (see middleware).
package http
