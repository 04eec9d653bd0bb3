// Package types holds the wire shapes of the control API and the error
// taxonomy shared by the daemon's domain packages.
package types
