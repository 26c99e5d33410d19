// Package common contains shared constants and sentinel errors used across
// pulldeck components.
package common

const (
	// HeaderDeviceID carries the stable per-installation identifier on
	// session sync requests.
	HeaderDeviceID = "X-Device-Id"

	// HeaderRequestID is the correlation id echoed back by the backend.
	// It is captured on every response for diagnostics and support.
	HeaderRequestID = "X-Request-ID"
)
