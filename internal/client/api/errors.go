package api

import (
	"errors"
	"fmt"

	"github.com/pulldeck/pulldeck/internal/client/events"
)

// Machine-readable error codes the backend attaches to 401/403 bodies.
const (
	// CodeTokenExpired is the only refreshable condition: refresh once,
	// retry once.
	CodeTokenExpired = "TOKEN_EXPIRED"

	// Fatal conditions. Callers must not retry.
	CodeSessionReplaced     = "SESSION_REPLACED"
	CodeSessionRevoked      = "SESSION_REVOKED"
	CodeUserSuspended       = "USER_SUSPENDED"
	CodeRefreshTokenInvalid = "REFRESH_TOKEN_INVALID"
	CodeRefreshTokenExpired = "REFRESH_TOKEN_EXPIRED"
)

// Error is a typed HTTP failure. RequestID carries the correlation header
// value when the backend provided one.
type Error struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *Error) Error() string {
	s := fmt.Sprintf("api error: status %d", e.Status)
	if e.Code != "" {
		s += " " + e.Code
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.RequestID != "" {
		s += " (request id " + e.RequestID + ")"
	}
	return s
}

// Fatal reports whether the error is a terminal auth condition: credentials
// are cleared and subscribers notified, re-login is the only way forward.
func (e *Error) Fatal() bool {
	switch e.Code {
	case CodeSessionReplaced, CodeSessionRevoked, CodeUserSuspended,
		CodeRefreshTokenInvalid, CodeRefreshTokenExpired:
		return true
	}
	return false
}

// Refreshable reports whether the error signals plain token expiry.
func (e *Error) Refreshable() bool {
	return e.Code == CodeTokenExpired
}

// AsError unwraps err into *Error when possible.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// eventKind maps a fatal code onto the broadcast kind, so subscribers can
// surface the right remediation ("Account Suspended" vs "someone else
// logged in" vs plain re-login).
func eventKind(code string) events.AuthEventKind {
	switch code {
	case CodeSessionReplaced:
		return events.KindSessionReplaced
	case CodeUserSuspended:
		return events.KindAccountSuspended
	default:
		return events.KindSessionTerminated
	}
}
