package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pulldeck/pulldeck/internal/common"
)

// SessionClaims are the claims embedded in the backend's access token. The
// Subscription claim is optional: tokens issued before the entitlement schema
// change omit it.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID       string       `json:"uid,omitempty"`
	Subscription *Entitlement `json:"sub_status,omitempty"`
}

// DecodeSessionClaims decodes a session token without verifying its
// signature. The client has no signing key; the server remains the authority
// and the claims are used only for local scheduling decisions.
func DecodeSessionClaims(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// TokenExpiry extracts the expiry instant from a session token. Returns a
// zero time when the token carries no exp claim.
func TokenExpiry(tokenString string) (time.Time, error) {
	claims, err := DecodeSessionClaims(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}
