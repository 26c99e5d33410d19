package models

import "time"

// SubscriptionStatus mirrors the billing provider's subscription states.
type SubscriptionStatus string

const (
	SubscriptionOnTrial   SubscriptionStatus = "on_trial"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionUnpaid    SubscriptionStatus = "unpaid"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionNone      SubscriptionStatus = "none"
	SubscriptionUnknown   SubscriptionStatus = "unknown"
)

// Entitlement is the subscription snapshot embedded in the session token and
// cached client-side. It is a point-in-time value refreshed by the session
// sync; the cached copy and the token claim are never treated as
// independently authoritative.
type Entitlement struct {
	Active    bool               `json:"active"`
	Status    SubscriptionStatus `json:"status"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
}

// EffectiveActive reports whether the entitlement grants access at the given
// instant. An expiry in the past always wins over Status.
func (e Entitlement) EffectiveActive(now time.Time) bool {
	if e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
		return false
	}
	return e.Active
}

// AssumedActive is the fallback entitlement for tokens issued before the
// subscription claim existed: assume active, verify on first sync.
func AssumedActive() Entitlement {
	return Entitlement{Active: true, Status: SubscriptionUnknown}
}
