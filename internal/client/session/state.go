package session

import "time"

// State is the coarse health of the running session.
type State string

const (
	StateOK                  State = "ok"
	StateWarningSubscription State = "warning_subscription"
	StateWarningSession      State = "warning_session"
	StateWarningSync         State = "warning_sync"
	StateExpired             State = "expired"
)

// ExpireReason explains why a session reached StateExpired.
type ExpireReason string

const (
	ReasonJWTExpired         ExpireReason = "jwt_expired"
	ReasonTokenExpiredAtInit ExpireReason = "token_expired_at_init"
	ReasonInvalidTokenAtInit ExpireReason = "invalid_token_at_init"
	ReasonSyncRejected       ExpireReason = "sync_rejected_by_server"
	ReasonNoSubscription     ExpireReason = "no_subscription"
	ReasonGracePeriodEnded   ExpireReason = "grace_period_ended"
)

// ForcesLogout reports whether the reason invokes the destructive expired
// callback. Subscription lapses and sync timeouts do not: those are
// recoverable by payment or reconnection and must not wipe the login.
func (r ExpireReason) ForcesLogout() bool {
	switch r {
	case ReasonJWTExpired, ReasonTokenExpiredAtInit, ReasonInvalidTokenAtInit, ReasonSyncRejected:
		return true
	}
	return false
}

// BlockReason explains a blocking forced-sync failure. The two reasons
// surface different remediation: re-login vs "someone else logged in".
type BlockReason string

const (
	BlockUsageLimit      BlockReason = "usage_limit"
	BlockSessionReplaced BlockReason = "session_replaced"
)

// Config holds the state machine's tunables.
type Config struct {
	// TickInterval is the health-check cadence.
	TickInterval time.Duration

	// SyncInterval is the silent background sync cadence.
	SyncInterval time.Duration

	// MaxSyncAge is the maximum time allowed without one successful sync
	// before a forced sync blocks the app; SyncWarnAge is when the warning
	// starts.
	MaxSyncAge  time.Duration
	SyncWarnAge time.Duration

	// GracePeriod extends usability past subscription expiry;
	// GraceWarnWindow is the final stretch of it that warns.
	GracePeriod     time.Duration
	GraceWarnWindow time.Duration

	// SessionWarnWindow is how close to JWT expiry the session warning
	// turns on.
	SessionWarnWindow time.Duration

	// InitialSyncDelay postpones the first sync so the network call does
	// not race app paint.
	InitialSyncDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		TickInterval:      time.Minute,
		SyncInterval:      5 * time.Minute,
		MaxSyncAge:        12 * time.Hour,
		SyncWarnAge:       11 * time.Hour,
		GracePeriod:       6 * time.Hour,
		GraceWarnWindow:   2 * time.Hour,
		SessionWarnWindow: 24 * time.Hour,
		InitialSyncDelay:  3 * time.Second,
	}
}

// Status is a point-in-time snapshot of the machine, safe to hand to UI.
type Status struct {
	State                 State
	Degraded              bool
	JWTExpiresAt          time.Time
	SubscriptionExpiresAt *time.Time
	GracePeriodEndsAt     *time.Time
	LastSyncAt            *time.Time
	SessionStartedAt      time.Time
	SyncRequired          bool
	BlockReason           BlockReason
	Online                bool
}
