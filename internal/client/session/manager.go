// Package session owns the client's session reconciliation state machine: a
// minute-cadence health evaluator plus a five-minute background sync that
// together keep the cached JWT, the cached subscription entitlement, and the
// single-active-device invariant aligned with the backend.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulldeck/pulldeck/internal/client/api"
	"github.com/pulldeck/pulldeck/internal/client/models"
	"github.com/pulldeck/pulldeck/internal/client/repositories/metadata"
	"github.com/pulldeck/pulldeck/internal/common"
	"github.com/pulldeck/pulldeck/internal/logging"
)

// Backend is the slice of the API client the manager needs.
type Backend interface {
	SessionSync(ctx context.Context, deviceID string) (*api.SyncResult, error)
}

// Manager is one session state machine per running client process. Created
// on successful login, reset on logout. Starting an already-started manager
// is a no-op, never a duplicate timer.
type Manager struct {
	cfg     Config
	backend Backend
	meta    metadata.Repository
	log     logging.Logger

	// onExpired fires only for reasons where ForcesLogout is true.
	onExpired func(ExpireReason)

	mu                    sync.Mutex
	state                 State
	degraded              bool
	entitlement           models.Entitlement
	jwtExpiresAt          time.Time
	subscriptionExpiresAt *time.Time
	gracePeriodEndsAt     *time.Time
	lastSyncAt            *time.Time
	sessionStartedAt      time.Time
	syncRequired          bool
	blockReason           BlockReason
	online                bool
	deviceID              string

	running bool
	stopCh  chan struct{}

	now func() time.Time
}

type Option func(*Manager)

func WithOnExpired(fn func(ExpireReason)) Option {
	return func(m *Manager) { m.onExpired = fn }
}

func NewManager(cfg Config, backend Backend, meta metadata.Repository, log logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		backend: backend,
		meta:    meta,
		log:     log,
		state:   StateOK,
		online:  true,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize seeds the machine from a raw session token and starts the
// timers. An undecodable or already-expired token goes straight to terminal
// StateExpired without starting anything.
func (m *Manager) Initialize(ctx context.Context, rawToken string) error {
	m.mu.Lock()

	// Re-initializing a live machine without tearing it down first is a
	// programming error; guard with a no-op rather than leak timers.
	if m.running {
		m.mu.Unlock()
		m.log.Warn(ctx, "session manager already running, initialize ignored")
		return nil
	}

	claims, err := models.DecodeSessionClaims(rawToken)
	if err != nil || claims.ExpiresAt == nil {
		m.expireLocked(ctx, ReasonInvalidTokenAtInit)
		m.mu.Unlock()
		return common.ErrInvalidToken
	}

	now := m.now()
	if claims.ExpiresAt.Time.Before(now) {
		m.expireLocked(ctx, ReasonTokenExpiredAtInit)
		m.mu.Unlock()
		return common.ErrTokenExpired
	}

	m.jwtExpiresAt = claims.ExpiresAt.Time
	if claims.Subscription != nil {
		m.entitlement = *claims.Subscription
	} else {
		// Tokens issued before the entitlement claim existed must not lock
		// the user out.
		m.entitlement = models.AssumedActive()
	}
	m.subscriptionExpiresAt = m.entitlement.ExpiresAt

	m.sessionStartedAt = now
	m.state = StateOK
	m.degraded = false
	m.syncRequired = false
	m.blockReason = ""
	m.online = true
	m.lastSyncAt = m.loadLastSync(ctx)

	deviceID, err := m.ensureDeviceID(ctx)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.deviceID = deviceID
	m.mu.Unlock()

	m.Start(ctx)
	return nil
}

// Start launches the tick and sync timers. No-op when already running.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running || m.state == StateExpired {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	go m.run(ctx, stopCh)
}

func (m *Manager) run(ctx context.Context, stopCh chan struct{}) {
	tick := time.NewTicker(m.cfg.TickInterval)
	defer tick.Stop()
	syncTick := time.NewTicker(m.cfg.SyncInterval)
	defer syncTick.Stop()
	initial := time.NewTimer(m.cfg.InitialSyncDelay)
	defer initial.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-initial.C:
			m.SyncNow(ctx)
		case <-syncTick.C:
			m.SyncNow(ctx)
		case <-tick.C:
			m.Tick(ctx)
		}
	}
}

// Stop prevents future ticks. Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
}

// Reset stops the timers and clears all session state (logout path).
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.state = StateOK
	m.degraded = false
	m.entitlement = models.Entitlement{}
	m.jwtExpiresAt = time.Time{}
	m.subscriptionExpiresAt = nil
	m.gracePeriodEndsAt = nil
	m.lastSyncAt = nil
	m.sessionStartedAt = time.Time{}
	m.syncRequired = false
	m.blockReason = ""
}

// Status returns a snapshot of the machine.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:                 m.state,
		Degraded:              m.degraded,
		JWTExpiresAt:          m.jwtExpiresAt,
		SubscriptionExpiresAt: m.subscriptionExpiresAt,
		GracePeriodEndsAt:     m.gracePeriodEndsAt,
		LastSyncAt:            m.lastSyncAt,
		SessionStartedAt:      m.sessionStartedAt,
		SyncRequired:          m.syncRequired,
		BlockReason:           m.blockReason,
		Online:                m.online,
	}
}

// Invalidate forces the session into terminal StateExpired. Used by the
// auth-health poller when the server explicitly rejects the token.
func (m *Manager) Invalidate(ctx context.Context, reason ExpireReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateExpired {
		return
	}
	m.expireLocked(ctx, reason)
}

// Tick runs one health evaluation. Called by the minute ticker and directly
// by tests.
func (m *Manager) Tick(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluateLocked(ctx)
}

// evaluateLocked walks the checks in priority order; the first match wins.
func (m *Manager) evaluateLocked(ctx context.Context) {
	// 1. A blocking forced sync freezes the machine until the user acts.
	if m.syncRequired || m.state == StateExpired {
		return
	}

	now := m.now()

	// 2. Hard JWT expiry is terminal.
	if !m.jwtExpiresAt.After(now) {
		m.expireLocked(ctx, ReasonJWTExpired)
		return
	}

	// 3. Entitlement lapse: grace period, then terminal.
	if !m.entitlement.EffectiveActive(now) {
		if m.subscriptionExpiresAt == nil {
			// Never had a subscription: no grace period at all.
			m.expireLocked(ctx, ReasonNoSubscription)
			return
		}
		graceEnd := m.subscriptionExpiresAt.Add(m.cfg.GracePeriod)
		m.gracePeriodEndsAt = &graceEnd
		switch {
		case now.After(graceEnd):
			m.expireLocked(ctx, ReasonGracePeriodEnded)
		case !now.Before(graceEnd.Add(-m.cfg.GraceWarnWindow)):
			m.state = StateWarningSubscription
		default:
			// Usable but flagged.
			m.state = StateOK
			m.degraded = true
		}
		return
	}
	m.gracePeriodEndsAt = nil

	// 4. Sync staleness: force one synchronous sync at the ceiling.
	sinceSync := now.Sub(m.sessionStartedAt)
	if m.lastSyncAt != nil {
		sinceSync = now.Sub(*m.lastSyncAt)
	}
	if sinceSync >= m.cfg.MaxSyncAge {
		if err := m.syncLocked(ctx, true); err != nil {
			return // syncLocked set the blocking or terminal state
		}
		// Success re-enters the evaluator with a fresh lastSyncAt.
		m.evaluateLocked(ctx)
		return
	}

	// 5. Approaching the ceiling.
	if sinceSync >= m.cfg.SyncWarnAge {
		m.state = StateWarningSync
		return
	}

	// 6. JWT inside its final warning window.
	if !m.jwtExpiresAt.After(now.Add(m.cfg.SessionWarnWindow)) {
		m.state = StateWarningSession
		return
	}

	m.state = StateOK
	m.degraded = false
}

// SyncNow runs one background (silent) sync followed by a re-evaluation.
func (m *Manager) SyncNow(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.syncRequired || m.state == StateExpired {
		return
	}
	_ = m.syncLocked(ctx, false)
	m.evaluateLocked(ctx)
}

// syncLocked performs one sync call and folds the outcome into the machine.
// forced marks the blocking variant from the staleness ceiling.
func (m *Manager) syncLocked(ctx context.Context, forced bool) error {
	res, err := m.backend.SessionSync(ctx, m.deviceID)
	if err == nil {
		m.applySyncLocked(ctx, res)
		return nil
	}

	if apiErr, ok := api.AsError(err); ok {
		switch {
		case apiErr.Code == api.CodeSessionReplaced:
			// Another device took over; distinct remediation from a plain
			// staleness block.
			m.log.Warn(ctx, "session replaced by another device", "request_id", apiErr.RequestID)
			m.blockLocked(BlockSessionReplaced)
			return err
		case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
			m.expireLocked(ctx, ReasonSyncRejected)
			return err
		}
	}

	// Transient server or network trouble: go offline, stay on
	// last-known-good state, up to the staleness ceiling.
	m.online = false
	m.log.Warn(ctx, "session sync failed", "forced", forced, "error", err)
	if forced {
		m.blockLocked(BlockUsageLimit)
	}
	return err
}

func (m *Manager) applySyncLocked(ctx context.Context, res *api.SyncResult) {
	now := m.now()

	if res.AccessToken != "" {
		if claims, err := models.DecodeSessionClaims(res.AccessToken); err == nil {
			if claims.ExpiresAt != nil {
				m.jwtExpiresAt = claims.ExpiresAt.Time
			}
			if res.Subscription == nil && claims.Subscription != nil {
				m.entitlement = *claims.Subscription
			}
		}
	}
	if res.Subscription != nil {
		m.entitlement = *res.Subscription
	}
	m.subscriptionExpiresAt = m.entitlement.ExpiresAt

	m.lastSyncAt = &now
	m.online = true
	m.persistLastSync(ctx, now)

	m.log.Debug(ctx, "session synced", "jwt_expires_at", m.jwtExpiresAt,
		"subscription_active", m.entitlement.Active)
}

func (m *Manager) blockLocked(reason BlockReason) {
	m.syncRequired = true
	m.blockReason = reason
	m.stopLocked()
}

func (m *Manager) expireLocked(ctx context.Context, reason ExpireReason) {
	m.state = StateExpired
	m.stopLocked()
	m.log.Warn(ctx, "session expired", "reason", string(reason))

	if reason.ForcesLogout() && m.onExpired != nil {
		// Fired outside the lock so the callback may query Status.
		go m.onExpired(reason)
	}
}

func (m *Manager) loadLastSync(ctx context.Context) *time.Time {
	value, err := m.meta.Get(ctx, metadata.KeyLastSyncAt)
	if err != nil || value == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, string(value))
	if err != nil {
		return nil
	}
	return &t
}

func (m *Manager) persistLastSync(ctx context.Context, t time.Time) {
	if err := m.meta.Set(ctx, metadata.KeyLastSyncAt, []byte(t.UTC().Format(time.RFC3339Nano))); err != nil {
		m.log.Error(ctx, "failed to persist last sync time", "error", err)
	}
}

func (m *Manager) ensureDeviceID(ctx context.Context) (string, error) {
	value, err := m.meta.Get(ctx, metadata.KeyDeviceID)
	if err != nil {
		return "", err
	}
	if value != nil {
		return string(value), nil
	}
	id := uuid.NewString()
	if err := m.meta.Set(ctx, metadata.KeyDeviceID, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}
