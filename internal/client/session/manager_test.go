package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/pulldeck/pulldeck/internal/client/api"
	"github.com/pulldeck/pulldeck/internal/client/models"
	"github.com/pulldeck/pulldeck/internal/common"
	"github.com/pulldeck/pulldeck/internal/logging"
)

// ---- fakes ----

type fakeBackend struct {
	mu    sync.Mutex
	calls int
	res   *api.SyncResult
	err   error
}

func (f *fakeBackend) SessionSync(ctx context.Context, deviceID string) (*api.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res, f.err
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMeta struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{data: make(map[string][]byte)}
}

func (f *fakeMeta) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeMeta) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeMeta) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeMeta) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = make(map[string][]byte)
	return nil
}

// ---- helpers ----

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func signedToken(t *testing.T, exp time.Time, ent *models.Entitlement) string {
	t.Helper()
	claims := models.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
		Subscription:     ent,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func newTestManager(backend Backend, now time.Time, opts ...Option) *Manager {
	m := NewManager(DefaultConfig(), backend, newFakeMeta(), testLogger(), opts...)
	m.now = func() time.Time { return now }
	return m
}

// seedActive puts the manager into a healthy running-equivalent state
// without starting timers.
func seedActive(m *Manager, now time.Time) {
	m.jwtExpiresAt = now.Add(72 * time.Hour)
	m.entitlement = models.Entitlement{Active: true, Status: models.SubscriptionActive}
	m.sessionStartedAt = now
	last := now.Add(-time.Minute)
	m.lastSyncAt = &last
}

// ---- initialization ----

func TestInitialize_InvalidToken(t *testing.T) {
	ctx := context.Background()
	expired := make(chan ExpireReason, 1)
	m := newTestManager(&fakeBackend{}, time.Now(), WithOnExpired(func(r ExpireReason) { expired <- r }))

	err := m.Initialize(ctx, "garbage")
	require.ErrorIs(t, err, common.ErrInvalidToken)
	require.Equal(t, StateExpired, m.Status().State)

	select {
	case r := <-expired:
		require.Equal(t, ReasonInvalidTokenAtInit, r)
	case <-time.After(time.Second):
		t.Fatal("expired callback not invoked")
	}
}

func TestInitialize_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	expired := make(chan ExpireReason, 1)
	m := newTestManager(&fakeBackend{}, now, WithOnExpired(func(r ExpireReason) { expired <- r }))

	err := m.Initialize(ctx, signedToken(t, now.Add(-time.Hour), nil))
	require.ErrorIs(t, err, common.ErrTokenExpired)
	require.Equal(t, StateExpired, m.Status().State)

	select {
	case r := <-expired:
		require.Equal(t, ReasonTokenExpiredAtInit, r)
	case <-time.After(time.Second):
		t.Fatal("expired callback not invoked")
	}
}

func TestInitialize_TokenWithoutEntitlementClaimAssumesActive(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := newTestManager(&fakeBackend{err: common.ErrUnavailable}, now)

	require.NoError(t, m.Initialize(ctx, signedToken(t, now.Add(48*time.Hour), nil)))
	defer m.Stop()

	require.Equal(t, StateOK, m.Status().State)
	m.mu.Lock()
	require.True(t, m.entitlement.Active)
	require.Equal(t, models.SubscriptionUnknown, m.entitlement.Status)
	m.mu.Unlock()
}

func TestInitialize_WhileRunningIsNoOp(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := newTestManager(&fakeBackend{err: common.ErrUnavailable}, now)

	require.NoError(t, m.Initialize(ctx, signedToken(t, now.Add(48*time.Hour), nil)))
	defer m.Stop()

	started := m.Status().SessionStartedAt
	require.NoError(t, m.Initialize(ctx, signedToken(t, now.Add(96*time.Hour), nil)))
	require.Equal(t, started, m.Status().SessionStartedAt)
}

// ---- tick evaluation ----

func TestTick_JWTExpiredIsTerminal(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	expired := make(chan ExpireReason, 1)
	m := newTestManager(&fakeBackend{}, now, WithOnExpired(func(r ExpireReason) { expired <- r }))
	seedActive(m, now)
	m.jwtExpiresAt = now.Add(-time.Second)

	m.Tick(ctx)
	require.Equal(t, StateExpired, m.Status().State)

	select {
	case r := <-expired:
		require.Equal(t, ReasonJWTExpired, r)
	case <-time.After(time.Second):
		t.Fatal("expired callback not invoked")
	}
}

func TestTick_GracePeriodDeterminism(t *testing.T) {
	ctx := context.Background()
	subExpiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		now       time.Time
		wantState State
		degraded  bool
	}{
		{"well inside grace", subExpiry.Add(3 * time.Hour), StateOK, true},
		{"just before warn window", subExpiry.Add(4*time.Hour - time.Minute), StateOK, true},
		{"inside final warning window", subExpiry.Add(5*time.Hour + 59*time.Minute), StateWarningSubscription, false},
		{"past grace end", subExpiry.Add(6*time.Hour + time.Minute), StateExpired, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			expired := make(chan ExpireReason, 1)
			m := newTestManager(&fakeBackend{}, tc.now, WithOnExpired(func(r ExpireReason) { expired <- r }))
			seedActive(m, tc.now)
			m.entitlement = models.Entitlement{Active: false, Status: models.SubscriptionExpired, ExpiresAt: &subExpiry}
			m.subscriptionExpiresAt = &subExpiry

			m.Tick(ctx)
			st := m.Status()
			require.Equal(t, tc.wantState, st.State)
			if tc.wantState == StateOK {
				require.Equal(t, tc.degraded, st.Degraded)
			}

			if tc.wantState == StateExpired {
				// Recoverable by payment: no destructive logout callback.
				select {
				case r := <-expired:
					t.Fatalf("unexpected expired callback: %s", r)
				case <-time.After(50 * time.Millisecond):
				}
			}
		})
	}
}

func TestTick_NoSubscriptionEverHasZeroGrace(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	expired := make(chan ExpireReason, 1)
	m := newTestManager(&fakeBackend{}, now, WithOnExpired(func(r ExpireReason) { expired <- r }))
	seedActive(m, now)
	m.entitlement = models.Entitlement{Active: false, Status: models.SubscriptionNone}
	m.subscriptionExpiresAt = nil

	m.Tick(ctx)
	st := m.Status()
	require.Equal(t, StateExpired, st.State)
	require.Nil(t, st.GracePeriodEndsAt)

	select {
	case r := <-expired:
		t.Fatalf("unexpected expired callback: %s", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTick_WarningSync(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := newTestManager(&fakeBackend{}, now)
	seedActive(m, now)
	last := now.Add(-11*time.Hour - 30*time.Minute)
	m.lastSyncAt = &last

	m.Tick(ctx)
	require.Equal(t, StateWarningSync, m.Status().State)
}

func TestTick_WarningSession(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := newTestManager(&fakeBackend{}, now)
	seedActive(m, now)
	m.jwtExpiresAt = now.Add(12 * time.Hour)

	m.Tick(ctx)
	require.Equal(t, StateWarningSession, m.Status().State)
}

// ---- forced sync ----

func TestTick_ForcedSyncSuccessRecovers(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	newToken := signedToken(t, now.Add(72*time.Hour),
		&models.Entitlement{Active: true, Status: models.SubscriptionActive})
	backend := &fakeBackend{res: &api.SyncResult{AccessToken: newToken}}

	m := newTestManager(backend, now)
	seedActive(m, now)
	last := now.Add(-13 * time.Hour)
	m.lastSyncAt = &last

	m.Tick(ctx)
	st := m.Status()
	require.Equal(t, StateOK, st.State)
	require.False(t, st.SyncRequired)
	require.Equal(t, 1, backend.callCount())
	require.NotNil(t, st.LastSyncAt)
	require.Equal(t, now, *st.LastSyncAt)
}

func TestTick_ForcedSyncNetworkFailureBlocks(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	backend := &fakeBackend{err: common.ErrUnavailable}

	m := newTestManager(backend, now)
	seedActive(m, now)
	last := now.Add(-13 * time.Hour)
	m.lastSyncAt = &last

	m.Tick(ctx)
	st := m.Status()
	require.True(t, st.SyncRequired)
	require.Equal(t, BlockUsageLimit, st.BlockReason)
	require.False(t, st.Online)

	// frozen until the user acts
	calls := backend.callCount()
	m.Tick(ctx)
	require.Equal(t, calls, backend.callCount())
}

func TestTick_ForcedSyncSessionReplacedBlocksDistinctly(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	backend := &fakeBackend{err: &api.Error{Status: 403, Code: api.CodeSessionReplaced}}

	m := newTestManager(backend, now)
	seedActive(m, now)
	last := now.Add(-13 * time.Hour)
	m.lastSyncAt = &last

	m.Tick(ctx)
	st := m.Status()
	require.True(t, st.SyncRequired)
	require.Equal(t, BlockSessionReplaced, st.BlockReason)
	require.NotEqual(t, StateExpired, st.State)
}

func TestTick_ForcedSyncRejectedExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	expired := make(chan ExpireReason, 1)
	backend := &fakeBackend{err: &api.Error{Status: 401, Code: "SESSION_REVOKED"}}

	m := newTestManager(backend, now, WithOnExpired(func(r ExpireReason) { expired <- r }))
	seedActive(m, now)
	last := now.Add(-13 * time.Hour)
	m.lastSyncAt = &last

	m.Tick(ctx)
	require.Equal(t, StateExpired, m.Status().State)

	select {
	case r := <-expired:
		require.Equal(t, ReasonSyncRejected, r)
	case <-time.After(time.Second):
		t.Fatal("expired callback not invoked")
	}
}

// ---- background sync ----

func TestSyncNow_ReplacesEntitlementSnapshot(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	subExpiry := now.Add(30 * 24 * time.Hour)
	newToken := signedToken(t, now.Add(72*time.Hour), nil)
	backend := &fakeBackend{res: &api.SyncResult{
		AccessToken:  newToken,
		Subscription: &models.Entitlement{Active: true, Status: models.SubscriptionOnTrial, ExpiresAt: &subExpiry},
	}}

	m := newTestManager(backend, now)
	seedActive(m, now)
	m.entitlement = models.Entitlement{Active: false, Status: models.SubscriptionPastDue}

	m.SyncNow(ctx)
	st := m.Status()
	require.Equal(t, StateOK, st.State)
	require.True(t, st.Online)
	m.mu.Lock()
	require.Equal(t, models.SubscriptionOnTrial, m.entitlement.Status)
	m.mu.Unlock()
	require.NotNil(t, st.SubscriptionExpiresAt)
}

func TestSyncNow_TransientFailureGoesOffline(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	backend := &fakeBackend{err: common.ErrUnavailable}

	m := newTestManager(backend, now)
	seedActive(m, now)

	m.SyncNow(ctx)
	st := m.Status()
	require.False(t, st.Online)
	require.False(t, st.SyncRequired, "silent sync failure must not block")
	require.Equal(t, StateOK, st.State)
}

// ---- lifecycle ----

func TestStartStop_Idempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := newTestManager(&fakeBackend{err: common.ErrUnavailable}, now)
	seedActive(m, now)

	m.Start(ctx)
	m.Start(ctx) // no-op, no duplicate timers
	m.Stop()
	m.Stop() // no-op

	m.mu.Lock()
	require.False(t, m.running)
	m.mu.Unlock()
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	expired := make(chan ExpireReason, 1)
	m := newTestManager(&fakeBackend{}, now, WithOnExpired(func(r ExpireReason) { expired <- r }))
	seedActive(m, now)

	m.Invalidate(ctx, ReasonSyncRejected)
	require.Equal(t, StateExpired, m.Status().State)

	select {
	case r := <-expired:
		require.Equal(t, ReasonSyncRejected, r)
	case <-time.After(time.Second):
		t.Fatal("expired callback not invoked")
	}

	// already expired: second invalidate is a no-op
	m.Invalidate(ctx, ReasonJWTExpired)
}
