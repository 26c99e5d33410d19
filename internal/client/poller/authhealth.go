package poller

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulldeck/pulldeck/internal/client/api"
	"github.com/pulldeck/pulldeck/internal/client/session"
	"github.com/pulldeck/pulldeck/internal/logging"
)

// DefaultHealthInterval is how often the token is probed against the server.
const DefaultHealthInterval = 600 * time.Second

// HealthBackend is the slice of the API client the probe needs.
type HealthBackend interface {
	Health(ctx context.Context) error
}

// Invalidator receives the verdict when the server rejects the token.
type Invalidator interface {
	Invalidate(ctx context.Context, reason session.ExpireReason)
}

// Authenticated gates the probe; an unauthenticated client has nothing to
// check.
type Authenticated func() bool

// AuthHealth periodically verifies the access token against the lightweight
// health endpoint. The error asymmetry is deliberate: an explicit server
// rejection expires the session, while a network failure is ignored and
// retried next tick, because wrongly logging someone out costs more than a
// delayed detection.
type AuthHealth struct {
	backend       HealthBackend
	invalidator   Invalidator
	authenticated Authenticated
	log           logging.Logger
	interval      time.Duration

	inFlight atomic.Bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewAuthHealth(backend HealthBackend, invalidator Invalidator, authenticated Authenticated,
	log logging.Logger, interval time.Duration) *AuthHealth {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &AuthHealth{
		backend:       backend,
		invalidator:   invalidator,
		authenticated: authenticated,
		log:           log,
		interval:      interval,
	}
}

// Start launches the probe loop. No-op when already running.
func (p *AuthHealth) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Probe(ctx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop prevents future probes. Idempotent.
func (p *AuthHealth) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stopCh)
}

// Probe runs one health check. Overlapping invocations no-op.
func (p *AuthHealth) Probe(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer p.inFlight.Store(false)

	if !p.authenticated() {
		return
	}

	err := p.backend.Health(ctx)
	if err == nil {
		return
	}

	if apiErr, ok := api.AsError(err); ok {
		if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
			p.log.Warn(ctx, "health probe rejected, expiring session",
				"code", apiErr.Code, "request_id", apiErr.RequestID)
			p.invalidator.Invalidate(ctx, session.ReasonSyncRejected)
			return
		}
	}

	// Transient trouble: assume the token is still good and try again next
	// tick.
	p.log.Debug(ctx, "health probe failed transiently", "error", err)
}
