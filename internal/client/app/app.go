// Package app is the composition root. It owns every long-lived object the
// client runs on and wires them together explicitly; nothing in the process
// reads ambient singletons.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/pulldeck/pulldeck/internal/client/api"
	"github.com/pulldeck/pulldeck/internal/client/changes"
	"github.com/pulldeck/pulldeck/internal/client/config"
	"github.com/pulldeck/pulldeck/internal/client/events"
	"github.com/pulldeck/pulldeck/internal/client/inbox"
	"github.com/pulldeck/pulldeck/internal/client/localdb"
	"github.com/pulldeck/pulldeck/internal/client/poller"
	"github.com/pulldeck/pulldeck/internal/client/provider"
	"github.com/pulldeck/pulldeck/internal/client/repositories/followed"
	inboxrepo "github.com/pulldeck/pulldeck/internal/client/repositories/inbox"
	"github.com/pulldeck/pulldeck/internal/client/repositories/metadata"
	"github.com/pulldeck/pulldeck/internal/client/service"
	"github.com/pulldeck/pulldeck/internal/client/session"
	"github.com/pulldeck/pulldeck/internal/client/token"
	"github.com/pulldeck/pulldeck/internal/logging"

	_ "modernc.org/sqlite"
)

// App owns the client's object graph and its lifecycle.
type App struct {
	cfg *config.Config
	log logging.Logger

	db     *sql.DB
	meta   metadata.Repository
	bus    *events.Bus
	tokens token.Store

	API     *api.Client
	Session *session.Manager
	Inbox   *inbox.Service
	Follow  *service.FollowService
	Pinned  *service.FollowService

	followedPoller *poller.Runner
	pinnedPoller   *poller.Runner
	authHealth     *poller.AuthHealth

	mu       sync.Mutex
	started  bool
	unsub    func()
	OnLogout func(session.ExpireReason)
}

// New builds the full object graph. Nothing starts ticking until Start.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	db, err := localdb.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	meta := metadata.NewSQLiteRepository(db)
	tokens, err := token.NewSealedStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	bus := events.NewBus()
	apiClient := api.NewClient(cfg.ServerBaseURL, tokens, bus, log)

	a := &App{
		cfg:    cfg,
		log:    log,
		db:     db,
		meta:   meta,
		bus:    bus,
		tokens: tokens,
		API:    apiClient,
	}

	a.Session = session.NewManager(session.DefaultConfig(), apiClient, meta, log,
		session.WithOnExpired(a.handleExpired))

	detector := changes.NewDetector(true)
	a.Inbox = inbox.NewService(inboxrepo.NewSQLiteRepository(db), log,
		cfg.InboxMaxCount, cfg.InboxMaxAge)

	fetchers := a.buildFetchers()
	a.Follow = service.NewFollowService(followed.NewFollowedRepository(db), a.Inbox,
		detector, fetchers, log, cfg.MaxFollowed, service.DefaultRetention)
	a.Pinned = service.NewFollowService(followed.NewPinnedRepository(db), a.Inbox,
		detector, fetchers, log, cfg.MaxFollowed, service.DefaultRetention)

	a.followedPoller = poller.NewRunner("followed", a.Follow, log, cfg.PollInterval, cfg.BatchSize)
	a.pinnedPoller = poller.NewRunner("pinned", a.Pinned, log, cfg.PollInterval, cfg.BatchSize)
	a.authHealth = poller.NewAuthHealth(apiClient, a.Session, a.authenticated, log, cfg.HealthCheckInterval)

	return a, nil
}

func (a *App) buildFetchers() map[string]service.Fetcher {
	ttl := a.cfg.ProviderCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	github := provider.NewCached(provider.NewGitHub(func() string { return a.cfg.GitHubToken }, a.log), ttl, 256)
	gitlab := provider.NewCached(provider.NewGitLab(func() string { return a.cfg.GitLabToken }, a.log), ttl, 256)
	return map[string]service.Fetcher{
		"github": github,
		"gitlab": gitlab,
	}
}

// Start brings up the session machine and the pollers for an authenticated
// user. Idempotent.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true

	ch, unsub := a.bus.Subscribe(4)
	a.unsub = unsub
	a.mu.Unlock()

	go a.watchAuthEvents(ctx, ch)

	cred, err := a.tokens.Load(ctx)
	if err != nil {
		return err
	}
	if cred == nil {
		a.log.Info(ctx, "no stored credentials, waiting for login")
		return nil
	}

	if err := a.Session.Initialize(ctx, cred.AccessToken); err != nil {
		a.log.Warn(ctx, "stored session not usable", "error", err)
		return nil
	}
	a.startPollers(ctx)
	return nil
}

// Login authenticates against the backend and brings the machine up.
func (a *App) Login(ctx context.Context, email, password string) error {
	if err := a.API.Login(ctx, email, password); err != nil {
		return err
	}
	cred, err := a.tokens.Load(ctx)
	if err != nil {
		return err
	}
	if cred == nil {
		return fmt.Errorf("login succeeded but no credential was stored")
	}
	if err := a.Session.Initialize(ctx, cred.AccessToken); err != nil {
		return err
	}
	a.startPollers(ctx)
	return nil
}

// Logout tears the session down and clears credentials.
func (a *App) Logout(ctx context.Context) error {
	a.stopPollers()
	a.Session.Reset()
	return a.API.Logout(ctx)
}

// Stop halts all background work. Idempotent; in-flight poll batches run to
// completion.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return
	}
	a.started = false
	if a.unsub != nil {
		a.unsub()
		a.unsub = nil
	}
	a.stopPollersLocked()
	a.Session.Stop()
}

// Close releases everything. The app is unusable afterwards.
func (a *App) Close() error {
	a.Stop()
	return a.db.Close()
}

func (a *App) startPollers(ctx context.Context) {
	a.followedPoller.Start(ctx)
	a.pinnedPoller.Start(ctx)
	a.authHealth.Start(ctx)
}

func (a *App) stopPollers() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopPollersLocked()
}

func (a *App) stopPollersLocked() {
	a.followedPoller.Stop()
	a.pinnedPoller.Stop()
	a.authHealth.Stop()
}

func (a *App) authenticated() bool {
	cred, err := a.tokens.Load(context.Background())
	return err == nil && cred != nil
}

// watchAuthEvents reacts to fatal auth broadcasts from the HTTP layer:
// polling stops and the session resets without any direct coupling between
// the transport and the UI.
func (a *App) watchAuthEvents(ctx context.Context, ch <-chan events.AuthEvent) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			a.log.Warn(ctx, "fatal auth event", "kind", string(ev.Kind),
				"code", ev.Code, "request_id", ev.RequestID)
			a.stopPollers()
			// A replaced session is the manager's own remediation path: it
			// freezes in the blocking sync-required state so the shell can
			// tell the user another device took over. Resetting here would
			// wipe that state.
			if ev.Kind != events.KindSessionReplaced {
				a.Session.Reset()
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleExpired runs on the session manager's destructive-logout reasons.
func (a *App) handleExpired(reason session.ExpireReason) {
	a.stopPollers()
	if a.OnLogout != nil {
		a.OnLogout(reason)
	}
}

// Status exposes the session snapshot for the UI.
func (a *App) Status() session.Status {
	return a.Session.Status()
}
