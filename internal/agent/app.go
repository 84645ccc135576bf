// Package agent wires the offline sync engine for the siteproof field CLI.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/juggajay/siteproof-v2-sub005/internal/config"
	"github.com/juggajay/siteproof-v2-sub005/internal/localstore"
	"github.com/juggajay/siteproof-v2-sub005/internal/offline"
)

// DefaultProbeInterval is how often watch mode checks server reachability.
const DefaultProbeInterval = 30 * time.Second

// App holds everything one CLI invocation needs. The caller must call Close.
type App struct {
	cfg      *config.AgentConfig
	store    offline.Store
	remote   *offline.HTTPRemote
	conn     *offline.Switch
	engine   *offline.Engine
	resolver *offline.Resolver
	log      *slog.Logger
}

// New builds an App from a validated profile. Connectivity starts optimistic;
// call Probe to learn the real state.
func New(cfg *config.AgentConfig, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store, err := localstore.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	remote := offline.NewHTTPRemote(offline.HTTPRemoteConfig{
		BaseURL: cfg.ServerURL,
		APIKey:  cfg.APIKey,
		UserID:  cfg.UserID,
		OrgRole: cfg.OrgRole,
		Timeout: cfg.Timeout(),
	})
	conn := offline.NewSwitch(true)

	engine := offline.New(store, remote, conn,
		offline.WithLogger(logger),
		offline.WithTemplateCacheSize(cfg.Store.TemplateCacheSize),
	)

	return &App{
		cfg:      cfg,
		store:    store,
		remote:   remote,
		conn:     conn,
		engine:   engine,
		resolver: offline.NewResolver(store, remote, conn, logger),
		log:      logger,
	}, nil
}

// Engine returns the sync engine.
func (a *App) Engine() *offline.Engine { return a.engine }

// Resolver returns the conflict resolver.
func (a *App) Resolver() *offline.Resolver { return a.resolver }

// Connectivity returns the switch the engine reads.
func (a *App) Connectivity() *offline.Switch { return a.conn }

// Probe pings the server and records the answer as the connectivity state.
func (a *App) Probe(ctx context.Context) bool {
	err := a.remote.Ping(ctx)
	online := err == nil
	if !online {
		a.log.Debug("server unreachable", "server", a.cfg.ServerURL, "error", err)
	}
	a.conn.Set(online)
	return online
}

// DownloadScope builds a scope over the profile's projects.
func (a *App) DownloadScope(incremental, includeResponses bool) offline.DownloadScope {
	return offline.DownloadScope{
		ProjectIDs:         a.cfg.ProjectIDs,
		IncludeTemplates:   true,
		IncludeAssignments: true,
		IncludeResponses:   includeResponses,
		Incremental:        incremental,
	}
}

// Watch syncs on the profile interval and whenever the server comes back, until
// ctx is cancelled. onResult sees every round that ran.
func (a *App) Watch(ctx context.Context, probeInterval time.Duration, onResult func(*offline.SyncResult)) {
	if probeInterval <= 0 {
		probeInterval = DefaultProbeInterval
	}

	a.Probe(ctx)
	scheduler := offline.NewScheduler(a.engine, a.conn, a.log, offline.SchedulerConfig{
		Interval:     a.cfg.Interval(),
		RoundTimeout: 2 * a.cfg.Timeout(),
		SyncOnStart:  true,
		OnResult:     onResult,
	})
	a.conn.OnChange(func(online bool) {
		a.log.Info("connectivity changed", "online", online)
		if online {
			scheduler.Trigger()
		}
	})

	scheduler.Start()
	defer scheduler.Stop()

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Probe(ctx)
		}
	}
}

// Close releases the local store.
func (a *App) Close() error {
	return a.store.Close()
}
