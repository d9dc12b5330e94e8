// Package app wires the playground's components from configuration. Both the
// HTTP server and the local CLI commands start from here.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"code-playground/internal/capability"
	"code-playground/internal/config"
	"code-playground/internal/diagnose"
	"code-playground/internal/monitor"
	"code-playground/internal/playground"
	"code-playground/internal/runtime"
	"code-playground/internal/sandbox"
	"code-playground/internal/session"
	"code-playground/internal/storage"
)

// Options select the optional parts to start.
type Options struct {
	Database bool // connect the audit log when a DSN is configured
	Sessions bool // open the configured session store
}

// App owns every long-lived component. Close releases them in reverse order.
type App struct {
	Config       *config.Config
	Supervisor   *sandbox.Supervisor
	Service      *playground.Service
	Metrics      *monitor.Metrics
	Tracer       *monitor.Tracer
	Capabilities *capability.Table
	DB           *storage.DB // nil without a database
	Audit        *storage.AuditWriter
	Sessions     session.Store // nil unless Options.Sessions

	cancel context.CancelFunc
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	ctx, cancel := context.WithCancel(ctx)
	a := &App{
		Config:       cfg,
		Metrics:      monitor.NewMetrics(),
		Tracer:       monitor.NewNoopTracer(),
		Capabilities: capability.Build(),
		cancel:       cancel,
	}

	if cfg.Tracing.Enabled {
		a.Tracer = monitor.NewTracer()
	}

	registry := runtime.NewRegistry(cfg.Sandbox.Interpreter, cfg.Sandbox.Image)
	rt, err := registry.Get("python")
	if err != nil {
		cancel()
		return nil, err
	}

	backend, err := sandbox.NewBackend(ctx, cfg)
	if err != nil {
		// Keep serving health and metrics so the host can be debugged.
		log.Warn().Err(err).Msg("no sandbox backend available (execution will fail)")
		backend = sandbox.Unavailable(err)
	}
	if cb, ok := backend.(*sandbox.ContainerdBackend); ok {
		go func() {
			if err := cb.Prepare(ctx, registry.Images()); err != nil {
				log.Warn().Err(err).Msg("image pre-pull failed")
			}
		}()
	}

	lim := cfg.Sandbox.DefaultLimits
	a.Supervisor = sandbox.NewSupervisor(backend, rt, sandbox.Options{
		DefaultTimeout: cfg.Sandbox.DefaultTimeout,
		MaxTimeout:     cfg.Sandbox.MaxTimeout,
		MaxConcurrent:  cfg.Sandbox.MaxConcurrent,
		Limits: sandbox.ResourceLimits{
			CPUShares: lim.CPUShares,
			MemoryMB:  lim.MemoryMB,
			PidsLimit: lim.PidsLimit,
			DiskMB:    lim.DiskMB,
		},
	})

	if opts.Database && cfg.Database.DSN != "" {
		db, err := storage.New(ctx, cfg.Database.DSN, storage.PoolOptions{
			MaxConns:        int32(cfg.Database.MaxOpenConns),
			MinConns:        int32(cfg.Database.MaxIdleConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, audit logging disabled")
		} else if err := db.Migrate(ctx); err != nil {
			log.Warn().Err(err).Msg("database migration failed, audit logging disabled")
			db.Close()
		} else {
			a.DB = db
			a.Audit = storage.NewAuditWriter(db, 10000)
			a.Audit.Start()
		}
	}

	a.Service = playground.New(a.Supervisor, playground.Options{
		Window: diagnose.Window{
			Before: cfg.Diagnostics.ContextBefore,
			After:  cfg.Diagnostics.ContextAfter,
		},
		BlockCritical: cfg.Security.BlockCritical,
		Metrics:       a.Metrics,
		Tracer:        a.Tracer,
		Audit:         a.Audit,
	})

	if opts.Sessions {
		store, err := openSessions(cfg.Sessions)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Sessions = store
		session.StartJanitor(ctx, store, cfg.Sessions.TTL, time.Hour)
	}

	return a, nil
}

func openSessions(cfg config.SessionsConfig) (session.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		store, err := session.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening session store: %w", err)
		}
		return store, nil
	default:
		return session.NewMemoryStore(), nil
	}
}

// Close drains executions and releases every component.
func (a *App) Close() {
	if err := a.Supervisor.Close(); err != nil {
		log.Error().Err(err).Msg("backend close error")
	}
	if a.Audit != nil {
		a.Audit.Flush(10 * time.Second)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Sessions != nil {
		if err := a.Sessions.Close(); err != nil {
			log.Error().Err(err).Msg("session store close error")
		}
	}
	a.cancel()
}
