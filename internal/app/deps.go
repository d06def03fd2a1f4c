package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/todaymission/backend/internal/auth"
	"github.com/todaymission/backend/internal/catalog"
	"github.com/todaymission/backend/internal/config"
	"github.com/todaymission/backend/internal/db"
	"github.com/todaymission/backend/internal/gotrue"
	"github.com/todaymission/backend/internal/handlers"
	"github.com/todaymission/backend/internal/metrics"
	"github.com/todaymission/backend/internal/middleware"
	"github.com/todaymission/backend/internal/repositories"
	"github.com/todaymission/backend/internal/views"
)

const (
	sessionEventBuffer   = 16
	rateLimiterIdleTTL   = 10 * time.Minute
	sessionSweepInterval = time.Hour
)

type cleanupFunc func(ctx context.Context) error

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, cleanupFunc, error) {
	loc, err := cfg.Location()
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	renderer, err := views.NewRenderer()
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	identity, err := gotrue.New(gotrue.Options{
		BaseURL:  cfg.Supabase.URL,
		AnonKey:  cfg.Supabase.AnonKey,
		Provider: cfg.Supabase.Provider,
		Timeout:  cfg.Supabase.RequestTimeout,
	})
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("configure identity client: %w", err)
	}

	store, closeStore, err := newSessionStore(ctx, pool, cfg.Session)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	manager := auth.NewManager(store, identity, auth.ManagerOptions{
		CookieName:   cfg.Session.CookieName,
		CookieSecure: cfg.Session.CookieSecure,
		TTL:          cfg.Session.TTL,
		ClockSkew:    cfg.Session.ClockSkew,
		Events:       auth.NewEvents(sessionEventBuffer),
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	if sweeper, ok := store.(expiredSessionSweeper); ok {
		go sweepExpiredSessions(sweepCtx, sweeper, sessionSweepInterval, logger)
	}

	missions := repositories.NewPostgresMissionRepository(pool)
	badges := repositories.NewPostgresBadgeRepository(pool)

	deps := handlers.Dependencies{
		Logger:     logger,
		Metrics:    metrics.New(),
		Renderer:   renderer,
		Health:     pool,
		Sessions:   manager,
		Identity:   identity,
		Missions:   missions,
		History:    missions,
		Badges:     badges,
		Challenges: catalog.NewCachingSource(badges, cfg.CatalogCacheTTL),
		AuthLimiter: middleware.NewIPRateLimiter(
			cfg.Auth.RateLimitRequests,
			cfg.Auth.RateLimitWindow,
			cfg.Auth.RateLimitBurst,
			rateLimiterIdleTTL,
		),
		BaseURL:         cfg.BaseURL,
		CookieSecure:    cfg.Session.CookieSecure,
		CallbackTimeout: cfg.Auth.CallbackTimeout,
		RefreshLeeway:   cfg.Session.RefreshLeeway,
		Location:        loc,
	}

	cleanup := func(ctx context.Context) error {
		stopSweep()
		return closeStore(ctx)
	}

	return deps, cleanup, nil
}

// newSessionStore selects the session backend named in cfg.
func newSessionStore(ctx context.Context, pool db.Pool, cfg config.SessionConfig) (auth.SessionStore, cleanupFunc, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Backend {
	case config.SessionBackendMemory:
		return auth.NewInMemorySessionStore(), noop, nil
	case config.SessionBackendPostgres, "":
		return repositories.NewPostgresSessionStore(pool), noop, nil
	case config.SessionBackendRedis:
		client, err := repositories.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return repositories.NewRedisSessionStore(client), func(context.Context) error {
			return client.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidSessionBackend, cfg.Backend)
	}
}

type expiredSessionSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// sweepExpiredSessions removes session records past their expiry.
func sweepExpiredSessions(ctx context.Context, sweeper expiredSessionSweeper, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sweeper.DeleteExpired(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Warn("sweep expired sessions", "error", err)
				}
				continue
			}
			if removed > 0 {
				logger.Info("swept expired sessions", "removed", removed)
			}
		}
	}
}
