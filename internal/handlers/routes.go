package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/todaymission/backend/internal/metrics"
	"github.com/todaymission/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Renderer Renderer
	Health   Pinger

	Sessions   SessionManager
	Identity   IdentityProvider
	Missions   MissionStore
	History    HistoryStore
	Badges     BadgeStore
	Challenges ChallengeSource

	// AuthLimiter guards the OAuth endpoints per client IP.
	AuthLimiter middleware.RateLimiter

	BaseURL         string
	CookieSecure    bool
	CallbackTimeout time.Duration
	RefreshLeeway   time.Duration
	RefreshInterval time.Duration
	Location        *time.Location
	NowFunc         func() time.Time
}

// NewRouter wires HTTP handlers into a chi router.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	health := HealthHandler{DB: deps.Health}
	authn := AuthHandler{
		Sessions:        deps.Sessions,
		Identity:        deps.Identity,
		Renderer:        deps.Renderer,
		Metrics:         deps.Metrics,
		BaseURL:         deps.BaseURL,
		CookieSecure:    deps.CookieSecure,
		CallbackTimeout: deps.CallbackTimeout,
	}
	dashboard := DashboardHandler{
		Sessions:   deps.Sessions,
		Missions:   deps.Missions,
		History:    deps.History,
		Badges:     deps.Badges,
		Challenges: deps.Challenges,
		Renderer:   deps.Renderer,
		Metrics:    deps.Metrics,
		Location:   deps.Location,
		NowFunc:    deps.NowFunc,
	}
	events := EventsHandler{
		Sessions:        deps.Sessions,
		Metrics:         deps.Metrics,
		RefreshLeeway:   deps.RefreshLeeway,
		RefreshInterval: deps.RefreshInterval,
	}
	settings := SettingsHandler{CookieSecure: deps.CookieSecure}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger, deps.Metrics))
	r.Use(middleware.Theme)

	r.Get("/healthz", health.Handle)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Get("/", Root(deps.Sessions))
	r.Get("/login", page(deps.Renderer, authn.Login))
	r.Post("/logout", authn.Logout)
	r.Post("/settings/theme", settings.Theme)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(deps.AuthLimiter, "auth"))
		r.Get("/auth/authorize", authn.Authorize)
		r.Get("/auth/callback", page(deps.Renderer, authn.Callback))
		r.Get("/auth-callback", page(deps.Renderer, authn.Callback))
		r.Post("/auth/callback", page(deps.Renderer, authn.CallbackFragment))
	})
	r.Get("/auth/events", events.Stream)

	r.Route("/dashboard", func(r chi.Router) {
		r.Get("/", page(deps.Renderer, dashboard.Dashboard))
		r.Post("/", page(deps.Renderer, dashboard.DashboardAction))
		r.Get("/hall-of-fame", page(deps.Renderer, dashboard.HallOfFame))
		r.Get("/challenges", page(deps.Renderer, dashboard.ChallengesPage))
		r.Post("/challenges", page(deps.Renderer, dashboard.ChallengesAction))
	})

	return r
}
