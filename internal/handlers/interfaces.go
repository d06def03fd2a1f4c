package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/todaymission/backend/internal/auth"
	"github.com/todaymission/backend/internal/models"
)

// SessionManager captures the session operations required by the page handlers.
type SessionManager interface {
	Establish(ctx context.Context, w http.ResponseWriter, tokens models.SessionTokens) (auth.Session, error)
	ResumeSession(r *http.Request) (auth.Session, bool)
	RequireSession(r *http.Request) (auth.Session, error)
	RefreshIfDue(ctx context.Context, sessionID string, leeway time.Duration) (auth.Session, bool, error)
	SignOut(w http.ResponseWriter, r *http.Request) error
	Events() *auth.Events
}

// IdentityProvider is the part of the hosted identity service used by the
// OAuth callback.
type IdentityProvider interface {
	AuthorizeURL(redirectTo string) (string, string)
	ExchangeCode(ctx context.Context, code, verifier string) (models.SessionTokens, error)
	SetSession(ctx context.Context, accessToken, refreshToken string) (models.SessionTokens, error)
}

// MissionStore captures the mission operations used by the dashboard pages.
type MissionStore interface {
	ListForUser(ctx context.Context, userID string) ([]models.Mission, error)
	ListForWeekday(ctx context.Context, userID string, weekday models.Weekday) ([]models.Mission, error)
	Create(ctx context.Context, userID, title string, weekday models.Weekday) (models.Mission, error)
	UpdateTitle(ctx context.Context, userID string, id int64, title string) error
	Delete(ctx context.Context, userID string, id int64) error
	SetCompleted(ctx context.Context, userID string, id int64, completed bool, at time.Time) (bool, error)
}

// HistoryStore reads the completion log.
type HistoryStore interface {
	ListForYear(ctx context.Context, userID string, year int) ([]models.MissionHistory, error)
}

// BadgeStore reads earned badges.
type BadgeStore interface {
	ListUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error)
}

// ChallengeSource lists the challenge catalog.
type ChallengeSource interface {
	ListChallenges(ctx context.Context) ([]models.Challenge, error)
}

// Renderer writes HTML pages.
type Renderer interface {
	Render(w http.ResponseWriter, status int, page string, data any) error
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
