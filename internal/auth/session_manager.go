package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/todaymission/backend/internal/logging"
	"github.com/todaymission/backend/internal/models"
)

var (
	// ErrSessionNotFound indicates the request carries no usable session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired indicates the session's access token has expired and needs a refresh.
	ErrSessionExpired = errors.New("session access token expired")
)

// LoginPath is where unauthenticated visitors are sent.
const LoginPath = "/login"

// SessionStore persists server-side sessions keyed by the opaque cookie value.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Find(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

// TokenProvider is the subset of the identity service the manager relies on.
type TokenProvider interface {
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Session mirrors the identity service's credentials for one browser.
type Session struct {
	ID              string
	UserID          string
	Email           string
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
	ExpiresAt       time.Time
}

// Fingerprint identifies the access token without exposing it.
func (s Session) Fingerprint() string {
	return Fingerprint(s.AccessToken)
}

// ManagerOptions tunes cookie handling and expiry checks.
type ManagerOptions struct {
	CookieName   string
	CookieSecure bool
	TTL          time.Duration
	ClockSkew    time.Duration
	Events       *Events
	NowFunc      func() time.Time
}

// Manager answers "who is the current user" for incoming requests and owns
// the lifecycle of server-side sessions.
type Manager struct {
	store    SessionStore
	provider TokenProvider
	events   *Events

	cookieName   string
	cookieSecure bool
	ttl          time.Duration
	skew         time.Duration
	now          func() time.Time

	refreshes singleflight.Group
}

// NewManager constructs a Manager backed by the provided store and identity service.
func NewManager(store SessionStore, provider TokenProvider, opts ManagerOptions) *Manager {
	if store == nil {
		panic("auth: session store must not be nil")
	}
	if provider == nil {
		panic("auth: token provider must not be nil")
	}
	if opts.CookieName == "" {
		opts.CookieName = "tm-session"
	}
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.ClockSkew < 0 {
		opts.ClockSkew = 0
	}
	if opts.Events == nil {
		opts.Events = NewEvents(0)
	}
	if opts.NowFunc == nil {
		opts.NowFunc = time.Now
	}

	return &Manager{
		store:        store,
		provider:     provider,
		events:       opts.Events,
		cookieName:   opts.CookieName,
		cookieSecure: opts.CookieSecure,
		ttl:          opts.TTL,
		skew:         opts.ClockSkew,
		now:          opts.NowFunc,
	}
}

// Events exposes the session change hub.
func (m *Manager) Events() *Events {
	return m.events
}

// Establish stores a new session for freshly issued tokens and attaches the
// session cookie to the response.
func (m *Manager) Establish(ctx context.Context, w http.ResponseWriter, tokens models.SessionTokens) (Session, error) {
	if tokens.AccessToken == "" || tokens.UserID == "" {
		return Session{}, errors.New("auth: access token and user id must be provided")
	}

	id, err := randomToken()
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}

	now := m.now().UTC()
	session := Session{
		ID:              id,
		UserID:          tokens.UserID,
		Email:           tokens.Email,
		AccessToken:     tokens.AccessToken,
		RefreshToken:    tokens.RefreshToken,
		AccessExpiresAt: tokens.AccessExpiresAt.UTC(),
		ExpiresAt:       now.Add(m.ttl),
	}

	if err := m.store.Save(ctx, session); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	m.publish(EventSignedIn, session)
	logging.FromContext(ctx).Info("session established", "userId", session.UserID)

	return session, nil
}

// GetSession returns the current session when one exists and its access
// token is still valid. It never fails: store errors are logged and treated
// as "not authenticated".
func (m *Manager) GetSession(r *http.Request) (Session, bool) {
	session, err := m.current(r)
	if err == nil {
		return session, true
	}
	if !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionExpired) {
		logging.FromContext(r.Context()).Error("session lookup failed", "error", err)
	}
	return Session{}, false
}

// GetUserID returns the identifier of the signed-in user.
func (m *Manager) GetUserID(r *http.Request) (string, bool) {
	session, ok := m.GetSession(r)
	if !ok {
		return "", false
	}
	return session.UserID, true
}

// ResumeSession is GetSession with one refresh attempt for a session whose
// access token expired. Pages use it to decide whether a visitor is signed in.
func (m *Manager) ResumeSession(r *http.Request) (Session, bool) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	session, err := m.current(r)
	switch {
	case err == nil:
		return session, true
	case errors.Is(err, ErrSessionExpired):
		refreshed, refreshErr := m.refresh(ctx, session)
		if refreshErr == nil {
			return refreshed, true
		}
		logger.Warn("session refresh failed", "userId", session.UserID, "error", refreshErr)
	case errors.Is(err, ErrSessionNotFound):
	default:
		logger.Error("session lookup failed", "error", err)
	}
	return Session{}, false
}

// RequireSession returns the current session or a *RedirectError sending the
// caller to the login page. A session whose access token just expired gets
// one refresh attempt before the redirect.
func (m *Manager) RequireSession(r *http.Request) (Session, error) {
	session, ok := m.ResumeSession(r)
	if !ok {
		return Session{}, RedirectToLogin()
	}
	return session, nil
}

// RefreshIfDue refreshes the session when its access token expires within
// leeway. It reports whether a refresh happened.
func (m *Manager) RefreshIfDue(ctx context.Context, sessionID string, leeway time.Duration) (Session, bool, error) {
	session, err := m.store.Find(ctx, sessionID)
	if err != nil {
		return Session{}, false, err
	}

	if m.now().Add(leeway).Before(session.AccessExpiresAt) {
		return session, false, nil
	}

	refreshed, err := m.refresh(ctx, session)
	if err != nil {
		return session, false, err
	}
	return refreshed, true, nil
}

// SignOut revokes the current session at the identity service, deletes it
// locally and clears the cookie. Missing sessions are not an error.
func (m *Manager) SignOut(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	defer m.clearCookie(w)

	id := m.sessionID(r)
	if id == "" {
		return nil
	}

	session, err := m.store.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("find session: %w", err)
	}

	if err := m.provider.SignOut(ctx, session.AccessToken); err != nil {
		logger.Warn("identity provider sign out failed", "userId", session.UserID, "error", err)
	}

	if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}

	session.AccessToken = ""
	m.publish(EventSignedOut, session)
	logger.Info("session signed out", "userId", session.UserID)
	return nil
}

func (m *Manager) current(r *http.Request) (Session, error) {
	id := m.sessionID(r)
	if id == "" {
		return Session{}, ErrSessionNotFound
	}

	ctx := r.Context()
	session, err := m.store.Find(ctx, id)
	if err != nil {
		return Session{}, err
	}

	now := m.now()
	if now.After(session.ExpiresAt) {
		_ = m.store.Delete(ctx, id)
		return Session{}, ErrSessionNotFound
	}

	if !now.Add(m.skew).Before(session.AccessExpiresAt) {
		return session, ErrSessionExpired
	}

	return session, nil
}

func (m *Manager) refresh(ctx context.Context, session Session) (Session, error) {
	if session.RefreshToken == "" {
		return Session{}, ErrSessionExpired
	}

	// Concurrent requests from several tabs share one refresh per session.
	result, err, _ := m.refreshes.Do(session.ID, func() (any, error) {
		ctx, span := logging.StartSpan(ctx, "session.refresh")
		defer span.End()

		tokens, err := m.provider.Refresh(ctx, session.RefreshToken)
		if err != nil {
			span.Fail(err)
			return Session{}, fmt.Errorf("refresh tokens: %w", err)
		}

		updated := session
		updated.AccessToken = tokens.AccessToken
		updated.AccessExpiresAt = tokens.AccessExpiresAt.UTC()
		if tokens.RefreshToken != "" {
			updated.RefreshToken = tokens.RefreshToken
		}
		if tokens.Email != "" {
			updated.Email = tokens.Email
		}

		if err := m.store.Save(ctx, updated); err != nil {
			return Session{}, fmt.Errorf("save refreshed session: %w", err)
		}

		m.publish(EventTokenRefreshed, updated)
		return updated, nil
	})
	if err != nil {
		return Session{}, err
	}
	return result.(Session), nil
}

func (m *Manager) publish(kind EventKind, session Session) {
	m.events.Publish(Event{
		Kind:        kind,
		SessionID:   session.ID,
		Fingerprint: session.Fingerprint(),
		At:          m.now().UTC(),
	})
}

func (m *Manager) sessionID(r *http.Request) string {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func randomToken() (string, error) {
	const size = 32
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
