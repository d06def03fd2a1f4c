package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/todaymission/backend/internal/auth"
	"github.com/todaymission/backend/internal/logging"
	"github.com/todaymission/backend/internal/metrics"
	"github.com/todaymission/backend/internal/sessionsync"
)

const (
	reloadScript           = "window.location.reload()"
	defaultRefreshInterval = 15 * time.Second
)

// EventsHandler streams session changes to open pages.
type EventsHandler struct {
	Sessions SessionManager
	Metrics  *metrics.Metrics
	// RefreshLeeway is how close to expiry an access token may get before the
	// stream refreshes it.
	RefreshLeeway   time.Duration
	RefreshInterval time.Duration
}

// Stream handles GET /auth/events?v=<fingerprint>. The page is told to
// reload once for every access token it has not been rendered with, and to
// go to the login page when the session ends.
func (h EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	session, ok := h.Sessions.ResumeSession(r)
	sse := datastar.NewSSE(w, r)
	if !ok {
		if err := sse.Redirect(auth.LoginPath); err != nil {
			logger.Debug("redirect stream closed", "error", err)
		}
		return
	}

	done := h.Metrics.StreamOpened()
	defer done()

	interval := h.RefreshInterval
	if interval <= 0 {
		interval = defaultRefreshInterval
	}

	reload := func(_ context.Context, ev auth.Event) error {
		if ev.Kind == auth.EventSignedOut {
			return sse.Redirect(auth.LoginPath)
		}
		return sse.ExecuteScript(reloadScript)
	}

	syncer := sessionsync.New(h.Sessions.Events(), sessionsync.Options{
		SessionID: session.ID,
		Rendered:  r.URL.Query().Get("v"),
		Reload:    reload,
		Interval:  interval,
		Tick: func(ctx context.Context) error {
			_, refreshed, err := h.Sessions.RefreshIfDue(ctx, session.ID, h.RefreshLeeway)
			switch {
			case err != nil:
				h.Metrics.SessionRefresh("error")
				return err
			case refreshed:
				h.Metrics.SessionRefresh("ok")
			}
			return nil
		},
	})

	// The token may have changed between rendering and opening the stream.
	current := auth.Event{Kind: auth.EventTokenRefreshed, SessionID: session.ID, Fingerprint: session.Fingerprint()}
	if syncer.Observe(current) {
		if err := reload(ctx, current); err != nil {
			logger.Debug("session stream closed", "error", err)
		}
		return
	}

	if err := syncer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("session stream closed", "error", err)
	}
}
