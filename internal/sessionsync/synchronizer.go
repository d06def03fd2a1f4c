// Package sessionsync keeps an open page consistent with server-side session
// changes. A page is rendered with the fingerprint of the access token it
// used; whenever a session event carries a different fingerprint the page is
// told to re-fetch, once per distinct token.
package sessionsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/todaymission/backend/internal/auth"
	"github.com/todaymission/backend/internal/logging"
)

// Subscriber is the part of the event hub the synchronizer depends on.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) (<-chan auth.Event, func())
}

// ReloadFunc is invoked for each event that requires the page to re-fetch.
type ReloadFunc func(ctx context.Context, ev auth.Event) error

// TickFunc runs periodically while the synchronizer is running.
type TickFunc func(ctx context.Context) error

// Options configures a Synchronizer.
type Options struct {
	SessionID string
	// Rendered is the fingerprint of the token the page was rendered with.
	Rendered string
	Reload   ReloadFunc
	Interval time.Duration
	Tick     TickFunc
}

// Synchronizer reacts to session events for a single open page.
type Synchronizer struct {
	hub  Subscriber
	opts Options

	mu   sync.Mutex
	last string
}

// New returns a synchronizer for one page.
func New(hub Subscriber, opts Options) *Synchronizer {
	if hub == nil {
		panic("sessionsync: subscriber must not be nil")
	}
	if opts.Reload == nil {
		panic("sessionsync: reload func must not be nil")
	}
	return &Synchronizer{hub: hub, opts: opts, last: opts.Rendered}
}

// Observe records ev and reports whether the page must re-fetch. Events whose
// fingerprint matches the last one seen are ignored.
func (s *Synchronizer) Observe(ev auth.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Fingerprint == s.last {
		return false
	}
	s.last = ev.Fingerprint
	return true
}

// Last returns the most recent fingerprint acted on.
func (s *Synchronizer) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run consumes session events until ctx ends or the hub closes the
// subscription. The subscription is always released before Run returns.
func (s *Synchronizer) Run(ctx context.Context) error {
	events, cancel := s.hub.Subscribe(ctx, s.opts.SessionID)
	defer cancel()

	logger := logging.FromContext(ctx)

	var tick <-chan time.Time
	if s.opts.Tick != nil && s.opts.Interval > 0 {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !s.Observe(ev) {
				logger.Debug("session event ignored", "kind", ev.Kind)
				continue
			}
			if err := s.opts.Reload(ctx, ev); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			if ev.Kind == auth.EventSignedOut {
				return nil
			}
		case <-tick:
			if err := s.opts.Tick(ctx); err != nil {
				logger.Warn("session tick failed", "error", err)
			}
		}
	}
}
