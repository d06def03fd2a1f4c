package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// EventKind classifies a session change.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventSignedOut      EventKind = "SIGNED_OUT"
)

// Event notifies listeners that a session's credentials changed.
type Event struct {
	Kind        EventKind
	SessionID   string
	Fingerprint string
	At          time.Time
}

// Fingerprint derives a short, non-reversible identifier for an access token.
// Empty tokens map to the empty fingerprint.
func Fingerprint(accessToken string) string {
	if accessToken == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:8])
}

type subscription struct {
	ch   chan Event
	once sync.Once
}

// Events fans session changes out to subscribers of a given session.
// Delivery to one subscriber preserves publish order. When a subscriber's
// buffer is full the oldest pending event is discarded so the newest state
// always arrives.
type Events struct {
	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	buffer int
}

// NewEvents creates a hub whose subscribers buffer up to buffer events.
func NewEvents(buffer int) *Events {
	if buffer <= 0 {
		buffer = 8
	}
	return &Events{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a listener for one session. The subscription ends when
// ctx is cancelled or the returned cancel func is called, whichever comes
// first; the channel is closed at that point.
func (e *Events) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, e.buffer)}

	e.mu.Lock()
	set, ok := e.subs[sessionID]
	if !ok {
		set = make(map[*subscription]struct{})
		e.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	e.mu.Unlock()

	stop := make(chan struct{})
	cancel := func() {
		sub.once.Do(func() {
			close(stop)
			e.remove(sessionID, sub)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()

	return sub.ch, cancel
}

// Publish delivers ev to every subscriber of ev.SessionID without blocking.
func (e *Events) Publish(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for sub := range e.subs[ev.SessionID] {
		for {
			select {
			case sub.ch <- ev:
			default:
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscribers reports how many listeners a session currently has.
func (e *Events) Subscribers(sessionID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs[sessionID])
}

func (e *Events) remove(sessionID string, sub *subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	set, ok := e.subs[sessionID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(e.subs, sessionID)
	}
}
