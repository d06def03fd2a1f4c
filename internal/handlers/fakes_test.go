package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/todaymission/backend/internal/auth"
	"github.com/todaymission/backend/internal/models"
	"github.com/todaymission/backend/internal/repositories"
	"github.com/todaymission/backend/internal/views"
)

var (
	kst = time.FixedZone("KST", 9*60*60)
	// A Wednesday morning in Seoul.
	testNow = time.Date(2024, time.March, 6, 9, 0, 0, 0, kst)

	errRejected = errors.New("invalid grant")
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeIdentity struct {
	mu        sync.Mutex
	used      map[string]bool
	exchanges int
	sets      int
	block     bool
	now       func() time.Time
}

func (f *fakeIdentity) AuthorizeURL(redirectTo string) (string, string) {
	return "https://idp.example.com/auth/v1/authorize?redirect_to=" + redirectTo, "verifier-1"
}

func (f *fakeIdentity) ExchangeCode(ctx context.Context, code, verifier string) (models.SessionTokens, error) {
	f.mu.Lock()
	f.exchanges++
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return models.SessionTokens{}, fmt.Errorf("exchange code: %w", ctx.Err())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if code != "good" || verifier != "verifier-1" || f.used[code] {
		return models.SessionTokens{}, errRejected
	}
	f.used[code] = true
	return f.tokens("access-from-code"), nil
}

func (f *fakeIdentity) SetSession(_ context.Context, accessToken, refreshToken string) (models.SessionTokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if accessToken != "valid-access" {
		return models.SessionTokens{}, errRejected
	}
	tokens := f.tokens(accessToken)
	tokens.RefreshToken = refreshToken
	return tokens, nil
}

func (f *fakeIdentity) tokens(access string) models.SessionTokens {
	return models.SessionTokens{
		AccessToken:     access,
		AccessExpiresAt: f.now().Add(time.Hour),
		RefreshToken:    "refresh-1",
		UserID:          "user-1",
		Email:           "user@example.com",
	}
}

func (f *fakeIdentity) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchanges, f.sets
}

type fakeTokenProvider struct {
	mu        sync.Mutex
	refreshes int
	now       func() time.Time
}

func (p *fakeTokenProvider) Refresh(_ context.Context, refreshToken string) (models.SessionTokens, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes++
	return models.SessionTokens{
		AccessToken:     fmt.Sprintf("refreshed-%d", p.refreshes),
		AccessExpiresAt: p.now().Add(time.Hour),
		RefreshToken:    refreshToken,
		UserID:          "user-1",
	}, nil
}

func (p *fakeTokenProvider) SignOut(context.Context, string) error { return nil }

type inMemoryMissionStore struct {
	mu       sync.Mutex
	nextID   int64
	missions map[int64]models.Mission
	history  []models.MissionHistory
}

func newInMemoryMissionStore() *inMemoryMissionStore {
	return &inMemoryMissionStore{missions: make(map[int64]models.Mission)}
}

func (s *inMemoryMissionStore) add(userID, title string, weekday models.Weekday) models.Mission {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m := models.Mission{ID: s.nextID, UserID: userID, Title: title, Weekday: weekday, CreatedAt: testNow}
	s.missions[m.ID] = m
	return m
}

func (s *inMemoryMissionStore) get(id int64) (models.Mission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	return m, ok
}

func (s *inMemoryMissionStore) historyLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *inMemoryMissionStore) list(filter func(models.Mission) bool) []models.Mission {
	var out []models.Mission
	for _, m := range s.missions {
		if filter(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *inMemoryMissionStore) ListForUser(_ context.Context, userID string) ([]models.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(m models.Mission) bool { return m.UserID == userID }), nil
}

func (s *inMemoryMissionStore) ListForWeekday(_ context.Context, userID string, weekday models.Weekday) ([]models.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(m models.Mission) bool { return m.UserID == userID && m.Weekday == weekday }), nil
}

func (s *inMemoryMissionStore) Create(_ context.Context, userID, title string, weekday models.Weekday) (models.Mission, error) {
	s.mu.Lock()
	count := len(s.list(func(m models.Mission) bool { return m.UserID == userID && m.Weekday == weekday }))
	s.mu.Unlock()
	if count >= models.MaxMissionsPerDay {
		return models.Mission{}, repositories.ErrMissionLimit
	}
	return s.add(userID, title, weekday), nil
}

func (s *inMemoryMissionStore) UpdateTitle(_ context.Context, userID string, id int64, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	if !ok || m.UserID != userID {
		return repositories.ErrNotFound
	}
	m.Title = title
	s.missions[id] = m
	return nil
}

func (s *inMemoryMissionStore) Delete(_ context.Context, userID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	if !ok || m.UserID != userID {
		return repositories.ErrNotFound
	}
	delete(s.missions, id)
	return nil
}

func (s *inMemoryMissionStore) SetCompleted(_ context.Context, userID string, id int64, completed bool, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	if !ok || m.UserID != userID {
		return false, repositories.ErrNotFound
	}
	if m.Completed == completed {
		return false, nil
	}
	m.Completed = completed
	s.missions[id] = m
	if completed {
		year, week := models.ISOWeekStamp(at)
		s.history = append(s.history, models.MissionHistory{
			ID:           int64(len(s.history) + 1),
			UserID:       userID,
			MissionID:    id,
			MissionTitle: m.Title,
			CompletedAt:  at,
			WeekNumber:   week,
			Year:         year,
		})
	}
	return true, nil
}

func (s *inMemoryMissionStore) ListForYear(_ context.Context, userID string, year int) ([]models.MissionHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MissionHistory
	for _, h := range s.history {
		if h.UserID == userID && h.Year == year {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].WeekNumber != out[j].WeekNumber {
			return out[i].WeekNumber > out[j].WeekNumber
		}
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	return out, nil
}

type staticBadges []models.UserBadge

func (b staticBadges) ListUserBadges(context.Context, string) ([]models.UserBadge, error) {
	return b, nil
}

type staticChallenges struct {
	challenges []models.Challenge
	err        error
}

func (c staticChallenges) ListChallenges(context.Context) ([]models.Challenge, error) {
	return c.challenges, c.err
}

type testEnv struct {
	router   chi.Router
	clock    *testClock
	store    *auth.InMemorySessionStore
	manager  *auth.Manager
	identity *fakeIdentity
	missions *inMemoryMissionStore
}

func newTestEnv(t *testing.T, configure ...func(*Dependencies)) *testEnv {
	t.Helper()

	clock := &testClock{t: testNow}
	store := auth.NewInMemorySessionStore()
	manager := auth.NewManager(store, &fakeTokenProvider{now: clock.Now}, auth.ManagerOptions{
		TTL:     24 * time.Hour,
		Events:  auth.NewEvents(8),
		NowFunc: clock.Now,
	})
	renderer, err := views.NewRenderer()
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}

	env := &testEnv{
		clock:    clock,
		store:    store,
		manager:  manager,
		identity: &fakeIdentity{used: map[string]bool{}, now: clock.Now},
		missions: newInMemoryMissionStore(),
	}

	deps := Dependencies{
		Renderer: renderer,
		Sessions: manager,
		Identity: env.identity,
		Missions: env.missions,
		History:  env.missions,
		Badges: staticBadges{{
			UserID: "user-1",
			Badge:  models.Badge{Name: "첫 걸음"},
		}},
		Challenges: staticChallenges{challenges: []models.Challenge{{Title: "완벽한 한 주"}}},
		BaseURL:         "http://localhost:8080",
		CallbackTimeout: time.Second,
		RefreshLeeway:   time.Minute,
		RefreshInterval: time.Hour,
		Location:        kst,
		NowFunc:         clock.Now,
	}
	for _, fn := range configure {
		fn(&deps)
	}

	env.router = NewRouter(deps)
	return env
}

// signIn establishes a session for user-1 and returns its cookie.
func (e *testEnv) signIn(t *testing.T) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	_, err := e.manager.Establish(context.Background(), rec, models.SessionTokens{
		AccessToken:     "access-1",
		AccessExpiresAt: e.clock.Now().Add(time.Hour),
		RefreshToken:    "refresh-1",
		UserID:          "user-1",
		Email:           "user@example.com",
	})
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one session cookie got %d", len(cookies))
	}
	return cookies[0]
}

func (e *testEnv) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
