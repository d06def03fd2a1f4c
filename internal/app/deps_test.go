package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/todaymission/backend/internal/auth"
	"github.com/todaymission/backend/internal/config"
	"github.com/todaymission/backend/internal/db"
	"github.com/todaymission/backend/internal/models"
	"github.com/todaymission/backend/internal/repositories"
)

type fakePool struct{}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (fakePool) Ping(context.Context) error { return nil }

func (fakePool) Close() {}

func testConfig() config.Config {
	return config.Config{
		BaseURL:  "http://localhost:8080",
		LogLevel: "debug",
		Timezone: "Asia/Seoul",
		Supabase: config.SupabaseConfig{
			URL:            "https://project.supabase.co",
			AnonKey:        "anon",
			Provider:       "kakao",
			RequestTimeout: time.Second,
		},
		Session: config.SessionConfig{
			Backend:       config.SessionBackendMemory,
			CookieName:    "tm-session",
			TTL:           time.Hour,
			RefreshLeeway: time.Minute,
		},
		Auth: config.AuthConfig{
			CallbackTimeout:   time.Second,
			RateLimitRequests: 10,
			RateLimitWindow:   time.Minute,
			RateLimitBurst:    2,
		},
		CatalogCacheTTL: time.Minute,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildDependencies(t *testing.T) {
	deps, cleanup, err := buildDependencies(context.Background(), fakePool{}, testConfig(), discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleanup == nil {
		t.Fatal("expected cleanup function")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = cleanup(ctx)
	}()

	if deps.Sessions == nil {
		t.Fatal("expected session manager to be configured")
	}
	if deps.Identity == nil {
		t.Fatal("expected identity client to be configured")
	}
	if deps.Missions == nil || deps.History == nil {
		t.Fatal("expected mission repositories to be configured")
	}
	if deps.Badges == nil || deps.Challenges == nil {
		t.Fatal("expected badge catalog to be configured")
	}
	if deps.Renderer == nil {
		t.Fatal("expected renderer to be configured")
	}
	if deps.AuthLimiter == nil {
		t.Fatal("expected auth rate limiter to be configured")
	}
	if deps.Location == nil || deps.Location.String() != "Asia/Seoul" {
		t.Fatalf("expected Seoul location got %v", deps.Location)
	}
}

func TestBuildDependenciesRejectsBadIdentityURL(t *testing.T) {
	cfg := testConfig()
	cfg.Supabase.URL = "::not a url"

	if _, _, err := buildDependencies(context.Background(), fakePool{}, cfg, discardLogger()); err == nil {
		t.Fatal("expected identity configuration error")
	}
}

func TestNewSessionStore(t *testing.T) {
	store, cleanup, err := newSessionStore(context.Background(), fakePool{}, config.SessionConfig{Backend: config.SessionBackendMemory})
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, ok := store.(*auth.InMemorySessionStore); !ok {
		t.Fatalf("expected in-memory store got %T", store)
	}
	if err := cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	store, _, err = newSessionStore(context.Background(), fakePool{}, config.SessionConfig{Backend: config.SessionBackendPostgres})
	if err != nil {
		t.Fatalf("postgres backend: %v", err)
	}
	if _, ok := store.(*repositories.PostgresSessionStore); !ok {
		t.Fatalf("expected postgres store got %T", store)
	}

	_, _, err = newSessionStore(context.Background(), fakePool{}, config.SessionConfig{Backend: "etcd"})
	if !errors.Is(err, config.ErrInvalidSessionBackend) {
		t.Fatalf("expected invalid backend error got %v", err)
	}
}

type fakeSweeper struct {
	calls atomic.Int32
}

func (s *fakeSweeper) DeleteExpired(context.Context) (int64, error) {
	s.calls.Add(1)
	return 2, nil
}

func TestSweepExpiredSessions(t *testing.T) {
	sweeper := &fakeSweeper{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sweepExpiredSessions(ctx, sweeper, 5*time.Millisecond, discardLogger())
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for sweeper.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

type recordingCatalog struct {
	mu         sync.Mutex
	badges     []models.Badge
	challenges []models.Challenge
}

func (c *recordingCatalog) UpsertBadge(_ context.Context, badge models.Badge) (models.Badge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	badge.ID = int64(len(c.badges) + 1)
	c.badges = append(c.badges, badge)
	return badge, nil
}

func (c *recordingCatalog) UpsertChallenge(_ context.Context, challenge models.Challenge) (models.Challenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.challenges = append(c.challenges, challenge)
	return challenge, nil
}

type fakeImages struct {
	saved map[string]string
}

func (f *fakeImages) SaveImage(_ context.Context, name string, r io.Reader) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.saved[name] = string(body)
	return "https://cdn.example.com/badges/" + name, nil
}

func TestSeedCatalog(t *testing.T) {
	catalog, err := db.LoadSeedCatalog()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	repo := &recordingCatalog{}
	seeded, err := seedCatalog(context.Background(), repo, nil, "", catalog, discardLogger())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if seeded != len(catalog.Badges) || len(repo.challenges) != len(catalog.Badges) {
		t.Fatalf("expected %d badges and challenges got %d/%d", len(catalog.Badges), seeded, len(repo.challenges))
	}
	for i, challenge := range repo.challenges {
		if challenge.BadgeID != repo.badges[i].ID {
			t.Fatalf("challenge %q not linked to its badge", challenge.Title)
		}
		if repo.badges[i].ImageURL != "" {
			t.Fatalf("expected no image url without an object store")
		}
	}
}

func TestSeedCatalogUploadsImages(t *testing.T) {
	dir := t.TempDir()
	catalog := db.SeedCatalog{Badges: []db.SeedBadge{{
		Name:      "첫 걸음",
		Image:     "first-step.png",
		Challenge: db.SeedChallenge{Title: "첫 미션 완료", Condition: db.SeedCondition{Type: "total_completions", Count: 1}},
	}}}
	if err := os.WriteFile(filepath.Join(dir, "first-step.png"), []byte("png"), 0o600); err != nil {
		t.Fatalf("write image: %v", err)
	}

	repo := &recordingCatalog{}
	images := &fakeImages{saved: map[string]string{}}
	if _, err := seedCatalog(context.Background(), repo, images, dir, catalog, discardLogger()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if images.saved["first-step.png"] != "png" {
		t.Fatal("expected image to be uploaded")
	}
	if repo.badges[0].ImageURL != "https://cdn.example.com/badges/first-step.png" {
		t.Fatalf("unexpected image url %q", repo.badges[0].ImageURL)
	}

	catalog.Badges[0].Image = "missing.png"
	if _, err := seedCatalog(context.Background(), repo, images, dir, catalog, discardLogger()); err == nil {
		t.Fatal("expected missing image to fail the seed")
	}
}

func TestMigrateWithRetry(t *testing.T) {
	attempts := 0
	err := migrateWithRetry(context.Background(), discardLogger(), func(context.Context) error {
		attempts++
		if attempts < 2 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	if err != nil || attempts != 2 {
		t.Fatalf("expected success on second attempt, err=%v attempts=%d", err, attempts)
	}

	attempts = 0
	permanent := errors.New("syntax error")
	err = migrateWithRetry(context.Background(), discardLogger(), func(context.Context) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) || attempts != 1 {
		t.Fatalf("expected permanent error without retry, err=%v attempts=%d", err, attempts)
	}
}

func TestRetryPolicyGivesUp(t *testing.T) {
	policy := retryPolicy{attempts: 3, initial: time.Millisecond, ceiling: 2 * time.Millisecond}
	attempts := 0
	err := policy.run(context.Background(), discardLogger(), func(context.Context) error {
		attempts++
		return &pgconn.PgError{Code: "40P01"}
	})
	if attempts != 3 {
		t.Fatalf("expected 3 attempts got %d", attempts)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "40P01" {
		t.Fatalf("expected wrapped deadlock error got %v", err)
	}
	if got := policy.delay(5); got != 2*time.Millisecond {
		t.Fatalf("expected delay capped at ceiling got %s", got)
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	err := Run(context.Background(), []string{"explode"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error got %v", err)
	}

	err = Run(context.Background(), []string{"migrate", "up", "extra"})
	if err == nil {
		t.Fatal("expected argument count error")
	}
}
