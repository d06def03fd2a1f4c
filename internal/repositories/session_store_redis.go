package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/todaymission/backend/internal/auth"
)

const redisSessionPrefix = "todaymission:session:"

// RedisSessionStore keeps server-side sessions in Redis with a TTL matching
// each session's expiry.
type RedisSessionStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisSessionStore constructs a session store backed by Redis.
func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client, now: time.Now}
}

// ConnectRedis parses url and verifies the server answers a ping.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type redisSession struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Email           string    `json:"email"`
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Save stores or updates a session record.
func (s *RedisSessionStore) Save(ctx context.Context, session auth.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("save session: %w", auth.ErrSessionExpired)
	}

	payload, err := json.Marshal(redisSession(session))
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := s.client.Set(ctx, redisSessionPrefix+session.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// Find loads a session by its identifier.
func (s *RedisSessionStore) Find(ctx context.Context, id string) (auth.Session, error) {
	raw, err := s.client.Get(ctx, redisSessionPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return auth.Session{}, fmt.Errorf("get session: %w", err)
	}

	var stored redisSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return auth.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return auth.Session(stored), nil
}

// Delete removes a session by its identifier.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, redisSessionPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

var _ auth.SessionStore = (*RedisSessionStore)(nil)
