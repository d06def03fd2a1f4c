package repositories

import (
	"context"

	"github.com/todaymission/backend/internal/models"
)

// BadgeRepository exposes the badge and challenge catalogs.
type BadgeRepository interface {
	ListUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error)
	ListChallenges(ctx context.Context) ([]models.Challenge, error)
	UpsertBadge(ctx context.Context, badge models.Badge) (models.Badge, error)
	UpsertChallenge(ctx context.Context, challenge models.Challenge) (models.Challenge, error)
}
