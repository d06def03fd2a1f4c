package repositories

import (
	"context"
	"time"

	"github.com/todaymission/backend/internal/models"
)

// MissionRepository defines the data access contract for missions. Every
// call is scoped to the owning user.
type MissionRepository interface {
	ListForUser(ctx context.Context, userID string) ([]models.Mission, error)
	ListForWeekday(ctx context.Context, userID string, weekday models.Weekday) ([]models.Mission, error)
	Create(ctx context.Context, userID, title string, weekday models.Weekday) (models.Mission, error)
	UpdateTitle(ctx context.Context, userID string, id int64, title string) error
	Delete(ctx context.Context, userID string, id int64) error
	SetCompleted(ctx context.Context, userID string, id int64, completed bool, at time.Time) (bool, error)
}

// HistoryRepository exposes the append-only completion log.
type HistoryRepository interface {
	ListForYear(ctx context.Context, userID string, year int) ([]models.MissionHistory, error)
}
