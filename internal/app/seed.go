package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/todaymission/backend/internal/config"
	"github.com/todaymission/backend/internal/db"
	"github.com/todaymission/backend/internal/models"
	"github.com/todaymission/backend/internal/repositories"
	"github.com/todaymission/backend/internal/storage"
)

// catalogWriter is the part of the badge repository seeding writes through.
type catalogWriter interface {
	UpsertBadge(ctx context.Context, badge models.Badge) (models.Badge, error)
	UpsertChallenge(ctx context.Context, challenge models.Challenge) (models.Challenge, error)
}

func runSeed(ctx context.Context, imagesDir string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	catalog, err := db.LoadSeedCatalog()
	if err != nil {
		return err
	}

	var images storage.ImageStore
	if imagesDir != "" {
		if !cfg.ObjectStore.Enabled() {
			return fmt.Errorf("--badge-images requires OBJECT_STORE_BUCKET")
		}
		s3, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return err
		}
		images = s3
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	seeded, err := seedCatalog(ctx, repositories.NewPostgresBadgeRepository(pool), images, imagesDir, catalog, logger)
	if err != nil {
		return err
	}

	logger.Info("seeded badge catalog", "badges", seeded)
	return nil
}

// seedCatalog upserts every badge with its challenge. When images is set each
// badge's artwork is uploaded from imagesDir first.
func seedCatalog(ctx context.Context, repo catalogWriter, images storage.ImageStore, imagesDir string, catalog db.SeedCatalog, logger *slog.Logger) (int, error) {
	for _, entry := range catalog.Badges {
		imageURL := ""
		if images != nil && entry.Image != "" {
			url, err := uploadImage(ctx, images, filepath.Join(imagesDir, entry.Image), entry.Image)
			if err != nil {
				return 0, err
			}
			imageURL = url
		}

		badge, err := repo.UpsertBadge(ctx, models.Badge{
			Name:        entry.Name,
			Description: entry.Description,
			ImageURL:    imageURL,
		})
		if err != nil {
			return 0, fmt.Errorf("seed badge %q: %w", entry.Name, err)
		}

		if _, err := repo.UpsertChallenge(ctx, models.Challenge{
			Title:       entry.Challenge.Title,
			Description: entry.Challenge.Description,
			BadgeID:     badge.ID,
			Condition: models.ChallengeCondition{
				Type:  entry.Challenge.Condition.Type,
				Count: entry.Challenge.Condition.Count,
			},
		}); err != nil {
			return 0, fmt.Errorf("seed challenge %q: %w", entry.Challenge.Title, err)
		}

		logger.Debug("seeded badge", "name", badge.Name, "image", imageURL != "")
	}

	return len(catalog.Badges), nil
}

func uploadImage(ctx context.Context, images storage.ImageStore, path, name string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open badge image: %w", err)
	}
	defer f.Close()

	url, err := images.SaveImage(ctx, name, f)
	if err != nil {
		return "", fmt.Errorf("upload badge image %s: %w", name, err)
	}
	return url, nil
}
