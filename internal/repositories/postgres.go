package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/todaymission/backend/internal/db"
	"github.com/todaymission/backend/internal/models"
)

// PostgresMissionRepository provides PostgreSQL-backed persistence for missions
// and their completion history.
type PostgresMissionRepository struct {
	pool db.Pool
}

// NewPostgresMissionRepository constructs a mission repository backed by PostgreSQL.
func NewPostgresMissionRepository(pool db.Pool) *PostgresMissionRepository {
	return &PostgresMissionRepository{pool: pool}
}

const missionColumns = `id, user_id, title, weekday, completed, created_at`

// ListForUser returns every mission owned by the user ordered by id.
func (r *PostgresMissionRepository) ListForUser(ctx context.Context, userID string) ([]models.Mission, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+missionColumns+`
        FROM missions
        WHERE user_id = $1
        ORDER BY id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query missions: %w", err)
	}

	return collectMissions(rows)
}

// ListForWeekday returns the user's missions for one weekday ordered by id.
func (r *PostgresMissionRepository) ListForWeekday(ctx context.Context, userID string, weekday models.Weekday) ([]models.Mission, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+missionColumns+`
        FROM missions
        WHERE user_id = $1 AND weekday = $2
        ORDER BY id
    `, userID, string(weekday))
	if err != nil {
		return nil, fmt.Errorf("query missions for %s: %w", weekday, err)
	}

	return collectMissions(rows)
}

// Create inserts a mission unless the weekday already holds
// models.MaxMissionsPerDay missions, in which case ErrMissionLimit is returned.
func (r *PostgresMissionRepository) Create(ctx context.Context, userID, title string, weekday models.Weekday) (models.Mission, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = models.DefaultMissionTitle
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Mission{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        INSERT INTO missions (user_id, title, weekday, completed, created_at)
        SELECT $1::TEXT, $2::TEXT, $3::TEXT, FALSE, $4::TIMESTAMPTZ
        WHERE (SELECT count(*) FROM missions WHERE user_id = $1::TEXT AND weekday = $3::TEXT) < $5::INT
        RETURNING `+missionColumns+`
    `, userID, title, string(weekday), time.Now().UTC(), models.MaxMissionsPerDay)

	mission, err := scanMission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Mission{}, ErrMissionLimit
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return models.Mission{}, fmt.Errorf("invalid weekday %q: %w", weekday, err)
		}
		return models.Mission{}, fmt.Errorf("insert mission: %w", err)
	}

	return mission, nil
}

// UpdateTitle renames a mission owned by the user.
func (r *PostgresMissionRepository) UpdateTitle(ctx context.Context, userID string, id int64, title string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE missions
        SET title = $3
        WHERE id = $1 AND user_id = $2
    `, id, userID, title)
	if err != nil {
		return fmt.Errorf("update mission title: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a mission owned by the user. History rows are kept.
func (r *PostgresMissionRepository) Delete(ctx context.Context, userID string, id int64) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM missions
        WHERE id = $1 AND user_id = $2
    `, id, userID)
	if err != nil {
		return fmt.Errorf("delete mission: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SetCompleted sets a mission's completion flag and reports whether it
// changed. A change to completed appends one history row stamped with the ISO
// week of at. Un-completing leaves history untouched and repeating the current
// state writes nothing.
func (r *PostgresMissionRepository) SetCompleted(ctx context.Context, userID string, id int64, completed bool, at time.Time) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var title string
	err = tx.QueryRow(ctx, `
        UPDATE missions
        SET completed = $3
        WHERE id = $1 AND user_id = $2 AND completed IS DISTINCT FROM $3
        RETURNING title
    `, id, userID, completed).Scan(&title)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("update mission completion: %w", err)
		}

		var exists bool
		if err := tx.QueryRow(ctx, `
            SELECT EXISTS (SELECT 1 FROM missions WHERE id = $1 AND user_id = $2)
        `, id, userID).Scan(&exists); err != nil {
			return false, fmt.Errorf("check mission ownership: %w", err)
		}
		if !exists {
			return false, ErrNotFound
		}
		return false, nil
	}

	if completed {
		year, week := models.ISOWeekStamp(at)
		if _, err := tx.Exec(ctx, `
            INSERT INTO mission_history (user_id, mission_id, mission_title, completed_at, week_number, year)
            VALUES ($1, $2, $3, $4, $5, $6)
        `, userID, id, title, at.UTC(), week, year); err != nil {
			return false, fmt.Errorf("insert mission history: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit mission completion: %w", err)
	}

	return true, nil
}

// ListForYear returns the user's completion history for one ISO year, newest
// week first.
func (r *PostgresMissionRepository) ListForYear(ctx context.Context, userID string, year int) ([]models.MissionHistory, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, user_id, mission_id, mission_title, completed_at, week_number, year
        FROM mission_history
        WHERE user_id = $1 AND year = $2
        ORDER BY week_number DESC, completed_at DESC
    `, userID, year)
	if err != nil {
		return nil, fmt.Errorf("query mission history: %w", err)
	}
	defer rows.Close()

	var history []models.MissionHistory
	for rows.Next() {
		var entry models.MissionHistory
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.MissionID, &entry.MissionTitle, &entry.CompletedAt, &entry.WeekNumber, &entry.Year); err != nil {
			return nil, fmt.Errorf("scan mission history: %w", err)
		}
		entry.CompletedAt = entry.CompletedAt.UTC()
		history = append(history, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mission history: %w", err)
	}

	return history, nil
}

func scanMission(row pgx.Row) (models.Mission, error) {
	var (
		mission models.Mission
		weekday string
	)
	if err := row.Scan(&mission.ID, &mission.UserID, &mission.Title, &weekday, &mission.Completed, &mission.CreatedAt); err != nil {
		return models.Mission{}, err
	}
	mission.Weekday = models.Weekday(weekday)
	mission.CreatedAt = mission.CreatedAt.UTC()
	return mission, nil
}

func collectMissions(rows pgx.Rows) ([]models.Mission, error) {
	defer rows.Close()

	var missions []models.Mission
	for rows.Next() {
		mission, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		missions = append(missions, mission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate missions: %w", err)
	}

	return missions, nil
}

// PostgresBadgeRepository provides PostgreSQL-backed access to badges and challenges.
type PostgresBadgeRepository struct {
	pool db.Pool
}

// NewPostgresBadgeRepository constructs a badge repository backed by PostgreSQL.
func NewPostgresBadgeRepository(pool db.Pool) *PostgresBadgeRepository {
	return &PostgresBadgeRepository{pool: pool}
}

// ListUserBadges returns the badges a user earned, most recent first.
func (r *PostgresBadgeRepository) ListUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT ub.id, ub.user_id, ub.badge_id, ub.acquired_at,
               b.id, b.name, b.description, b.image_url, b.created_at
        FROM user_badges ub
        JOIN badges b ON b.id = ub.badge_id
        WHERE ub.user_id = $1
        ORDER BY ub.acquired_at DESC, ub.id DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query user badges: %w", err)
	}
	defer rows.Close()

	var badges []models.UserBadge
	for rows.Next() {
		var ub models.UserBadge
		if err := rows.Scan(&ub.ID, &ub.UserID, &ub.BadgeID, &ub.AcquiredAt,
			&ub.Badge.ID, &ub.Badge.Name, &ub.Badge.Description, &ub.Badge.ImageURL, &ub.Badge.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user badge: %w", err)
		}
		ub.AcquiredAt = ub.AcquiredAt.UTC()
		ub.Badge.CreatedAt = ub.Badge.CreatedAt.UTC()
		badges = append(badges, ub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user badges: %w", err)
	}

	return badges, nil
}

// ListChallenges returns the challenge catalog with each challenge's badge.
func (r *PostgresBadgeRepository) ListChallenges(ctx context.Context) ([]models.Challenge, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT c.id, c.title, c.description, c.badge_id, c.condition_type, c.condition_count,
               b.id, b.name, b.description, b.image_url, b.created_at
        FROM challenges c
        JOIN badges b ON b.id = c.badge_id
        ORDER BY c.id
    `)
	if err != nil {
		return nil, fmt.Errorf("query challenges: %w", err)
	}
	defer rows.Close()

	var challenges []models.Challenge
	for rows.Next() {
		var (
			c     models.Challenge
			badge models.Badge
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.BadgeID, &c.Condition.Type, &c.Condition.Count,
			&badge.ID, &badge.Name, &badge.Description, &badge.ImageURL, &badge.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		badge.CreatedAt = badge.CreatedAt.UTC()
		c.Badge = &badge
		challenges = append(challenges, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate challenges: %w", err)
	}

	return challenges, nil
}

// UpsertBadge inserts a badge or updates the one with the same name.
func (r *PostgresBadgeRepository) UpsertBadge(ctx context.Context, badge models.Badge) (models.Badge, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Badge{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        INSERT INTO badges (name, description, image_url)
        VALUES ($1, $2, $3)
        ON CONFLICT (name)
        DO UPDATE SET description = EXCLUDED.description, image_url = EXCLUDED.image_url
        RETURNING id, name, description, image_url, created_at
    `, badge.Name, badge.Description, badge.ImageURL)

	var saved models.Badge
	if err := row.Scan(&saved.ID, &saved.Name, &saved.Description, &saved.ImageURL, &saved.CreatedAt); err != nil {
		return models.Badge{}, fmt.Errorf("upsert badge: %w", err)
	}
	saved.CreatedAt = saved.CreatedAt.UTC()
	return saved, nil
}

// UpsertChallenge inserts a challenge or updates the one with the same title.
func (r *PostgresBadgeRepository) UpsertChallenge(ctx context.Context, challenge models.Challenge) (models.Challenge, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Challenge{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        INSERT INTO challenges (title, description, badge_id, condition_type, condition_count)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (title)
        DO UPDATE SET description = EXCLUDED.description,
                      badge_id = EXCLUDED.badge_id,
                      condition_type = EXCLUDED.condition_type,
                      condition_count = EXCLUDED.condition_count
        RETURNING id, title, description, badge_id, condition_type, condition_count
    `, challenge.Title, challenge.Description, challenge.BadgeID, challenge.Condition.Type, challenge.Condition.Count)

	var saved models.Challenge
	if err := row.Scan(&saved.ID, &saved.Title, &saved.Description, &saved.BadgeID, &saved.Condition.Type, &saved.Condition.Count); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return models.Challenge{}, ErrNotFound
		}
		return models.Challenge{}, fmt.Errorf("upsert challenge: %w", err)
	}
	return saved, nil
}

var _ MissionRepository = (*PostgresMissionRepository)(nil)
var _ HistoryRepository = (*PostgresMissionRepository)(nil)
var _ BadgeRepository = (*PostgresBadgeRepository)(nil)
