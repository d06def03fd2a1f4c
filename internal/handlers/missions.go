package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/todaymission/backend/internal/auth"
	"github.com/todaymission/backend/internal/logging"
	"github.com/todaymission/backend/internal/metrics"
	"github.com/todaymission/backend/internal/models"
	"github.com/todaymission/backend/internal/repositories"
	"github.com/todaymission/backend/internal/views"
)

// Form intents.
const (
	IntentComplete      = "complete"
	IntentAddMission    = "add-mission"
	IntentDeleteMission = "delete-mission"
	IntentUpdateMission = "update-mission"
)

const (
	dashboardPath  = "/dashboard"
	challengesPath = "/dashboard/challenges"
	maxTitleLength = 100
)

// DashboardHandler serves the signed-in pages and their form actions.
type DashboardHandler struct {
	Sessions   SessionManager
	Missions   MissionStore
	History    HistoryStore
	Badges     BadgeStore
	Challenges ChallengeSource
	Renderer   Renderer
	Metrics    *metrics.Metrics
	Location   *time.Location
	NowFunc    func() time.Time
}

func (h DashboardHandler) now() time.Time {
	now := time.Now()
	if h.NowFunc != nil {
		now = h.NowFunc()
	}
	if h.Location != nil {
		now = now.In(h.Location)
	}
	return now
}

// Dashboard handles GET /dashboard.
func (h DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) error {
	session, err := h.Sessions.RequireSession(r)
	if err != nil {
		return err
	}

	ctx := r.Context()
	now := h.now()
	weekday, isWeekday := models.WeekdayOf(now)

	var missions []models.Mission
	if isWeekday {
		missions, err = h.Missions.ListForWeekday(ctx, session.UserID, weekday)
		if err != nil {
			return fmt.Errorf("list today's missions: %w", err)
		}
	}

	done := 0
	for _, mission := range missions {
		if mission.Completed {
			done++
		}
	}

	return h.Renderer.Render(w, http.StatusOK, views.PageDashboard, views.DashboardPage{
		Page:      basePage(r, "오늘의 미션", "dashboard", session),
		Today:     now,
		Weekday:   weekday,
		IsWeekday: isWeekday,
		Missions:  missions,
		Week:      views.BuildWeek(now),
		Done:      done,
	})
}

// DashboardAction handles POST /dashboard.
func (h DashboardHandler) DashboardAction(w http.ResponseWriter, r *http.Request) error {
	session, err := h.Sessions.RequireSession(r)
	if err != nil {
		return err
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return nil
	}

	intent := r.PostFormValue("intent")
	if intent != IntentComplete {
		return h.unknownIntent(w, r, intent)
	}

	id, ok := formID(r)
	if !ok {
		http.Error(w, "invalid mission id", http.StatusBadRequest)
		return nil
	}
	completed, err := strconv.ParseBool(r.PostFormValue("completed"))
	if err != nil {
		http.Error(w, "invalid completed value", http.StatusBadRequest)
		return nil
	}

	_, err = h.Missions.SetCompleted(r.Context(), session.UserID, id, completed, h.now())
	if err := h.actionResult(r, intent, id, err); err != nil {
		return err
	}

	http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
	return nil
}

// HallOfFame handles GET /dashboard/hall-of-fame.
func (h DashboardHandler) HallOfFame(w http.ResponseWriter, r *http.Request) error {
	session, err := h.Sessions.RequireSession(r)
	if err != nil {
		return err
	}

	ctx := r.Context()
	year, week := models.ISOWeekStamp(h.now())

	badges, err := h.Badges.ListUserBadges(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("list badges: %w", err)
	}
	history, err := h.History.ListForYear(ctx, session.UserID, year)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}

	return h.Renderer.Render(w, http.StatusOK, views.PageHallOfFame, views.HallOfFamePage{
		Page:        basePage(r, "명예의 전당", "hall-of-fame", session),
		Year:        year,
		CurrentWeek: week,
		Badges:      badges,
		Weeks:       models.GroupHistoryByWeek(history),
	})
}

// ChallengesPage handles GET /dashboard/challenges.
func (h DashboardHandler) ChallengesPage(w http.ResponseWriter, r *http.Request) error {
	session, err := h.Sessions.RequireSession(r)
	if err != nil {
		return err
	}

	ctx := r.Context()
	missions, err := h.Missions.ListForUser(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("list missions: %w", err)
	}

	challenges, err := h.Challenges.ListChallenges(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("challenge catalog unavailable", "error", err)
		challenges = nil
	}

	return h.Renderer.Render(w, http.StatusOK, views.PageChallenges, views.ChallengesPage{
		Page:       basePage(r, "도전 과제", "challenges", session),
		Days:       views.BuildDays(missions),
		Challenges: challenges,
		Max:        models.MaxMissionsPerDay,
		Min:        models.MinMissionsPerDay,
	})
}

// ChallengesAction handles POST /dashboard/challenges.
func (h DashboardHandler) ChallengesAction(w http.ResponseWriter, r *http.Request) error {
	session, err := h.Sessions.RequireSession(r)
	if err != nil {
		return err
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return nil
	}

	ctx := r.Context()
	intent := r.PostFormValue("intent")

	switch intent {
	case IntentAddMission:
		weekday, ok := models.ParseWeekday(r.PostFormValue("weekday"))
		if !ok {
			http.Error(w, "invalid weekday", http.StatusBadRequest)
			return nil
		}
		title := strings.TrimSpace(r.PostFormValue("title"))
		if title == "" {
			title = models.DefaultMissionTitle
		}
		mission, err := h.Missions.Create(ctx, session.UserID, truncate(title), weekday)
		if err := h.actionResult(r, intent, mission.ID, err); err != nil {
			return err
		}

	case IntentDeleteMission:
		id, ok := formID(r)
		if !ok {
			http.Error(w, "invalid mission id", http.StatusBadRequest)
			return nil
		}
		err := h.Missions.Delete(ctx, session.UserID, id)
		if err := h.actionResult(r, intent, id, err); err != nil {
			return err
		}

	case IntentUpdateMission:
		id, ok := formID(r)
		if !ok {
			http.Error(w, "invalid mission id", http.StatusBadRequest)
			return nil
		}
		title := strings.TrimSpace(r.PostFormValue("title"))
		if title == "" {
			http.Error(w, "title is required", http.StatusBadRequest)
			return nil
		}
		err := h.Missions.UpdateTitle(ctx, session.UserID, id, truncate(title))
		if err := h.actionResult(r, intent, id, err); err != nil {
			return err
		}

	default:
		return h.unknownIntent(w, r, intent)
	}

	http.Redirect(w, r, challengesPath, http.StatusSeeOther)
	return nil
}

// actionResult classifies a mutation outcome. Ownership misses and the daily
// cap leave the page unchanged; other failures surface as errors.
func (h DashboardHandler) actionResult(r *http.Request, intent string, id int64, err error) error {
	logger := logging.FromContext(r.Context())

	switch {
	case err == nil:
		h.Metrics.MissionAction(intent, "ok")
		return nil
	case errors.Is(err, repositories.ErrNotFound):
		logger.Warn("mission not found for user", "intent", intent, "missionId", id)
		h.Metrics.MissionAction(intent, "not_found")
		return nil
	case errors.Is(err, repositories.ErrMissionLimit):
		logger.Warn("daily mission limit reached", "intent", intent)
		h.Metrics.MissionAction(intent, "limit")
		return nil
	default:
		h.Metrics.MissionAction(intent, "error")
		return fmt.Errorf("%s mission %d: %w", intent, id, err)
	}
}

func (h DashboardHandler) unknownIntent(w http.ResponseWriter, r *http.Request, intent string) error {
	logging.FromContext(r.Context()).Warn("unknown form intent", "intent", intent)
	http.Error(w, "unknown intent", http.StatusBadRequest)
	return nil
}

func formID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.PostFormValue("id")), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func truncate(title string) string {
	if utf8.RuneCountInString(title) <= maxTitleLength {
		return title
	}
	return string([]rune(title)[:maxTitleLength])
}

// Root handles GET / by sending visitors to the dashboard or the login page.
func Root(sessions SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := auth.LoginPath
		if _, ok := sessions.ResumeSession(r); ok {
			target = dashboardPath
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}
