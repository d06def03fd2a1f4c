package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/todaymission/backend/internal/models"
)

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestPagesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/dashboard", "/dashboard/hall-of-fame", "/dashboard/challenges"} {
		rec := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
			t.Fatalf("%s: expected 303 to /login got %d %q", path, rec.Code, rec.Header().Get("Location"))
		}
	}

	rec := env.do(postForm("/dashboard", url.Values{"intent": {IntentComplete}, "id": {"1"}, "completed": {"true"}}))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected form action to redirect to login got %d", rec.Code)
	}
}

func TestDashboardShowsTodaysMissions(t *testing.T) {
	env := newTestEnv(t)
	env.missions.add("user-1", "물 마시기", models.Wednesday)
	env.missions.add("user-1", "월요일 미션", models.Monday)
	env.missions.add("user-2", "남의 미션", models.Wednesday)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil), env.signIn(t))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "물 마시기") {
		t.Fatal("expected today's mission")
	}
	if strings.Contains(body, "월요일 미션") || strings.Contains(body, "남의 미션") {
		t.Fatal("dashboard must only list the user's missions for today")
	}
	if !strings.Contains(body, "/auth/events?v=") {
		t.Fatal("expected session sync stream on signed-in pages")
	}
}

func TestDashboardOnWeekend(t *testing.T) {
	env := newTestEnv(t)
	env.clock.Advance(72 * time.Hour)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil), env.signIn(t))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "주말에는 미션이 없어요") {
		t.Fatal("expected weekend message")
	}
}

func TestCompleteMission(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)
	mission := env.missions.add("user-1", "물 마시기", models.Wednesday)
	id := strconv.FormatInt(mission.ID, 10)

	complete := func(completed string) *httptest.ResponseRecorder {
		return env.do(postForm("/dashboard", url.Values{"intent": {IntentComplete}, "id": {id}, "completed": {completed}}), cookie)
	}

	rec := complete("true")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected PRG redirect got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if got, _ := env.missions.get(mission.ID); !got.Completed {
		t.Fatal("expected mission to be completed")
	}
	if n := env.missions.historyLen(); n != 1 {
		t.Fatalf("expected one history row got %d", n)
	}

	complete("true")
	if n := env.missions.historyLen(); n != 1 {
		t.Fatalf("repeating completion must not add history, got %d", n)
	}

	complete("false")
	if got, _ := env.missions.get(mission.ID); got.Completed {
		t.Fatal("expected mission to be reopened")
	}
	if n := env.missions.historyLen(); n != 1 {
		t.Fatalf("reopening must keep history, got %d", n)
	}
}

func TestCompleteOtherUsersMissionIsNoop(t *testing.T) {
	env := newTestEnv(t)
	mission := env.missions.add("user-2", "남의 미션", models.Wednesday)

	rec := env.do(postForm("/dashboard", url.Values{
		"intent":    {IntentComplete},
		"id":        {strconv.FormatInt(mission.ID, 10)},
		"completed": {"true"},
	}), env.signIn(t))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 got %d", rec.Code)
	}
	if got, _ := env.missions.get(mission.ID); got.Completed {
		t.Fatal("other user's mission must not change")
	}
	if n := env.missions.historyLen(); n != 0 {
		t.Fatalf("expected no history got %d", n)
	}
}

func TestDashboardRejectsBadForms(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	tests := []struct {
		name string
		form url.Values
	}{
		{name: "unknown intent", form: url.Values{"intent": {"explode"}}},
		{name: "missing id", form: url.Values{"intent": {IntentComplete}, "completed": {"true"}}},
		{name: "bad completed", form: url.Values{"intent": {IntentComplete}, "id": {"1"}, "completed": {"maybe"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(postForm("/dashboard", tt.form), cookie)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", rec.Code)
			}
		})
	}
}

func TestAddMissionRespectsDailyCap(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	for i := 0; i < models.MaxMissionsPerDay; i++ {
		rec := env.do(postForm("/dashboard/challenges", url.Values{"intent": {IntentAddMission}, "weekday": {"monday"}}), cookie)
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dashboard/challenges" {
			t.Fatalf("expected PRG redirect got %d %q", rec.Code, rec.Header().Get("Location"))
		}
	}

	rec := env.do(postForm("/dashboard/challenges", url.Values{"intent": {IntentAddMission}, "weekday": {"monday"}}), cookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected capped add to redirect got %d", rec.Code)
	}

	missions, _ := env.missions.ListForWeekday(t.Context(), "user-1", models.Monday)
	if len(missions) != models.MaxMissionsPerDay {
		t.Fatalf("expected %d missions got %d", models.MaxMissionsPerDay, len(missions))
	}
	if missions[0].Title != models.DefaultMissionTitle {
		t.Fatalf("expected default title got %q", missions[0].Title)
	}

	page := env.do(httptest.NewRequest(http.MethodGet, "/dashboard/challenges", nil), cookie)
	if !strings.Contains(page.Body.String(), `class="btn" disabled`) {
		t.Fatal("expected add button to be disabled for a full day")
	}
}

func TestUpdateAndDeleteMission(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)
	mine := env.missions.add("user-1", "독서", models.Friday)
	theirs := env.missions.add("user-2", "남의 미션", models.Friday)

	rec := env.do(postForm("/dashboard/challenges", url.Values{
		"intent": {IntentUpdateMission},
		"id":     {strconv.FormatInt(mine.ID, 10)},
		"title":  {"  책 30쪽 읽기  "},
	}), cookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 got %d", rec.Code)
	}
	if got, _ := env.missions.get(mine.ID); got.Title != "책 30쪽 읽기" {
		t.Fatalf("expected trimmed title got %q", got.Title)
	}

	env.do(postForm("/dashboard/challenges", url.Values{
		"intent": {IntentDeleteMission},
		"id":     {strconv.FormatInt(theirs.ID, 10)},
	}), cookie)
	if _, ok := env.missions.get(theirs.ID); !ok {
		t.Fatal("other user's mission must survive")
	}

	env.do(postForm("/dashboard/challenges", url.Values{
		"intent": {IntentDeleteMission},
		"id":     {strconv.FormatInt(mine.ID, 10)},
	}), cookie)
	if _, ok := env.missions.get(mine.ID); ok {
		t.Fatal("expected mission to be deleted")
	}
}

func TestUpdateMissionTruncatesTitle(t *testing.T) {
	env := newTestEnv(t)
	mission := env.missions.add("user-1", "독서", models.Friday)

	env.do(postForm("/dashboard/challenges", url.Values{
		"intent": {IntentUpdateMission},
		"id":     {strconv.FormatInt(mission.ID, 10)},
		"title":  {strings.Repeat("가", maxTitleLength+20)},
	}), env.signIn(t))

	got, _ := env.missions.get(mission.ID)
	if n := len([]rune(got.Title)); n != maxTitleLength {
		t.Fatalf("expected %d runes got %d", maxTitleLength, n)
	}
}

func TestHallOfFame(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)
	mission := env.missions.add("user-1", "물 마시기", models.Wednesday)

	env.do(postForm("/dashboard", url.Values{
		"intent":    {IntentComplete},
		"id":        {strconv.FormatInt(mission.ID, 10)},
		"completed": {"true"},
	}), cookie)
	_ = env.missions.Delete(t.Context(), "user-1", mission.ID)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/dashboard/hall-of-fame", nil), cookie)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"첫 걸음", "물 마시기", "이번 주", "2024년"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in hall of fame", want)
		}
	}
}

func TestChallengesPageSurvivesCatalogOutage(t *testing.T) {
	env := newTestEnv(t, func(d *Dependencies) {
		d.Challenges = staticChallenges{err: errors.New("catalog down")}
	})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/dashboard/challenges", nil), env.signIn(t))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "준비된 도전 과제가 없어요") {
		t.Fatal("expected empty catalog message")
	}
}

type failingMissions struct{ *inMemoryMissionStore }

func (failingMissions) ListForWeekday(_ context.Context, _ string, _ models.Weekday) ([]models.Mission, error) {
	return nil, errors.New("connection reset")
}

func TestDashboardStoreFailureRendersErrorPage(t *testing.T) {
	env := newTestEnv(t, func(d *Dependencies) {
		d.Missions = failingMissions{newInMemoryMissionStore()}
	})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil), env.signIn(t))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "문제가 발생했어요") {
		t.Fatal("expected generic error page")
	}
}
