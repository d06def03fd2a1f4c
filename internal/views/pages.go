package views

import (
	"time"

	"github.com/todaymission/backend/internal/models"
)

// Page carries what every rendered page needs.
type Page struct {
	Title string
	Theme Theme
	Nav   string
	Email string
	// Fingerprint identifies the access token the page was rendered with.
	// Pages with a fingerprint open a session synchronisation stream.
	Fingerprint string
}

// Themes lists the theme choices for the picker.
func (p Page) Themes() []Theme { return Themes }

// LoginPage is the sign-in screen.
type LoginPage struct {
	Page
	Error string
	Next  string
}

// DayCell is one column of the Monday to Friday strip.
type DayCell struct {
	Date    time.Time
	Weekday models.Weekday
	Today   bool
}

// DashboardPage lists today's missions.
type DashboardPage struct {
	Page
	Today     time.Time
	Weekday   models.Weekday
	IsWeekday bool
	Missions  []models.Mission
	Week      []DayCell
	Done      int
}

// HallOfFamePage shows earned badges and this year's completions.
type HallOfFamePage struct {
	Page
	Year        int
	CurrentWeek int
	Badges      []models.UserBadge
	Weeks       []models.WeeklyHistory
}

// DayMissions is one weekday column on the configuration page.
type DayMissions struct {
	Weekday  models.Weekday
	Missions []models.Mission
	CanAdd   bool
	BelowMin bool
}

// ChallengesPage configures weekday missions and lists the challenge catalog.
type ChallengesPage struct {
	Page
	Days       []DayMissions
	Challenges []models.Challenge
	Max        int
	Min        int
}

// ErrorPage shows a message and optionally sends the browser elsewhere after a delay.
type ErrorPage struct {
	Page
	Message      string
	RedirectTo   string
	DelaySeconds int
}

// CallbackBridgePage posts the URL fragment back to the server, since
// browsers never send fragments in requests.
type CallbackBridgePage struct {
	Page
	Action string
}

// BuildWeek returns the Monday to Friday cells of the week containing now.
func BuildWeek(now time.Time) []DayCell {
	dates := models.WeekDates(now)
	cells := make([]DayCell, 0, len(dates))
	y, m, d := now.Date()
	for i, date := range dates {
		dy, dm, dd := date.Date()
		cells = append(cells, DayCell{
			Date:    date,
			Weekday: models.Weekdays[i],
			Today:   dy == y && dm == m && dd == d,
		})
	}
	return cells
}

// BuildDays groups missions into one column per weekday.
func BuildDays(missions []models.Mission) []DayMissions {
	grouped := models.GroupByWeekday(missions)
	days := make([]DayMissions, 0, len(models.Weekdays))
	for _, day := range models.Weekdays {
		list := grouped[day]
		days = append(days, DayMissions{
			Weekday:  day,
			Missions: list,
			CanAdd:   len(list) < models.MaxMissionsPerDay,
			BelowMin: len(list) < models.MinMissionsPerDay,
		})
	}
	return days
}
