package models

import (
	"strings"
	"time"
)

// Weekday identifies one of the five workdays a mission can recur on.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
)

// Weekdays lists the mission weekdays in calendar order.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}

// MaxMissionsPerDay caps how many missions a user may configure for one weekday.
const MaxMissionsPerDay = 10

// MinMissionsPerDay is the suggested lower bound shown on the configuration page.
const MinMissionsPerDay = 3

// DefaultMissionTitle is used for missions created from the configuration page.
const DefaultMissionTitle = "새 미션"

// ParseWeekday validates a weekday name.
func ParseWeekday(value string) (Weekday, bool) {
	w := Weekday(strings.ToLower(strings.TrimSpace(value)))
	for _, day := range Weekdays {
		if day == w {
			return w, true
		}
	}
	return "", false
}

// WeekdayOf maps a calendar date to a mission weekday. Weekends report false.
func WeekdayOf(t time.Time) (Weekday, bool) {
	switch t.Weekday() {
	case time.Monday:
		return Monday, true
	case time.Tuesday:
		return Tuesday, true
	case time.Wednesday:
		return Wednesday, true
	case time.Thursday:
		return Thursday, true
	case time.Friday:
		return Friday, true
	default:
		return "", false
	}
}

// Label returns the Korean display name for the weekday.
func (w Weekday) Label() string {
	switch w {
	case Monday:
		return "월요일"
	case Tuesday:
		return "화요일"
	case Wednesday:
		return "수요일"
	case Thursday:
		return "목요일"
	case Friday:
		return "금요일"
	default:
		return string(w)
	}
}

// Short returns the single-character Korean label used in the week strip.
func (w Weekday) Short() string {
	label := []rune(w.Label())
	if len(label) == 0 {
		return ""
	}
	return string(label[0])
}

// Mission is a recurring weekday task owned by a single user.
type Mission struct {
	ID        int64
	UserID    string
	Title     string
	Weekday   Weekday
	Completed bool
	CreatedAt time.Time
}

// MissionHistory is an append-only record of a completion event.
type MissionHistory struct {
	ID           int64
	UserID       string
	MissionID    int64
	MissionTitle string
	CompletedAt  time.Time
	WeekNumber   int
	Year         int
}

// Badge is a read-only catalog achievement.
type Badge struct {
	ID          int64
	Name        string
	Description string
	ImageURL    string
	CreatedAt   time.Time
}

// UserBadge records a badge earned by a user.
type UserBadge struct {
	ID         int64
	UserID     string
	BadgeID    int64
	AcquiredAt time.Time
	Badge      Badge
}

// ChallengeCondition describes what unlocks a challenge's badge.
type ChallengeCondition struct {
	Type  string
	Count int
}

// Challenge is a badge-granting rule.
type Challenge struct {
	ID          int64
	Title       string
	Description string
	BadgeID     int64
	Condition   ChallengeCondition
	Badge       *Badge
}

// ISOWeekStamp returns the ISO year and week number recorded on history rows.
func ISOWeekStamp(t time.Time) (year, week int) {
	return t.ISOWeek()
}

// WeekDates returns Monday through Friday of the ISO week containing t.
func WeekDates(t time.Time) []time.Time {
	offset := int(t.Weekday()) - int(time.Monday)
	if t.Weekday() == time.Sunday {
		offset = 6
	}
	y, m, d := t.Date()
	monday := time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())

	dates := make([]time.Time, 0, len(Weekdays))
	for i := range Weekdays {
		dates = append(dates, monday.AddDate(0, 0, i))
	}
	return dates
}

// GroupByWeekday buckets missions by their weekday, preserving input order.
// Every weekday has an entry, possibly empty.
func GroupByWeekday(missions []Mission) map[Weekday][]Mission {
	buckets := make(map[Weekday][]Mission, len(Weekdays))
	for _, day := range Weekdays {
		buckets[day] = []Mission{}
	}
	for _, mission := range missions {
		if _, ok := buckets[mission.Weekday]; !ok {
			continue
		}
		buckets[mission.Weekday] = append(buckets[mission.Weekday], mission)
	}
	return buckets
}

// WeeklyHistory groups history rows by ISO week number.
type WeeklyHistory struct {
	Week    int
	Entries []MissionHistory
}

// GroupHistoryByWeek groups rows that are already sorted by week descending,
// preserving that order.
func GroupHistoryByWeek(history []MissionHistory) []WeeklyHistory {
	var groups []WeeklyHistory
	for _, entry := range history {
		if n := len(groups); n > 0 && groups[n-1].Week == entry.WeekNumber {
			groups[n-1].Entries = append(groups[n-1].Entries, entry)
			continue
		}
		groups = append(groups, WeeklyHistory{Week: entry.WeekNumber, Entries: []MissionHistory{entry}})
	}
	return groups
}

// SessionTokens groups the credentials issued by the identity service.
type SessionTokens struct {
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
	UserID          string
	Email           string
}
