package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist or is owned by another user.
	ErrNotFound = errors.New("record not found")
	// ErrMissionLimit indicates the weekday already holds the maximum number of missions.
	ErrMissionLimit = errors.New("mission limit reached for weekday")
)
