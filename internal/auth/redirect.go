package auth

import (
	"errors"
	"net/http"
)

// RedirectError is a navigation instruction, not a failure. Code that wraps
// errors must use %w so the page boundary can still find it with errors.As.
type RedirectError struct {
	Location string
	Status   int
}

func (e *RedirectError) Error() string {
	return "redirect to " + e.Location
}

// RedirectToLogin builds the control transfer used by the auth gate.
func RedirectToLogin() *RedirectError {
	return &RedirectError{Location: LoginPath, Status: http.StatusSeeOther}
}

// AsRedirect reports whether err carries a redirect instruction.
func AsRedirect(err error) (*RedirectError, bool) {
	var redirect *RedirectError
	if errors.As(err, &redirect) {
		return redirect, true
	}
	return nil, false
}
