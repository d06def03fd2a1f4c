package handlers

import (
	"net/http"
	"time"

	"github.com/todaymission/backend/internal/auth"
	"github.com/todaymission/backend/internal/logging"
	"github.com/todaymission/backend/internal/views"
)

const themeCookieMaxAge = 365 * 24 * time.Hour

// SettingsHandler stores visitor preferences.
type SettingsHandler struct {
	CookieSecure bool
}

// Theme handles POST /settings/theme and sends the visitor back to the page
// the picker was on.
func (h SettingsHandler) Theme(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	theme, ok := views.ParseTheme(r.PostFormValue("theme"))
	if !ok {
		logging.FromContext(r.Context()).Warn("unknown theme", "theme", r.PostFormValue("theme"))
		http.Error(w, "unknown theme", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     views.ThemeCookieName,
		Value:    string(theme),
		Path:     "/",
		MaxAge:   int(themeCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, auth.SafeNext(r.PostFormValue("return_to")), http.StatusSeeOther)
}
