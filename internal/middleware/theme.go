package middleware

import (
	"net/http"

	"github.com/todaymission/backend/internal/views"
)

// Theme copies the visitor's stored colour preference onto the request context.
// Unknown or missing values fall back to the default theme.
func Theme(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		theme := views.DefaultTheme
		if cookie, err := r.Cookie(views.ThemeCookieName); err == nil {
			if parsed, ok := views.ParseTheme(cookie.Value); ok {
				theme = parsed
			}
		}
		next.ServeHTTP(w, r.WithContext(views.WithTheme(r.Context(), theme)))
	})
}
