package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/todaymission/backend/internal/auth"
	"github.com/todaymission/backend/internal/logging"
	"github.com/todaymission/backend/internal/views"
)

// pageFunc is a page or form handler that reports failures instead of
// writing them.
type pageFunc func(w http.ResponseWriter, r *http.Request) error

// page turns a pageFunc into an http.HandlerFunc. A *auth.RedirectError
// anywhere in the chain becomes a redirect; anything else renders the
// generic error page.
func page(renderer Renderer, fn pageFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		if redirect, ok := auth.AsRedirect(err); ok {
			status := redirect.Status
			if status == 0 {
				status = http.StatusSeeOther
			}
			http.Redirect(w, r, redirect.Location, status)
			return
		}

		logging.FromContext(r.Context()).Error("page handler failed", "error", err)
		renderError(w, r, renderer, http.StatusInternalServerError, "잠시 후 다시 시도해 주세요.", "", 0)
	}
}

func renderError(w http.ResponseWriter, r *http.Request, renderer Renderer, status int, message, redirectTo string, delay int) {
	data := views.ErrorPage{
		Page:         basePage(r, "오류", "", auth.Session{}),
		Message:      message,
		RedirectTo:   redirectTo,
		DelaySeconds: delay,
	}
	if err := renderer.Render(w, status, views.PageError, data); err != nil {
		logging.FromContext(r.Context()).Error("render error page", "error", err)
		http.Error(w, http.StatusText(status), status)
	}
}

func basePage(r *http.Request, title, nav string, session auth.Session) views.Page {
	return views.Page{
		Title:       title,
		Theme:       views.ThemeFromContext(r.Context()),
		Nav:         nav,
		Email:       session.Email,
		Fingerprint: session.Fingerprint(),
	}
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
	}
}
