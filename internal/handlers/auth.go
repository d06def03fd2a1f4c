package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/todaymission/backend/internal/auth"
	"github.com/todaymission/backend/internal/logging"
	"github.com/todaymission/backend/internal/metrics"
	"github.com/todaymission/backend/internal/views"
)

const (
	// VerifierCookieName holds the PKCE verifier between authorize and callback.
	VerifierCookieName = "tm-pkce"
	verifierMaxAge     = 10 * time.Minute

	// ErrorExchangeFailed is the login page error code for a failed code exchange.
	ErrorExchangeFailed = "exchange_failed"

	callbackPath     = "/auth/callback"
	errorPageDelay   = 3
	defaultCallbackT = 10 * time.Second
)

var loginErrors = map[string]string{
	ErrorExchangeFailed: "로그인에 실패했어요. 다시 시도해 주세요.",
}

// AuthHandler implements the login page and the OAuth redirect-back endpoints.
type AuthHandler struct {
	Sessions SessionManager
	Identity IdentityProvider
	Renderer Renderer
	Metrics  *metrics.Metrics

	// BaseURL is the externally visible origin used for the OAuth redirect.
	BaseURL         string
	CookieSecure    bool
	CallbackTimeout time.Duration
}

// Login handles GET /login. Visitors that already have a session go straight
// to the dashboard.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) error {
	next := auth.SafeNext(r.URL.Query().Get("next"))
	if _, ok := h.Sessions.ResumeSession(r); ok {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return nil
	}

	message := ""
	if code := strings.TrimSpace(r.URL.Query().Get("error")); code != "" {
		message = loginErrors[code]
		if message == "" {
			message = "로그인 중 문제가 발생했어요."
		}
	}

	return h.Renderer.Render(w, http.StatusOK, views.PageLogin, views.LoginPage{
		Page:  basePage(r, "로그인", "", auth.Session{}),
		Error: message,
		Next:  next,
	})
}

// Authorize handles GET /auth/authorize by starting a PKCE authorization
// code flow at the identity service.
func (h AuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	next := auth.SafeNext(r.URL.Query().Get("next"))
	redirectTo := strings.TrimRight(h.BaseURL, "/") + callbackPath + "?next=" + url.QueryEscape(next)

	target, verifier := h.Identity.AuthorizeURL(redirectTo)
	http.SetCookie(w, &http.Cookie{
		Name:     VerifierCookieName,
		Value:    verifier,
		Path:     "/",
		MaxAge:   int(verifierMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Callback handles GET /auth/callback and GET /auth-callback.
func (h AuthHandler) Callback(w http.ResponseWriter, r *http.Request) error {
	params := auth.ParseCallback(r.URL.Query(), "")

	switch params.Flow() {
	case auth.FlowCode:
		h.exchangeCode(w, r, params)
		return nil
	case auth.FlowToken:
		return h.setSession(w, r, params)
	case auth.FlowError:
		return h.providerError(w, r, params)
	default:
		// Tokens may be in the fragment, which only the browser can see.
		action := callbackPath
		if r.URL.RawQuery != "" {
			action += "?" + r.URL.RawQuery
		}
		return h.Renderer.Render(w, http.StatusOK, views.PageCallbackBridge, views.CallbackBridgePage{
			Page:   basePage(r, "로그인 중", "", auth.Session{}),
			Action: action,
		})
	}
}

// CallbackFragment handles POST /auth/callback, submitted by the bridge page
// with the URL fragment in the "fragment" form field.
func (h AuthHandler) CallbackFragment(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		logging.FromContext(r.Context()).Warn("invalid callback form", "error", err)
		h.Metrics.AuthCallback("fragment", "invalid")
		renderError(w, r, h.Renderer, http.StatusBadRequest, "로그인 정보를 읽을 수 없어요.", auth.LoginPath, errorPageDelay)
		return nil
	}

	params := auth.ParseCallback(r.URL.Query(), r.PostFormValue("fragment"))

	switch params.Flow() {
	case auth.FlowCode:
		h.exchangeCode(w, r, params)
		return nil
	case auth.FlowToken:
		return h.setSession(w, r, params)
	case auth.FlowError:
		return h.providerError(w, r, params)
	default:
		h.Metrics.AuthCallback("fragment", "empty")
		renderError(w, r, h.Renderer, http.StatusBadRequest, "로그인 정보가 없어요.", auth.LoginPath, errorPageDelay)
		return nil
	}
}

// Logout handles POST /logout.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.SignOut(w, r); err != nil {
		logging.FromContext(r.Context()).Error("sign out failed", "error", err)
	}
	http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
}

func (h AuthHandler) exchangeCode(w http.ResponseWriter, r *http.Request, params auth.CallbackParams) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	failed := auth.LoginPath + "?error=" + ErrorExchangeFailed

	verifier := ""
	if cookie, err := r.Cookie(VerifierCookieName); err == nil {
		verifier = cookie.Value
	}
	h.clearVerifier(w)

	if verifier == "" {
		logger.Warn("code exchange without verifier cookie")
		h.Metrics.AuthCallback("code", "missing_verifier")
		http.Redirect(w, r, failed, http.StatusSeeOther)
		return
	}

	timeout := h.CallbackTimeout
	if timeout <= 0 {
		timeout = defaultCallbackT
	}
	exchangeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tokens, err := h.Identity.ExchangeCode(exchangeCtx, params.Code, verifier)
	if err != nil {
		outcome := "rejected"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		logger.Warn("code exchange failed", "error", err)
		h.Metrics.AuthCallback("code", outcome)
		http.Redirect(w, r, failed, http.StatusSeeOther)
		return
	}

	if _, err := h.Sessions.Establish(ctx, w, tokens); err != nil {
		logger.Error("establish session failed", "error", err)
		h.Metrics.AuthCallback("code", "error")
		http.Redirect(w, r, failed, http.StatusSeeOther)
		return
	}

	h.Metrics.AuthCallback("code", "success")
	http.Redirect(w, r, params.Next, http.StatusSeeOther)
}

func (h AuthHandler) setSession(w http.ResponseWriter, r *http.Request, params auth.CallbackParams) error {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	tokens, err := h.Identity.SetSession(ctx, params.AccessToken, params.RefreshToken)
	if err != nil {
		logger.Warn("token callback rejected", "error", err)
		h.Metrics.AuthCallback("token", "rejected")
		renderError(w, r, h.Renderer, http.StatusUnauthorized, "로그인 세션을 확인하지 못했어요.", auth.LoginPath, errorPageDelay)
		return nil
	}

	if _, err := h.Sessions.Establish(ctx, w, tokens); err != nil {
		logger.Error("establish session failed", "error", err)
		h.Metrics.AuthCallback("token", "error")
		renderError(w, r, h.Renderer, http.StatusInternalServerError, "로그인 세션을 저장하지 못했어요.", auth.LoginPath, errorPageDelay)
		return nil
	}

	h.Metrics.AuthCallback("token", "success")
	http.Redirect(w, r, params.Next, http.StatusSeeOther)
	return nil
}

func (h AuthHandler) providerError(w http.ResponseWriter, r *http.Request, params auth.CallbackParams) error {
	logging.FromContext(r.Context()).Warn("identity provider returned an error", "error", params.Error)
	h.Metrics.AuthCallback("error", "provider")
	renderError(w, r, h.Renderer, http.StatusBadRequest, params.Error, auth.LoginPath, errorPageDelay)
	return nil
}

func (h AuthHandler) clearVerifier(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     VerifierCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
