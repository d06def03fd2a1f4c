package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	authgo "github.com/supabase-community/auth-go"
	"github.com/supabase-community/auth-go/types"
	"golang.org/x/oauth2"

	"github.com/todaymission/backend/internal/logging"
	"github.com/todaymission/backend/internal/models"
)

var (
	// ErrInvalidGrant indicates the code, verifier or refresh token was rejected.
	ErrInvalidGrant = errors.New("gotrue: invalid grant")
	// ErrMalformedToken indicates an access token whose claims could not be read.
	ErrMalformedToken = errors.New("gotrue: malformed access token")
)

// APIError is the decoded error body returned by the identity service.
type APIError struct {
	Status      int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("gotrue: %d %s: %s", e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("gotrue: %d %s", e.Status, e.Code)
}

// Unwrap maps rejected credentials onto ErrInvalidGrant.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "invalid_grant", "bad_code_verifier", "flow_state_not_found", "flow_state_expired",
		"refresh_token_not_found", "refresh_token_already_used", "session_not_found", "bad_jwt":
		return ErrInvalidGrant
	}
	return nil
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	AnonKey    string
	Provider   string
	HTTPClient *http.Client
	Timeout    time.Duration
	NowFunc    func() time.Time
}

// Client adapts the Supabase auth SDK to the session manager: every call is
// bound to a context, and rejected credentials surface as *APIError.
type Client struct {
	api      authgo.Client
	baseURL  *url.URL
	provider string
	http     http.Client
	now      func() time.Time
}

// New validates opts and returns a ready client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gotrue: invalid base url %q", opts.BaseURL)
	}
	if strings.TrimSpace(opts.AnonKey) == "" {
		return nil, errors.New("gotrue: anon key must be provided")
	}

	var httpClient http.Client
	if opts.HTTPClient != nil {
		httpClient = *opts.HTTPClient
	} else {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = http.Client{Timeout: timeout}
	}
	if opts.Provider == "" {
		opts.Provider = "kakao"
	}
	if opts.NowFunc == nil {
		opts.NowFunc = time.Now
	}

	c := &Client{
		baseURL:  base,
		provider: opts.Provider,
		http:     httpClient,
		now:      opts.NowFunc,
	}
	c.api = authgo.New("", opts.AnonKey).WithCustomAuthURL(c.endpoint("/auth/v1").String())
	return c, nil
}

// AuthorizeURL starts a PKCE authorization code flow. The returned verifier
// must be presented again to ExchangeCode. The URL is built locally so the
// browser redirect needs no round trip to the identity service.
func (c *Client) AuthorizeURL(redirectTo string) (string, string) {
	verifier := oauth2.GenerateVerifier()

	q := url.Values{}
	q.Set("provider", c.provider)
	q.Set("redirect_to", redirectTo)
	q.Set("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
	q.Set("code_challenge_method", "s256")

	u := c.endpoint("/auth/v1/authorize")
	u.RawQuery = q.Encode()
	return u.String(), verifier
}

// ExchangeCode trades an authorization code for a token pair. Codes are
// single use; a second exchange fails with ErrInvalidGrant.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (models.SessionTokens, error) {
	if code == "" || verifier == "" {
		return models.SessionTokens{}, fmt.Errorf("exchange code: %w", ErrInvalidGrant)
	}

	ctx, span := logging.StartSpan(ctx, "gotrue.exchange_code")
	defer span.End()

	tokens, err := c.grant(ctx, types.TokenRequest{GrantType: "pkce", Code: code, CodeVerifier: verifier})
	if err != nil {
		span.Fail(err)
		return models.SessionTokens{}, fmt.Errorf("exchange code: %w", err)
	}
	return tokens, nil
}

// Refresh rotates the token pair using a refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	if refreshToken == "" {
		return models.SessionTokens{}, fmt.Errorf("refresh: %w", ErrInvalidGrant)
	}

	tokens, err := c.grant(ctx, types.TokenRequest{GrantType: "refresh_token", RefreshToken: refreshToken})
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("refresh: %w", err)
	}
	return tokens, nil
}

// SetSession validates a token pair handed over by the browser. An access
// token that already expired is refreshed instead of checked.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (models.SessionTokens, error) {
	ctx, span := logging.StartSpan(ctx, "gotrue.set_session")
	defer span.End()

	expiresAt, err := c.ExpiresAt(accessToken)
	if err != nil {
		span.Fail(err)
		return models.SessionTokens{}, fmt.Errorf("set session: %w", err)
	}

	if !c.now().Before(expiresAt) {
		if refreshToken == "" {
			return models.SessionTokens{}, fmt.Errorf("set session: %w", ErrInvalidGrant)
		}
		tokens, err := c.Refresh(ctx, refreshToken)
		span.Fail(err)
		return tokens, err
	}

	api, call := c.bind(ctx, accessToken)
	user, err := api.GetUser()
	if err != nil {
		err = call.result(err)
		span.Fail(err)
		return models.SessionTokens{}, fmt.Errorf("set session: %w", err)
	}

	return models.SessionTokens{
		AccessToken:     accessToken,
		AccessExpiresAt: expiresAt,
		RefreshToken:    refreshToken,
		UserID:          user.ID.String(),
		Email:           user.Email,
	}, nil
}

// SignOut revokes the refresh tokens tied to accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}

	api, call := c.bind(ctx, accessToken)
	if err := api.Logout(); err != nil {
		err = call.result(err)
		var apiErr *APIError
		// The session is gone already when the token is rejected.
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusNotFound) {
			return nil
		}
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// ExpiresAt reads the exp claim without verifying the signature. The
// identity service verifies tokens on every call it receives them.
func (c *Client) ExpiresAt(accessToken string) (time.Time, error) {
	if accessToken == "" {
		return time.Time{}, ErrMalformedToken
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp claim", ErrMalformedToken)
	}
	return claims.ExpiresAt.UTC(), nil
}

func (c *Client) grant(ctx context.Context, req types.TokenRequest) (models.SessionTokens, error) {
	api, call := c.bind(ctx, "")
	resp, err := api.Token(req)
	if err != nil {
		return models.SessionTokens{}, call.result(err)
	}
	if resp.AccessToken == "" {
		return models.SessionTokens{}, errors.New("gotrue: token response without access token")
	}

	return models.SessionTokens{
		AccessToken:     resp.AccessToken,
		AccessExpiresAt: c.expiry(resp.AccessToken, resp.ExpiresAt, int64(resp.ExpiresIn)),
		RefreshToken:    resp.RefreshToken,
		UserID:          resp.User.ID.String(),
		Email:           resp.User.Email,
	}, nil
}

func (c *Client) expiry(accessToken string, expiresAt, expiresIn int64) time.Time {
	switch {
	case expiresAt > 0:
		return time.Unix(expiresAt, 0).UTC()
	case expiresIn > 0:
		return c.now().Add(time.Duration(expiresIn) * time.Second).UTC()
	}
	if exp, err := c.ExpiresAt(accessToken); err == nil {
		return exp
	}
	return c.now().UTC()
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	return &u
}

// bind returns an SDK client whose requests run under ctx, authenticated
// with token when one is given.
func (c *Client) bind(ctx context.Context, token string) (authgo.Client, *callTransport) {
	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	call := &callTransport{ctx: ctx, base: base}

	hc := c.http
	hc.Transport = call
	api := c.api.WithClient(hc)
	if token != "" {
		api = api.WithToken(token)
	}
	return api, call
}

// callTransport carries one call's context into the SDK's requests and
// keeps the decoded body of an error response.
type callTransport struct {
	ctx     context.Context
	base    http.RoundTripper
	failure *APIError
}

func (t *callTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		t.failure = decodeError(resp.StatusCode, raw)
		resp.Body = io.NopCloser(bytes.NewReader(raw))
	}
	return resp, nil
}

// result replaces the SDK's error text with the decoded API error or the
// context error that ended the call.
func (t *callTransport) result(err error) error {
	if t.failure != nil {
		return t.failure
	}
	if ctxErr := t.ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

type errorPayload struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func decodeError(status int, raw []byte) *APIError {
	apiErr := &APIError{Status: status, Code: http.StatusText(status)}

	var payload errorPayload
	if len(raw) == 0 || json.Unmarshal(raw, &payload) != nil {
		return apiErr
	}

	switch {
	case payload.ErrorCode != "":
		apiErr.Code = payload.ErrorCode
	case payload.Error != "":
		apiErr.Code = payload.Error
	}
	for _, desc := range []string{payload.ErrorDescription, payload.Msg, payload.Message} {
		if desc != "" {
			apiErr.Description = desc
			break
		}
	}
	return apiErr
}
