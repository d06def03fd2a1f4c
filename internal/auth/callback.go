package auth

import (
	"net/url"
	"strings"
)

// DefaultNextPath is where a completed login lands when no destination was requested.
const DefaultNextPath = "/dashboard"

// CallbackFlow names the shape of an OAuth redirect-back request.
type CallbackFlow int

const (
	// FlowNone means the request carried nothing the server can act on.
	FlowNone CallbackFlow = iota
	// FlowCode is the authorization code exchange.
	FlowCode
	// FlowToken is the implicit flow with tokens in the fragment or query.
	FlowToken
	// FlowError means the identity service reported a failure.
	FlowError
)

// CallbackParams holds the values carried by an OAuth redirect-back URL.
type CallbackParams struct {
	Code         string
	AccessToken  string
	RefreshToken string
	Next         string
	Error        string
}

// ParseCallback extracts callback values from the query string and the URL
// fragment (with or without its leading '#'). Tokens found in the fragment
// take precedence over ones in the query string.
func ParseCallback(query url.Values, fragment string) CallbackParams {
	frag, err := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(fragment), "#"))
	if err != nil {
		frag = url.Values{}
	}

	pick := func(key string) string {
		if v := strings.TrimSpace(frag.Get(key)); v != "" {
			return v
		}
		return strings.TrimSpace(query.Get(key))
	}

	params := CallbackParams{
		Code:         pick("code"),
		AccessToken:  pick("access_token"),
		RefreshToken: pick("refresh_token"),
		Next:         SafeNext(pick("next")),
		Error:        pick("error_description"),
	}
	if params.Error == "" {
		params.Error = pick("error")
	}

	return params
}

// Flow decides how the callback should be handled. A code is preferred over
// tokens because the server can verify it with the identity service.
func (p CallbackParams) Flow() CallbackFlow {
	switch {
	case p.Code != "":
		return FlowCode
	case p.AccessToken != "":
		return FlowToken
	case p.Error != "":
		return FlowError
	default:
		return FlowNone
	}
}

// SafeNext restricts post-login destinations to local absolute paths.
func SafeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return DefaultNextPath
	}

	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return DefaultNextPath
	}

	return u.RequestURI()
}
