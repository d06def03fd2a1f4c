package auth

import (
	"net/url"
	"testing"
)

func TestParseCallbackFlows(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		fragment string
		flow     CallbackFlow
		want     CallbackParams
	}{
		{
			name:  "code in query",
			query: "code=abc&next=/dashboard/challenges",
			flow:  FlowCode,
			want:  CallbackParams{Code: "abc", Next: "/dashboard/challenges"},
		},
		{
			name:     "tokens in fragment",
			fragment: "#access_token=at&refresh_token=rt&token_type=bearer",
			flow:     FlowToken,
			want:     CallbackParams{AccessToken: "at", RefreshToken: "rt", Next: DefaultNextPath},
		},
		{
			name:     "fragment wins over query",
			query:    "access_token=from-query",
			fragment: "access_token=from-fragment",
			flow:     FlowToken,
			want:     CallbackParams{AccessToken: "from-fragment", Next: DefaultNextPath},
		},
		{
			name:     "code preferred over tokens",
			query:    "code=abc",
			fragment: "access_token=at&refresh_token=rt",
			flow:     FlowCode,
			want:     CallbackParams{Code: "abc", AccessToken: "at", RefreshToken: "rt", Next: DefaultNextPath},
		},
		{
			name:  "provider error description",
			query: "error=access_denied&error_description=User+cancelled",
			flow:  FlowError,
			want:  CallbackParams{Error: "User cancelled", Next: DefaultNextPath},
		},
		{
			name:     "provider error without description",
			fragment: "error=server_error",
			flow:     FlowError,
			want:     CallbackParams{Error: "server_error", Next: DefaultNextPath},
		},
		{
			name: "nothing usable",
			flow: FlowNone,
			want: CallbackParams{Next: DefaultNextPath},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("parse query: %v", err)
			}

			got := ParseCallback(query, tt.fragment)
			if got != tt.want {
				t.Fatalf("expected %+v got %+v", tt.want, got)
			}
			if got.Flow() != tt.flow {
				t.Fatalf("expected flow %d got %d", tt.flow, got.Flow())
			}
		})
	}
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                        DefaultNextPath,
		"/dashboard/hall-of-fame": "/dashboard/hall-of-fame",
		"/dashboard?tab=1":        "/dashboard?tab=1",
		"https://evil.example":    DefaultNextPath,
		"//evil.example/path":     DefaultNextPath,
		"/\\evil.example":         DefaultNextPath,
		"dashboard":               DefaultNextPath,
	}

	for input, want := range tests {
		if got := SafeNext(input); got != want {
			t.Fatalf("SafeNext(%q) = %q want %q", input, got, want)
		}
	}
}
