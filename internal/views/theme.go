package views

import (
	"context"
	"strings"
)

// ThemeCookieName stores the visitor's colour preference.
const ThemeCookieName = "tm-theme"

// Theme is a colour scheme for the dashboard.
type Theme string

const (
	ThemePink   Theme = "pink"
	ThemeBlue   Theme = "blue"
	ThemeGreen  Theme = "green"
	ThemePurple Theme = "purple"
	ThemeYellow Theme = "yellow"
)

// DefaultTheme applies when no preference was stored.
const DefaultTheme = ThemePink

// Themes lists the selectable themes in display order.
var Themes = []Theme{ThemePink, ThemeBlue, ThemeGreen, ThemePurple, ThemeYellow}

type palette struct {
	primary    string
	soft       string
	background string
}

var palettes = map[Theme]palette{
	ThemePink:   {primary: "#ec4899", soft: "#fce7f3", background: "#fdf2f8"},
	ThemeBlue:   {primary: "#3b82f6", soft: "#dbeafe", background: "#eff6ff"},
	ThemeGreen:  {primary: "#22c55e", soft: "#dcfce7", background: "#f0fdf4"},
	ThemePurple: {primary: "#a855f7", soft: "#f3e8ff", background: "#faf5ff"},
	ThemeYellow: {primary: "#eab308", soft: "#fef9c3", background: "#fefce8"},
}

// ParseTheme validates a theme name.
func ParseTheme(value string) (Theme, bool) {
	t := Theme(strings.ToLower(strings.TrimSpace(value)))
	_, ok := palettes[t]
	return t, ok
}

// Label returns the Korean display name.
func (t Theme) Label() string {
	switch t {
	case ThemePink:
		return "핑크"
	case ThemeBlue:
		return "블루"
	case ThemeGreen:
		return "그린"
	case ThemePurple:
		return "퍼플"
	case ThemeYellow:
		return "옐로우"
	default:
		return string(t)
	}
}

// Primary is the accent colour.
func (t Theme) Primary() string { return t.palette().primary }

// Soft is the tint used for cards and hover states.
func (t Theme) Soft() string { return t.palette().soft }

// Background is the page background colour.
func (t Theme) Background() string { return t.palette().background }

func (t Theme) palette() palette {
	if p, ok := palettes[t]; ok {
		return p
	}
	return palettes[DefaultTheme]
}

type themeKey struct{}

// WithTheme stores the request's theme on the context.
func WithTheme(ctx context.Context, t Theme) context.Context {
	return context.WithValue(ctx, themeKey{}, t)
}

// ThemeFromContext returns the request's theme or DefaultTheme.
func ThemeFromContext(ctx context.Context) Theme {
	if t, ok := ctx.Value(themeKey{}).(Theme); ok {
		if _, valid := palettes[t]; valid {
			return t
		}
	}
	return DefaultTheme
}
