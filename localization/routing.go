package localization

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// Outcome classifies how a request path relates to the supported locales.
type Outcome int

const (
	// Localized paths start with a supported locale.
	Localized Outcome = iota
	// Redirect paths lack a locale prefix and move under one.
	Redirect
	// NotFound paths start with a language code that is not supported.
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Localized:
		return "localized"
	case Redirect:
		return "redirect"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Resolution is the routing decision for one path.
type Resolution struct {
	Outcome Outcome
	// Locale is the path locale when Localized.
	Locale string
	// Rest is the path after the locale segment, always starting with '/'.
	Rest string
	// Target is the redirect location, query preserved, when Redirect.
	Target string
}

// DefaultLocales are the languages the marketplace ships with, default first.
var DefaultLocales = []string{"ko", "en", "ja", "zh", "es", "fr", "de"}

// DefaultRoutes are the top-level pages that exist under every locale.
var DefaultRoutes = []string{
	"auditions", "channel", "dashboard", "find-password", "find-user-id",
	"login", "logout", "me", "my", "profile", "register", "reset-password",
	"signup", "vault", "language",
}

// Routing holds the locale set and the known top-level routes.
type Routing struct {
	locales []string
	def     string
	routes  map[string]struct{}
	matcher language.Matcher
}

// RoutingOption configures a Routing.
type RoutingOption func(*Routing)

// WithRoutes registers additional top-level route segments.
func WithRoutes(routes ...string) RoutingOption {
	return func(r *Routing) {
		for _, route := range routes {
			r.routes[strings.Trim(route, "/")] = struct{}{}
		}
	}
}

// NewRouting builds a Routing for locales with def as the fallback locale.
func NewRouting(locales []string, def string, opts ...RoutingOption) (*Routing, error) {
	if len(locales) == 0 {
		return nil, errors.New("at least one locale is required")
	}
	if !slices.Contains(locales, def) {
		return nil, fmt.Errorf("default locale %q is not supported", def)
	}

	tags := make([]language.Tag, 0, len(locales))
	// the matcher falls back to its first tag
	tags = append(tags, language.Make(def))
	for _, l := range locales {
		if l != def {
			tags = append(tags, language.Make(l))
		}
	}

	r := &Routing{
		locales: slices.Clone(locales),
		def:     def,
		routes:  map[string]struct{}{},
		matcher: language.NewMatcher(tags),
	}
	WithRoutes(DefaultRoutes...)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Locales returns the supported locales.
func (r *Routing) Locales() []string {
	return slices.Clone(r.locales)
}

// Default returns the fallback locale.
func (r *Routing) Default() string {
	return r.def
}

// IsSupported reports whether locale is one of the supported codes.
func (r *Routing) IsSupported(locale string) bool {
	return slices.Contains(r.locales, locale)
}

// Resolve classifies path, which may carry a query string. Redirects go to the default locale.
func (r *Routing) Resolve(path string) Resolution {
	return r.resolve(path, r.def)
}

func (r *Routing) resolve(rawPath string, redirectLocale string) Resolution {
	path, query, hasQuery := strings.Cut(rawPath, "?")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	first, rest, _ := strings.Cut(path[1:], "/")
	rest = "/" + rest

	switch {
	case r.IsSupported(first):
		return Resolution{Outcome: Localized, Locale: first, Rest: rest}
	case first == "":
		// root, or a path starting with '//'
	case r.isRoute(first):
	case looksLikeLanguage(first):
		return Resolution{Outcome: NotFound}
	}

	target := "/" + redirectLocale
	if path != "/" {
		target += path
	}
	if hasQuery {
		target += "?" + query
	}
	return Resolution{Outcome: Redirect, Locale: redirectLocale, Target: target}
}

func (r *Routing) isRoute(segment string) bool {
	_, ok := r.routes[segment]
	return ok
}

// looksLikeLanguage reports whether segment is a well formed language tag with a known ISO 639 base.
func looksLikeLanguage(segment string) bool {
	primary, _, _ := strings.Cut(segment, "-")
	if len(primary) < 2 || len(primary) > 3 {
		return false
	}
	for _, c := range primary {
		if c < 'a' || c > 'z' {
			return false
		}
	}
	if _, err := language.ParseBase(primary); err != nil {
		return false
	}
	_, err := language.Parse(segment)
	return err == nil
}

// Path builds a locale prefixed path for route, replacing any locale route already carries.
// Unsupported locales fall back to the default.
func (r *Routing) Path(locale string, route string) string {
	return r.Switch(route, locale)
}

// Switch moves path to locale: a leading known locale segment is replaced, otherwise locale is inserted.
// The rest of the path and any query string are preserved.
func (r *Routing) Switch(path string, locale string) string {
	if !r.IsSupported(locale) {
		locale = r.def
	}

	p, query, hasQuery := strings.Cut(path, "?")
	p = strings.TrimPrefix(p, "/")

	first, rest, found := strings.Cut(p, "/")
	switch {
	case r.IsSupported(first) && found:
		p = "/" + locale + "/" + rest
	case r.IsSupported(first):
		p = "/" + locale
	case p == "":
		p = "/" + locale
	default:
		p = "/" + locale + "/" + p
	}

	if hasQuery {
		p += "?" + query
	}
	return p
}

// Excluded reports whether path bypasses locale routing: API proxies, framework assets and files.
func Excluded(path string) bool {
	trimmed := strings.TrimPrefix(path, "/")
	first, _, _ := strings.Cut(trimmed, "/")
	switch first {
	case "api", "_next", "_vercel", "healthz":
		return true
	}
	return strings.Contains(trimmed, ".")
}
