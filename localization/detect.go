package localization

import (
	"net/http"

	"golang.org/x/text/language"
)

// LocaleCookieName remembers the last locale a visitor explicitly chose.
const LocaleCookieName = "NEXT_LOCALE"

// Detect picks a redirect locale for req: a supported locale cookie wins, then Accept-Language, then the default.
func (r *Routing) Detect(req *http.Request) string {
	if cookie, err := req.Cookie(LocaleCookieName); err == nil && r.IsSupported(cookie.Value) {
		return cookie.Value
	}

	accept := req.Header.Get("Accept-Language")
	if accept == "" {
		return r.def
	}

	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return r.def
	}

	_, index, confidence := r.matcher.Match(tags...)
	if confidence == language.No {
		return r.def
	}
	return r.matcherLocale(index)
}

// matcherLocale maps a matcher index back to the locale code, the default sits at index 0.
func (r *Routing) matcherLocale(index int) string {
	if index == 0 {
		return r.def
	}
	i := 0
	for _, l := range r.locales {
		if l == r.def {
			continue
		}
		i++
		if i == index {
			return l
		}
	}
	return r.def
}

// ResolveRequest classifies the request path. With detect set, redirects honour the visitor's language.
func (r *Routing) ResolveRequest(req *http.Request, detect bool) Resolution {
	target := r.def
	if detect {
		target = r.Detect(req)
	}

	path := req.URL.EscapedPath()
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}
	return r.resolve(path, target)
}
