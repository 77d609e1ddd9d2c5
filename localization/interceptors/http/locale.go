package http

import (
	"net/http"

	"github.com/pitabwire/util"

	"github.com/tjddyd55-crypto/global-audition/localization"
)

// LocaleHTTPMiddleware enforces the /{locale}/... URL structure.
// Unprefixed paths are redirected with 307, unsupported language prefixes get 404,
// and localized requests carry their locale in the request context.
func LocaleHTTPMiddleware(routing *localization.Routing, detect bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if localization.Excluded(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			res := routing.ResolveRequest(r, detect)
			switch res.Outcome {
			case localization.Redirect:
				util.Log(r.Context()).WithField("from", r.URL.Path).WithField("to", res.Target).Debug("locale redirect")
				http.Redirect(w, r, res.Target, http.StatusTemporaryRedirect)
			case localization.NotFound:
				http.NotFound(w, r)
			default:
				ctx := localization.ToContext(r.Context(), res.Locale)
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}
