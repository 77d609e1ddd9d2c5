package ratelimiter

import (
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/pitabwire/util"
)

// RejectFunc writes the response for a limited request.
type RejectFunc func(w http.ResponseWriter, r *http.Request)

// GetIP extracts the caller IP from forwarding headers or the remote address.
func GetIP(r *http.Request) string {
	if r == nil {
		return "unknown"
	}

	ip := util.GetIP(r)
	if ip == "" {
		return "unknown"
	}
	return ip
}

// IPMiddleware limits requests per caller IP. A nil reject writes a JSON 429 body.
func IPMiddleware(limiter *KeyedLimiter, reject RejectFunc) func(http.Handler) http.Handler {
	if reject == nil {
		reject = writeLimited
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			ip := GetIP(r)
			if !limiter.Allow(ip) {
				util.Log(r.Context()).WithField("ip", ip).WithField("path", r.URL.Path).Warn("rate limit exceeded")
				setLimitHeaders(w, limiter)
				reject(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.Burst()))
			next.ServeHTTP(w, r)
		})
	}
}

func setLimitHeaders(w http.ResponseWriter, limiter *KeyedLimiter) {
	retryAfter := int(math.Ceil(limiter.RetryAfter().Seconds()))
	if retryAfter <= 0 {
		retryAfter = 1
	}

	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.Burst()))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("X-RateLimit-Scope", "ip")
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
}

func writeLimited(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	writeIgnoreErr(w, `{"error": "rate limit exceeded", "code": "rate_limit_exceeded"}`)
}

func writeIgnoreErr(w io.Writer, data string) {
	_, _ = fmt.Fprint(w, data)
}
