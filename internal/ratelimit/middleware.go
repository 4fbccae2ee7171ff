package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ceotind/sharp-form-backend/internal/apperr"
	"github.com/ceotind/sharp-form-backend/internal/auth"
	"github.com/ceotind/sharp-form-backend/internal/metrics"
)

// Middleware limits requests per authenticated identity, falling back to the
// client address. scope prefixes the key and labels rejections. Limiter
// failures let the request through.
func Middleware(l Limiter, scope string, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + clientKey(r)
			d, err := l.Allow(r.Context(), key)
			if err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			reset := int(time.Until(d.ResetAt).Round(time.Second) / time.Second)
			if reset < 0 {
				reset = 0
			}
			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("RateLimit-Reset", strconv.Itoa(reset))

			if !d.Allowed {
				metrics.RateLimited.WithLabelValues(scope).Inc()
				h.Set("Retry-After", strconv.Itoa(reset))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": "Too many file uploads",
					"code":  apperr.CodeRateLimited,
					"details": apperr.Details{
						"windowMs":          formatWindow(window),
						"maxUploads":        d.Limit,
						"nextUploadAllowed": d.ResetAt.UTC().Format("2006-01-02T15:04:05.000Z"),
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if id := auth.IdentityFrom(r.Context()); id != nil {
		return id.UID
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// formatWindow renders a window the way clients read it, e.g. "15 minutes".
func formatWindow(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
