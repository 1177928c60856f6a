package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ashita-ai/archdoc/internal/model"
)

// KeyFunc extracts the rate limit key from a request. An empty key skips
// limiting for that request.
type KeyFunc func(r *http.Request) string

// RequestIDFunc extracts the request ID for the error envelope. Injected so
// this package does not depend on the server package.
type RequestIDFunc func(r *http.Request) string

// Middleware enforces limiter on every request, keyed by keyFunc under prefix.
// A nil limiter disables limiting. Limiter errors fail open.
func Middleware(limiter Limiter, prefix string, keyFunc KeyFunc, reqID RequestIDFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			d, err := limiter.Allow(r.Context(), prefix+":"+key)
			if err != nil {
				slog.Warn("ratelimit: limiter error, allowing request", "prefix", prefix, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if d.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			}
			if !d.Allowed {
				retry := int(math.Ceil(d.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				var id string
				if reqID != nil {
					id = reqID(r)
				}
				writeRateLimitError(w, id)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimitError(w http.ResponseWriter, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Error: model.ErrorDetail{
			Code:    model.ErrCodeRateLimited,
			Message: "too many requests",
		},
		Meta: model.ResponseMeta{
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
		},
	})
}

// IPKeyFunc keys by the client IP from RemoteAddr. X-Forwarded-For is not
// trusted since any client can set it.
func IPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
