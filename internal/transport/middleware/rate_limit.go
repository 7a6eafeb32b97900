// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const headerRateLimitLimit = "X-RateLimit-Limit"
const headerRateLimitRemaining = "X-RateLimit-Remaining"
const headerRetryAfter = "Retry-After"

// RateLimit applies a per-client token bucket of limitPerMinute requests. The
// client is identified by the host part of RemoteAddr. A limit <= 0 disables
// the middleware. onLimited, if set, runs for every rejected request.
func RateLimit(limitPerMinute int, logger *slog.Logger, onLimited func()) func(http.Handler) http.Handler {
	return rateLimitWithLimiter(limitPerMinute, newInMemoryRateLimiter(), time.Now, logger, onLimited)
}

func rateLimitWithLimiter(
	limitPerMinute int,
	limiter *inMemoryRateLimiter,
	now func() time.Time,
	logger *slog.Logger,
	onLimited func(),
) func(http.Handler) http.Handler {
	if limitPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if limiter == nil {
		panic("middleware.RateLimit requires a limiter")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientKey(r)

			decision := limiter.Allow(client, limitPerMinute, now())
			w.Header().Set(headerRateLimitLimit, strconv.Itoa(decision.LimitPerMinute))
			w.Header().Set(headerRateLimitRemaining, strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				logger.Warn("request blocked by rate limiter",
					"path", r.URL.Path,
					"client", client,
				)
				if onLimited != nil {
					onLimited()
				}
				w.Header().Set(headerRetryAfter, strconv.Itoa(decision.RetryAfterSeconds))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
