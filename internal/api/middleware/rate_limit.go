package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/ayo6706/payout-settlement/internal/api/problem"
)

func limitExceeded(rps int, scope string) httprate.Option {
	return httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
		problem.WriteSlug(w, r, http.StatusTooManyRequests, "rate-limit-exceeded",
			fmt.Sprintf("Rate limit of %d req/s exceeded for this %s", rps, scope))
	})
}

// PublicRateLimiter limits requests per IP for unauthenticated routes such as
// the network webhook.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		limitExceeded(rps, "IP"),
	)
}

// AuthRateLimiter limits authenticated operators by user id.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if userID := UserIDFromContext(r.Context()); userID != "" {
				return userID, nil
			}
			return httprate.KeyByIP(r)
		}),
		limitExceeded(rps, "user"),
	)
}
