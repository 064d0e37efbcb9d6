package middleware

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/api/problem"
)

// RecoverMiddleware converts panics into RFC 7807 responses and logs the stack.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func RecoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("request_id", TraceIDFromContext(r.Context())),
					zap.Stack("stack"),
				)
				problem.WriteSlug(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
