package middleware

import (
	"log/slog"
	"net/http"

	"agentledger/internal/logging"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RequestLogger attaches a logger tagged with chi's request id to the
// request context. Mount it after chi's RequestID middleware.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := chimiddleware.GetReqID(ctx)
			if requestID != "" {
				ctx = logging.WithRequestID(ctx, requestID)
			}
			ctx = logging.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
