package middleware

import (
	"net/http"
	"runtime/debug"

	"cardvault-backend/pkg/api"

	"go.uber.org/zap"
)

// Recovery converts panics into 500 responses instead of dropped connections.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						zap.Any("panic", err),
						zap.String("requestId", GetRequestIDFromRequest(r)),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()))

					// If the response was already partially written there is
					// nothing useful left to send.
					if w.Header().Get("Content-Type") == "" {
						api.Error(w, http.StatusInternalServerError, "Internal server error")
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
