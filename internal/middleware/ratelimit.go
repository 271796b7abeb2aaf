package middleware

import (
	"net"
	"net/http"
	"strings"

	"cardvault-backend/internal/ratelimit"
	"cardvault-backend/pkg/api"
	"cardvault-backend/pkg/auth"

	"go.uber.org/zap"
)

const rateLimitedMessage = "Rate limit exceeded. Please try again later."

// RateLimit enforces the per-identity endpoint budgets. Authenticated
// requests are keyed by username, anonymous ones by client IP.
func RateLimit(limiter *ratelimit.Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := clientIdentity(r)
			if !limiter.Allow(r.Context(), id, r.Method, r.URL.Path, r.URL.Query().Get("query") != "") {
				logger.Warn("rate limit exceeded",
					zap.String("identity", id),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path))
				api.Error(w, http.StatusTooManyRequests, rateLimitedMessage)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIdentity resolves the bucket owner: the authenticated username, else
// the first X-Forwarded-For hop, else the peer address.
func clientIdentity(r *http.Request) string {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		return p.Username
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
