package middleware

import (
	"net/http"
	"strings"

	"cardvault-backend/pkg/auth"

	"go.uber.org/zap"
)

// Authenticate validates the bearer token, when present, and attaches the
// resulting principal to the request context. Requests without a usable
// token, including an invalid or expired one, proceed anonymously; per-route
// guards decide whether an anonymous principal is acceptable.
func Authenticate(tokens *auth.TokenService, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.ValidateToken(header)
			if err != nil {
				logger.Debug("ignoring invalid bearer token",
					zap.String("path", r.URL.Path), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			principal := &auth.Principal{
				Username: claims.Subject,
				Roles:    claims.Roles,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}
