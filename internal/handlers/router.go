package handlers

import (
	"net/http"

	"cardvault-backend/internal/middleware"
	"cardvault-backend/internal/observability"
	"cardvault-backend/internal/ratelimit"
	"cardvault-backend/pkg/auth"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	Auth       *AuthHandler
	Cards      *CardHandler
	Ops        *OpsHandler
	Decks      *DeckHandler
	Archetypes *ArchetypeHandler
	Users      *UserHandler

	Tokens  *auth.TokenService
	Limiter *ratelimit.Limiter
	Metrics *observability.Metrics
	Health  http.Handler
	Logger  *zap.Logger
}

// NewRouter assembles the middleware chain and the full route table.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/actuator/health", deps.Health.ServeHTTP)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.ResponseTime)
		r.Use(middleware.Authenticate(deps.Tokens, deps.Logger))
		r.Use(middleware.RateLimit(deps.Limiter, deps.Logger))

		r.Route("/auth", deps.Auth.Routes)
		r.Route("/cards", func(r chi.Router) {
			r.Group(deps.Ops.Routes)
			deps.Cards.Routes(r)
		})
		r.Route("/decks", deps.Decks.Routes)
		r.Route("/archetypes", deps.Archetypes.Routes)
		r.Route("/users", deps.Users.Routes)
	})

	return r
}
