package handlers

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cardvault-backend/internal/cache"
	"cardvault-backend/internal/coordination"
	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/lock"
	"cardvault-backend/internal/observability"
	"cardvault-backend/internal/queue"
	"cardvault-backend/internal/ratelimit"
	"cardvault-backend/internal/repository/memory"
	"cardvault-backend/internal/service/card"
	"cardvault-backend/internal/service/deck"
	"cardvault-backend/internal/service/token"
	"cardvault-backend/pkg/auth"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	router chi.Router
	jwt    *auth.TokenService
	cards  *memory.CardRepository
	decks  *memory.DeckRepository
}

type fakeReloader struct{ started bool }

func (f *fakeReloader) AsyncReload(ctx context.Context) bool {
	if f.started {
		return false
	}
	f.started = true
	return true
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwtService, err := auth.NewTokenService(key, nil, 15*time.Minute)
	require.NoError(t, err)

	store := coordination.NewMemoryStore()
	cards := memory.NewCardRepository()
	archetypes := memory.NewArchetypeRepository()
	decks := memory.NewDeckRepository()
	users := memory.NewUserRepository()
	refresh := memory.NewRefreshTokenRepository()

	ctx := context.Background()
	for _, u := range []struct {
		username, password, role string
	}{
		{"user1", "password1", auth.RoleUser},
		{"user2", "password2", auth.RoleUser},
		{"admin1", "admin1", auth.RoleAdmin},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		require.NoError(t, err)
		require.NoError(t, users.Save(ctx, &domain.User{
			Username: u.username, PasswordHash: string(hash), Role: u.role, Enabled: true,
		}))
	}

	workQueue := queue.New(store, nil)
	catalog := card.NewService(cards, archetypes, decks,
		cache.NewNamespace(store, "cards", time.Minute, nil), workQueue, nil)
	deckService := deck.NewService(decks, cards, lock.New(store, nil), nil)
	tokenService := token.NewService(users, refresh, jwtService, 7*24*time.Hour, nil)

	router := NewRouter(RouterDeps{
		Auth:       NewAuthHandler(tokenService, nil),
		Cards:      NewCardHandler(catalog, nil),
		Ops:        NewOpsHandler(catalog, card.NewBatchRunner(catalog, nil), workQueue, &fakeReloader{}, nil),
		Decks:      NewDeckHandler(deckService, nil),
		Archetypes: NewArchetypeHandler(archetypes, nil),
		Users:      NewUserHandler(users, nil),
		Tokens:     jwtService,
		Limiter:    ratelimit.New(store, nil),
		Health:     observability.NewHealthHandler(catalog, 1, nil),
		Logger:     nil,
	})

	return &testServer{router: router, jwt: jwtService, cards: cards, decks: decks}
}

func (s *testServer) tokenFor(t *testing.T, username, role string) string {
	t.Helper()
	tok, err := s.jwt.GenerateToken(username, []string{role})
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestAuthEndpoints(t *testing.T) {
	t.Run("Should reject login with missing fields", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "user1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Should reject bad credentials", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, "POST", "/api/auth/login", "", map[string]string{
			"username": "user1", "password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, decodeEnvelope(t, w).Success)
	})

	t.Run("Should complete the login refresh logout cycle", func(t *testing.T) {
		s := newTestServer(t)

		w := s.do(t, "POST", "/api/auth/login", "", map[string]string{
			"username": "user1", "password": "password1",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var login struct {
			AccessToken  string   `json:"accessToken"`
			RefreshToken string   `json:"refreshToken"`
			Roles        []string `json:"roles"`
		}
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &login))
		assert.Equal(t, []string{"USER"}, login.Roles)
		require.NotEmpty(t, login.RefreshToken)

		w = s.do(t, "POST", "/api/auth/refresh", "", map[string]string{"refreshToken": login.RefreshToken})
		assert.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, "POST", "/api/auth/logout", "", map[string]string{"refreshToken": login.RefreshToken})
		assert.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, "POST", "/api/auth/refresh", "", map[string]string{"refreshToken": login.RefreshToken})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Should describe the current principal", func(t *testing.T) {
		s := newTestServer(t)

		w := s.do(t, "GET", "/api/auth/user", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var guest struct {
			Authenticated bool   `json:"authenticated"`
			Username      string `json:"username"`
		}
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &guest))
		assert.False(t, guest.Authenticated)
		assert.Equal(t, "guest", guest.Username)

		w = s.do(t, "GET", "/api/auth/user", s.tokenFor(t, "user1", auth.RoleUser), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var me struct {
			Authenticated bool     `json:"authenticated"`
			Username      string   `json:"username"`
			Roles         []string `json:"roles"`
		}
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &me))
		assert.True(t, me.Authenticated)
		assert.Equal(t, "user1", me.Username)
		assert.Equal(t, []string{"USER"}, me.Roles)
	})

	t.Run("Should treat a garbage bearer token as anonymous", func(t *testing.T) {
		s := newTestServer(t)

		w := s.do(t, "GET", "/api/cards", "not-a-jwt", nil)
		assert.Equal(t, http.StatusOK, w.Code, "public reads stay reachable")

		w = s.do(t, "GET", "/api/auth/user", "not-a-jwt", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var guest struct {
			Authenticated bool `json:"authenticated"`
		}
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &guest))
		assert.False(t, guest.Authenticated)

		w = s.do(t, "POST", "/api/decks", "not-a-jwt", map[string]string{"name": "My Deck"})
		assert.Equal(t, http.StatusUnauthorized, w.Code, "guarded routes still demand a principal")
	})
}

func TestCardEndpoints(t *testing.T) {
	ctx := context.Background()

	t.Run("Should list cards with the response time header", func(t *testing.T) {
		s := newTestServer(t)
		require.NoError(t, s.cards.Save(ctx, &domain.Card{Name: "Dark Magician"}))

		w := s.do(t, "GET", "/api/cards", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Regexp(t, `^\d+ms$`, w.Header().Get("X-Response-Time"))
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("Should fetch a card by name", func(t *testing.T) {
		s := newTestServer(t)
		require.NoError(t, s.cards.Save(ctx, &domain.Card{Name: "Dark Magician", Attribute: "DARK"}))

		w := s.do(t, "GET", "/api/cards/by-name?name=Dark%20Magician", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, "GET", "/api/cards/Dark%20Magician", "", nil)
		assert.Equal(t, http.StatusOK, w.Code, "legacy path lookup")

		w = s.do(t, "GET", "/api/cards/by-name?name=Missing", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Should guard card writes by role", func(t *testing.T) {
		s := newTestServer(t)
		body := map[string]string{"name": "Dark Magician"}

		w := s.do(t, "POST", "/api/cards", "", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = s.do(t, "POST", "/api/cards", s.tokenFor(t, "user1", auth.RoleUser), body)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = s.do(t, "POST", "/api/cards", s.tokenFor(t, "admin1", auth.RoleAdmin), body)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("Should complete the admin card lifecycle", func(t *testing.T) {
		s := newTestServer(t)
		admin := s.tokenFor(t, "admin1", auth.RoleAdmin)

		w := s.do(t, "POST", "/api/cards", admin, map[string]string{
			"name":                  "Dark Magician",
			"humanReadableCardType": "Effect Monster",
			"race":                  "Spellcaster",
			"attribute":             "DARK",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		w = s.do(t, "GET", "/api/cards/by-name?name=Dark%20Magician", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got domain.Card
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &got))
		assert.Equal(t, "Effect Monster", got.Type)
		assert.Equal(t, "DARK", got.Attribute)

		w = s.do(t, "PATCH", "/api/cards/Dark%20Magician", admin, map[string]string{"attribute": "LIGHT"})
		require.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, "DELETE", "/api/cards/Dark%20Magician", admin, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, "GET", "/api/cards/by-name?name=Dark%20Magician", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Should refuse deleting a card still used in a deck", func(t *testing.T) {
		s := newTestServer(t)
		require.NoError(t, s.cards.Save(ctx, &domain.Card{Name: "Dark Magician"}))
		require.NoError(t, s.decks.Create(ctx, &domain.Deck{
			Name: "Main", Owner: "user1", Cards: []domain.Card{{Name: "Dark Magician"}},
		}))

		w := s.do(t, "DELETE", "/api/cards/Dark%20Magician", s.tokenFor(t, "admin1", auth.RoleAdmin), nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestDeckEndpoints(t *testing.T) {
	ctx := context.Background()

	t.Run("Should enforce ownership over deck mutations", func(t *testing.T) {
		s := newTestServer(t)
		require.NoError(t, s.cards.Save(ctx, &domain.Card{Name: "Dark Magician"}))

		w := s.do(t, "POST", "/api/decks", s.tokenFor(t, "user1", auth.RoleUser), map[string]string{"name": "Main"})
		require.Equal(t, http.StatusCreated, w.Code)
		var created domain.Deck
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &created))

		path := fmt.Sprintf("/api/decks/%d/cards/Dark%%20Magician", created.ID)

		w = s.do(t, "POST", path, s.tokenFor(t, "user2", auth.RoleUser), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = s.do(t, "POST", path, s.tokenFor(t, "admin1", auth.RoleAdmin), nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, "POST", path, s.tokenFor(t, "user1", auth.RoleUser), nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Should require authentication to create a deck", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, "POST", "/api/decks", "", map[string]string{"name": "Main"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Should surface the copy limit through the API", func(t *testing.T) {
		s := newTestServer(t)
		require.NoError(t, s.cards.Save(ctx, &domain.Card{Name: "Blue-Eyes White Dragon"}))
		user := s.tokenFor(t, "user1", auth.RoleUser)

		w := s.do(t, "POST", "/api/decks", user, map[string]string{"name": "Main"})
		require.Equal(t, http.StatusCreated, w.Code)
		var created domain.Deck
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &created))

		path := fmt.Sprintf("/api/decks/%d/cards/Blue-Eyes%%20White%%20Dragon", created.ID)
		for i := 0; i < domain.MaxCopiesPerCard; i++ {
			w = s.do(t, "POST", path, user, nil)
			require.Equal(t, http.StatusOK, w.Code)
		}

		w = s.do(t, "POST", path, user, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeEnvelope(t, w).Message, "3 copies")
	})
}

func TestAdminEndpoints(t *testing.T) {
	t.Run("Should guard user listing", func(t *testing.T) {
		s := newTestServer(t)

		w := s.do(t, "GET", "/api/users", s.tokenFor(t, "user1", auth.RoleUser), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = s.do(t, "GET", "/api/users", s.tokenFor(t, "admin1", auth.RoleAdmin), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var users []userView
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &users))
		assert.Len(t, users, 3)
		for _, u := range users {
			assert.NotContains(t, []string{"ROLE_USER", "ROLE_ADMIN"}, u.Role,
				"roles are exposed without the storage prefix")
		}
	})

	t.Run("Should guard and serve the ops endpoints", func(t *testing.T) {
		s := newTestServer(t)
		admin := s.tokenFor(t, "admin1", auth.RoleAdmin)

		w := s.do(t, "GET", "/api/cards/cache/stats", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = s.do(t, "GET", "/api/cards/cache/stats", admin, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, "POST", "/api/cards/cache/clear", admin, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, "POST", "/api/cards/batch/warmup-cache", admin, nil)
		assert.Equal(t, http.StatusAccepted, w.Code)

		w = s.do(t, "POST", "/api/cards/async-reload", admin, nil)
		assert.Equal(t, http.StatusAccepted, w.Code)
		w = s.do(t, "POST", "/api/cards/async-reload", admin, nil)
		assert.Equal(t, http.StatusConflict, w.Code, "only one reload at a time")
	})

	t.Run("Should round trip a message through the queue endpoints", func(t *testing.T) {
		s := newTestServer(t)
		admin := s.tokenFor(t, "admin1", auth.RoleAdmin)

		w := s.do(t, "POST", "/api/cards/queue/notifications/send", admin, map[string]interface{}{
			"type":    "SYSTEM",
			"payload": map[string]interface{}{"content": "hello"},
		})
		require.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, "POST", "/api/cards/queue/notifications/size", admin, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var size struct {
			Size int64 `json:"size"`
		}
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &size))
		assert.EqualValues(t, 1, size.Size)

		w = s.do(t, "POST", "/api/cards/queue/notifications/peek", admin, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, "POST", "/api/cards/queue/notifications/clear", admin, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, "POST", "/api/cards/queue/notifications/size", admin, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &size))
		assert.Zero(t, size.Size)
	})
}

func TestRateLimiting(t *testing.T) {
	t.Run("Should return 429 after the login budget is spent", func(t *testing.T) {
		s := newTestServer(t)
		body := map[string]string{"username": "user1", "password": "wrong"}

		for i := 0; i < 5; i++ {
			w := s.do(t, "POST", "/api/auth/login", "", body)
			require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i+1)
		}

		w := s.do(t, "POST", "/api/auth/login", "", body)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "Rate limit exceeded. Please try again later.", decodeEnvelope(t, w).Message)
	})

	t.Run("Should never limit the health probe", func(t *testing.T) {
		s := newTestServer(t)
		for i := 0; i < 150; i++ {
			w := s.do(t, "GET", "/actuator/health", "", nil)
			assert.NotEqual(t, http.StatusTooManyRequests, w.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	ctx := context.Background()

	t.Run("Should report degraded below the card threshold", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, "GET", "/actuator/health", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "DEGRADED", body.Status)
	})

	t.Run("Should report up once the catalog is populated", func(t *testing.T) {
		s := newTestServer(t)
		require.NoError(t, s.cards.Save(ctx, &domain.Card{Name: "Dark Magician"}))

		w := s.do(t, "GET", "/actuator/health", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "UP", body.Status)
	})
}
