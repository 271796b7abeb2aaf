// Package seed performs the one-shot initial catalog import from the
// upstream card API and seeds the fixed set of principals. The import runs
// at most once per startup; reloads are spawned on demand.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/repository"
	"cardvault-backend/internal/service/card"
	"cardvault-backend/pkg/auth"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// upstreamTimeout bounds every egress call to the catalog API.
const upstreamTimeout = 30 * time.Second

// upstreamCard is the wire shape of the upstream catalog API.
type upstreamCard struct {
	Name                  string `json:"name"`
	Type                  string `json:"type"`
	HumanReadableCardType string `json:"humanReadableCardType"`
	Desc                  string `json:"desc"`
	Race                  string `json:"race"`
	Attribute             string `json:"attribute"`
	Archetype             string `json:"archetype"`
}

type upstreamResponse struct {
	Data []upstreamCard `json:"data"`
}

// CardImporter pulls the catalog from the upstream API and persists it.
type CardImporter struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	cards   repository.CardRepository
	catalog *card.Service
	logger  *zap.Logger

	reloadMu  sync.Mutex
	reloading bool
}

func NewCardImporter(url string, cards repository.CardRepository, catalog *card.Service, logger *zap.Logger) *CardImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CardImporter{
		url:    url,
		client: &http.Client{Timeout: upstreamTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "upstream-catalog",
			Timeout: time.Minute,
		}),
		cards:   cards,
		catalog: catalog,
		logger:  logger,
	}
}

// RunInitialImport imports the catalog when the store is empty. Failures are
// logged, not fatal: the service starts degraded and can reload later.
func (i *CardImporter) RunInitialImport(ctx context.Context) {
	count, err := i.cards.Count(ctx)
	if err != nil {
		i.logger.Error("could not check catalog size, skipping import", zap.Error(err))
		return
	}
	if count > 0 {
		i.logger.Info("catalog already populated, skipping import", zap.Int64("cards", count))
		return
	}
	if err := i.importAll(ctx); err != nil {
		i.logger.Error("initial catalog import failed", zap.Error(err))
	}
}

// AsyncReload spawns one background reload unless one is already running.
func (i *CardImporter) AsyncReload(ctx context.Context) bool {
	i.reloadMu.Lock()
	defer i.reloadMu.Unlock()
	if i.reloading {
		return false
	}
	i.reloading = true

	go func() {
		defer func() {
			i.reloadMu.Lock()
			i.reloading = false
			i.reloadMu.Unlock()
		}()
		if err := i.importAll(ctx); err != nil {
			i.logger.Error("async catalog reload failed", zap.Error(err))
		}
	}()
	return true
}

func (i *CardImporter) importAll(ctx context.Context) error {
	start := time.Now()
	raw, err := i.fetch(ctx)
	if err != nil {
		return err
	}

	// Ensure every referenced archetype exists before the cards point at it.
	names := make([]string, 0)
	seen := make(map[string]struct{})
	for _, c := range raw {
		if name := strings.TrimSpace(c.Archetype); name != "" {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	archetypes, err := i.catalog.EnsureArchetypes(ctx, names)
	if err != nil {
		return fmt.Errorf("ensure archetypes: %w", err)
	}

	cards := make([]domain.Card, 0, len(raw))
	for _, c := range raw {
		cardType := c.HumanReadableCardType
		if cardType == "" {
			cardType = c.Type
		}
		dc := domain.Card{
			Name:        c.Name,
			Type:        cardType,
			Description: c.Desc,
			Race:        c.Race,
			Attribute:   c.Attribute,
		}
		if a, ok := archetypes[strings.TrimSpace(c.Archetype)]; ok {
			archetype := a
			dc.Archetype = &archetype
		}
		cards = append(cards, dc)
	}

	if err := i.cards.SaveAll(ctx, cards); err != nil {
		return fmt.Errorf("persist cards: %w", err)
	}
	if err := i.catalog.EvictAll(ctx); err == nil {
		_ = i.catalog.Warmup(ctx)
	}

	i.logger.Info("catalog import complete",
		zap.Int("cards", len(cards)),
		zap.Int("archetypes", len(archetypes)),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (i *CardImporter) fetch(ctx context.Context) ([]upstreamCard, error) {
	result, err := i.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := i.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
		}
		var body upstreamResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode upstream response: %w", err)
		}
		return body.Data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]upstreamCard), nil
}

// SeedUsers creates the fixed principal set when absent. Principals are
// immutable after seeding.
func SeedUsers(ctx context.Context, users repository.UserRepository, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	seeds := []struct {
		username string
		password string
		role     string
	}{
		{"user1", "password1", auth.RoleUser},
		{"user2", "password2", auth.RoleUser},
		{"admin1", "admin1", auth.RoleAdmin},
	}

	for _, s := range seeds {
		if _, exists, err := users.FindByUsername(ctx, s.username); err != nil {
			return err
		} else if exists {
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(s.password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		if err := users.Save(ctx, &domain.User{
			Username:     s.username,
			PasswordHash: string(hash),
			Role:         s.role,
			Enabled:      true,
		}); err != nil {
			return err
		}
		logger.Info("seeded user", zap.String("username", s.username), zap.String("role", s.role))
	}
	return nil
}
