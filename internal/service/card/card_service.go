// Package card composes the cache namespace over the catalog repository and
// owns the archetype lifecycle. Reads are cached per page, per name and for
// the total count; every write evicts the whole namespace before returning.
package card

import (
	"context"
	"fmt"
	"strings"

	"cardvault-backend/internal/cache"
	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/queue"
	"cardvault-backend/internal/repository"
	appErrors "cardvault-backend/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// Page size bounds for list endpoints.
	DefaultPageSize = 20
	MaxPageSize     = 200

	countKey = "count"
)

// Page is one cached page of catalog results.
type Page struct {
	Items       []domain.Card `json:"items"`
	CurrentPage int           `json:"currentPage"`
	PageSize    int           `json:"pageSize"`
	TotalPages  int           `json:"totalPages"`
	TotalItems  int64         `json:"totalItems"`
	HasNext     bool          `json:"hasNext"`
	HasPrevious bool          `json:"hasPrevious"`
}

func newPage(items []domain.Card, page, size int, total int64) Page {
	if items == nil {
		items = []domain.Card{}
	}
	totalPages := int(total / int64(size))
	if total%int64(size) != 0 {
		totalPages++
	}
	return Page{
		Items:       items,
		CurrentPage: page,
		PageSize:    size,
		TotalPages:  totalPages,
		TotalItems:  total,
		HasNext:     page+1 < totalPages,
		HasPrevious: page > 0,
	}
}

// Service is the catalog service.
type Service struct {
	cards      repository.CardRepository
	archetypes repository.ArchetypeRepository
	decks      repository.DeckRepository
	cache      *cache.Namespace
	queue      *queue.MessageQueue
	logger     *zap.Logger
}

func NewService(cards repository.CardRepository, archetypes repository.ArchetypeRepository,
	decks repository.DeckRepository, cacheNS *cache.Namespace, q *queue.MessageQueue,
	logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cards:      cards,
		archetypes: archetypes,
		decks:      decks,
		cache:      cacheNS,
		queue:      q,
		logger:     logger,
	}
}

func nameKey(name string) string    { return "name:" + name }
func pageKey(page, size int) string { return fmt.Sprintf("page:%d:size:%d", page, size) }

// ClampPageSize normalizes a requested page size into [1, MaxPageSize],
// substituting the default for zero or negative values.
func ClampPageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// GetByName returns a single card, read through the cache.
func (s *Service) GetByName(ctx context.Context, name string) (*domain.Card, error) {
	return cache.GetOrCompute(ctx, s.cache, nameKey(name), func(ctx context.Context) (*domain.Card, error) {
		s.logger.Info("cache miss, loading card from database", zap.String("name", name))
		card, found, err := s.cards.FindByName(ctx, name)
		if err != nil {
			return nil, appErrors.NewInternal("failed to load card", err)
		}
		if !found {
			return nil, appErrors.NewNotFound("Card not found: " + name)
		}
		return card, nil
	})
}

// ListPage returns one page of the catalog, read through the cache.
func (s *Service) ListPage(ctx context.Context, page, size int) (Page, error) {
	size = ClampPageSize(size)
	if page < 0 {
		page = 0
	}
	return cache.GetOrCompute(ctx, s.cache, pageKey(page, size), func(ctx context.Context) (Page, error) {
		s.logger.Info("cache miss, loading page from database",
			zap.Int("page", page), zap.Int("size", size))
		items, err := s.cards.FindPage(ctx, page, size)
		if err != nil {
			return Page{}, appErrors.NewInternal("failed to load card page", err)
		}
		total, err := s.Count(ctx)
		if err != nil {
			return Page{}, err
		}
		return newPage(items, page, size, total), nil
	})
}

// SearchPage queries the store directly; the result space is too large to
// cache usefully.
func (s *Service) SearchPage(ctx context.Context, query string, page, size int) (Page, error) {
	size = ClampPageSize(size)
	if page < 0 {
		page = 0
	}
	items, total, err := s.cards.Search(ctx, query, page, size)
	if err != nil {
		return Page{}, appErrors.NewInternal("failed to search cards", err)
	}
	return newPage(items, page, size, total), nil
}

// Count returns the total catalog size, read through the cache.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return cache.GetOrCompute(ctx, s.cache, countKey, func(ctx context.Context) (int64, error) {
		s.logger.Info("cache miss, counting cards in database")
		count, err := s.cards.Count(ctx)
		if err != nil {
			return 0, appErrors.NewInternal("failed to count cards", err)
		}
		return count, nil
	})
}

// Save creates or updates a card, resolving its archetype reference first.
// The whole cards namespace is evicted before the call returns, and the
// mutation is fanned out through the work queues.
func (s *Service) Save(ctx context.Context, card *domain.Card) (*domain.Card, error) {
	if strings.TrimSpace(card.Name) == "" {
		return nil, appErrors.NewValidation("Card name is required")
	}

	if card.Archetype != nil && strings.TrimSpace(card.Archetype.Name) != "" {
		name := strings.TrimSpace(card.Archetype.Name)
		resolved, err := s.EnsureArchetypes(ctx, []string{name})
		if err != nil {
			return nil, err
		}
		if a, ok := resolved[name]; ok {
			card.Archetype = &a
		}
	} else {
		card.Archetype = nil
	}

	// The created/updated label is decided by this read. A writer racing on
	// the same name between the read and the save can mislabel the event;
	// consumers treat both types as advisory, so the label is best effort.
	_, existed, err := s.cards.FindByName(ctx, card.Name)
	if err != nil {
		return nil, appErrors.NewInternal("failed to check card existence", err)
	}

	if err := s.cards.Save(ctx, card); err != nil {
		if repository.IsDuplicate(err) {
			return nil, appErrors.NewConflict("Resource already exists")
		}
		return nil, appErrors.NewInternal("failed to save card", err)
	}

	s.evictAllLogged(ctx)

	opType := queue.TypeCardCreated
	verb := "created"
	if existed {
		opType = queue.TypeCardUpdated
		verb = "updated"
	}
	s.queue.Enqueue(ctx, queue.QueueCardOperations, queue.NewMessage(opType, map[string]interface{}{
		"cardName": card.Name,
	}))
	s.queue.Enqueue(ctx, queue.QueueNotifications, queue.NewMessage(queue.TypeSystem, map[string]interface{}{
		"content": fmt.Sprintf("Card %q %s", card.Name, verb),
	}))

	return card, nil
}

// Delete removes a card unless a deck still references it, then
// garbage-collects the card's archetype when it became orphaned.
func (s *Service) Delete(ctx context.Context, name string) error {
	card, found, err := s.cards.FindByName(ctx, name)
	if err != nil {
		return appErrors.NewInternal("failed to load card", err)
	}
	if !found {
		return appErrors.NewNotFound("Card not found: " + name)
	}

	referenced, err := s.decks.AnyDeckReferencesCard(ctx, name)
	if err != nil {
		return appErrors.NewInternal("failed to check deck references", err)
	}
	if referenced {
		return appErrors.NewConflict("Cannot delete card: used in decks")
	}

	var archetypeName string
	if card.Archetype != nil {
		archetypeName = card.Archetype.Name
	}

	if err := s.cards.Delete(ctx, name); err != nil {
		return appErrors.NewInternal("failed to delete card", err)
	}

	s.evictAllLogged(ctx)

	if archetypeName != "" {
		s.collectOrphanArchetype(ctx, archetypeName)
	}

	s.queue.Enqueue(ctx, queue.QueueCardOperations, queue.NewMessage(queue.TypeCardDeleted, map[string]interface{}{
		"cardName": name,
	}))
	return nil
}

// collectOrphanArchetype deletes the archetype when no cards reference it
// anymore. Best-effort: a concurrent writer re-adopting the archetype must
// not fail the delete request.
func (s *Service) collectOrphanArchetype(ctx context.Context, archetypeName string) {
	remaining, err := s.cards.CountByArchetypeName(ctx, archetypeName)
	if err != nil {
		s.logger.Warn("orphan archetype check failed",
			zap.String("archetype", archetypeName), zap.Error(err))
		return
	}
	if remaining > 0 {
		return
	}
	a, found, err := s.archetypes.FindByName(ctx, archetypeName)
	if err != nil || !found {
		return
	}
	if err := s.archetypes.Delete(ctx, a.ID); err != nil {
		s.logger.Warn("could not delete orphan archetype",
			zap.String("archetype", archetypeName), zap.Error(err))
		return
	}
	s.logger.Info("deleted orphan archetype", zap.String("archetype", archetypeName))
}

// EvictAll clears the whole cards namespace. Also invoked by the background
// dispatcher for CLEAR_ALL messages.
func (s *Service) EvictAll(ctx context.Context) error {
	return s.cache.EvictAll(ctx)
}

func (s *Service) evictAllLogged(ctx context.Context) {
	// Write already committed; a failed eviction degrades to stale reads
	// until TTL and is logged inside EvictAll.
	_ = s.cache.EvictAll(ctx)
}

// Warmup pre-populates the count and the first five default-size pages.
// Idempotent; run after EvictAll to keep the hot set resident.
func (s *Service) Warmup(ctx context.Context) error {
	if _, err := s.Count(ctx); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < 5; p++ {
		g.Go(func() error {
			_, err := s.ListPage(gctx, p, DefaultPageSize)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("cache warm-up complete")
	return nil
}

// CacheStats reports cache occupancy for the ops endpoint.
func (s *Service) CacheStats(ctx context.Context) map[string]interface{} {
	total, err := s.Count(ctx)
	stats := map[string]interface{}{
		"countCached":     s.cache.Probe(ctx, countKey),
		"firstPageCached": s.cache.Probe(ctx, pageKey(0, DefaultPageSize)),
	}
	if err == nil {
		stats["totalCards"] = total
	}
	return stats
}
