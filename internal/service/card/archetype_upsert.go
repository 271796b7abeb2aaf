package card

import (
	"context"
	"strings"

	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/repository"
	appErrors "cardvault-backend/pkg/errors"

	"go.uber.org/zap"
)

// EnsureArchetypes resolves a set of archetype names to rows, creating the
// missing ones. Names are trimmed before use and the result map is keyed by
// the trimmed form. Concurrent callers racing on the same name all end up
// with the single winning row: a bulk-insert conflict triggers a re-query
// and a one-by-one retry, and a one-by-one conflict takes the concurrent
// writer's row. A concurrent caller's row is semantically equivalent, so
// nothing is thrown past the retry.
func (s *Service) EnsureArchetypes(ctx context.Context, rawNames []string) (map[string]domain.Archetype, error) {
	names := make(map[string]struct{})
	for _, n := range rawNames {
		if trimmed := strings.TrimSpace(n); trimmed != "" {
			names[trimmed] = struct{}{}
		}
	}

	result := make(map[string]domain.Archetype)
	if len(names) == 0 {
		return result, nil
	}

	pending := make([]string, 0, len(names))
	for n := range names {
		pending = append(pending, n)
	}

	existing, err := s.archetypes.FindByNameIn(ctx, pending)
	if err != nil {
		return nil, appErrors.NewInternal("failed to load archetypes", err)
	}
	for _, a := range existing {
		result[a.Name] = a
		delete(names, a.Name)
	}
	if len(names) == 0 {
		return result, nil
	}

	toCreate := make([]*domain.Archetype, 0, len(names))
	missing := make([]string, 0, len(names))
	for n := range names {
		toCreate = append(toCreate, &domain.Archetype{Name: n})
		missing = append(missing, n)
	}

	err = s.archetypes.InsertAll(ctx, toCreate)
	if err == nil {
		for _, a := range toCreate {
			result[a.Name] = *a
			s.logger.Info("created archetype", zap.String("name", a.Name))
		}
		return result, nil
	}
	if !repository.IsDuplicate(err) {
		return nil, appErrors.NewInternal("failed to create archetypes", err)
	}

	// Concurrent writer won at least one of the names; re-query and retry
	// the remainder one by one.
	s.logger.Warn("concurrent archetype insert conflict, re-querying")
	reFetched, err := s.archetypes.FindByNameIn(ctx, missing)
	if err != nil {
		return nil, appErrors.NewInternal("failed to re-query archetypes", err)
	}
	remaining := make(map[string]struct{}, len(missing))
	for _, n := range missing {
		remaining[n] = struct{}{}
	}
	for _, a := range reFetched {
		result[a.Name] = a
		delete(remaining, a.Name)
	}

	for n := range remaining {
		a := &domain.Archetype{Name: n}
		err := s.archetypes.Insert(ctx, a)
		if err == nil {
			result[n] = *a
			s.logger.Info("created archetype after retry", zap.String("name", n))
			continue
		}
		if !repository.IsDuplicate(err) {
			return nil, appErrors.NewInternal("failed to create archetype", err)
		}
		winner, found, err := s.archetypes.FindByName(ctx, n)
		if err != nil {
			return nil, appErrors.NewInternal("failed to load archetype after conflict", err)
		}
		if found {
			result[n] = *winner
		} else {
			s.logger.Error("archetype vanished after concurrent conflict", zap.String("name", n))
		}
	}
	return result, nil
}
