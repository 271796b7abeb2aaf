// Package token implements the refresh-token lifecycle paired with signed
// short-lived access tokens.
//
// Access tokens are stateless RS256 JWTs and cannot be revoked before
// expiry; refresh tokens are opaque rows in the database, so logout and
// admin revocation take effect immediately.
package token

import (
	"context"
	"time"

	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/repository"
	"cardvault-backend/pkg/auth"
	appErrors "cardvault-backend/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Service mints access tokens and manages refresh-token state.
type Service struct {
	users      repository.UserRepository
	tokens     repository.RefreshTokenRepository
	jwt        *auth.TokenService
	refreshTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(users repository.UserRepository, tokens repository.RefreshTokenRepository,
	jwt *auth.TokenService, refreshTTL time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:      users,
		tokens:     tokens,
		jwt:        jwt,
		refreshTTL: refreshTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// LoginResult carries both tokens plus the principal info echoed to clients.
type LoginResult struct {
	AccessToken   string   `json:"accessToken"`
	RefreshToken  string   `json:"refreshToken"`
	Username      string   `json:"username"`
	Roles         []string `json:"roles"`
	Authenticated bool     `json:"authenticated"`
}

// Login verifies the password and mints a fresh access + refresh token pair.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, found, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, appErrors.NewInternal("failed to look up user", err)
	}
	if !found || !user.Enabled {
		return nil, appErrors.NewUnauthorized("Invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, appErrors.NewUnauthorized("Invalid username or password")
	}

	accessToken, err := s.jwt.GenerateToken(user.Username, []string{user.Role})
	if err != nil {
		return nil, appErrors.NewInternal("failed to mint access token", err)
	}

	refresh := &domain.RefreshToken{
		Token:     uuid.NewString(),
		Username:  user.Username,
		CreatedAt: s.now(),
		ExpiresAt: s.now().Add(s.refreshTTL),
	}
	if err := s.tokens.Save(ctx, refresh); err != nil {
		return nil, appErrors.NewInternal("failed to persist refresh token", err)
	}

	s.logger.Info("user logged in", zap.String("username", user.Username))
	return &LoginResult{
		AccessToken:   accessToken,
		RefreshToken:  refresh.Token,
		Username:      user.Username,
		Roles:         auth.StripRolePrefixes([]string{user.Role}),
		Authenticated: true,
	}, nil
}

// RefreshResult is the response to a successful refresh.
type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Refresh mints a new access token for a refresh token in the Active state.
// Revoked and expired tokens are terminal and always refuse.
func (s *Service) Refresh(ctx context.Context, token string) (*RefreshResult, error) {
	rt, found, err := s.tokens.FindByToken(ctx, token)
	if err != nil {
		return nil, appErrors.NewInternal("failed to look up refresh token", err)
	}
	if !found || !rt.Valid(s.now()) {
		return nil, appErrors.NewUnauthorized("Invalid or expired refresh token")
	}

	user, found, err := s.users.FindByUsername(ctx, rt.Username)
	if err != nil {
		return nil, appErrors.NewInternal("failed to look up user", err)
	}
	if !found || !user.Enabled {
		return nil, appErrors.NewUnauthorized("Invalid or expired refresh token")
	}

	accessToken, err := s.jwt.GenerateToken(user.Username, []string{user.Role})
	if err != nil {
		return nil, appErrors.NewInternal("failed to mint access token", err)
	}

	usedAt := s.now()
	rt.LastUsedAt = &usedAt
	if err := s.tokens.Update(ctx, rt); err != nil {
		s.logger.Warn("failed to record refresh token use", zap.Error(err))
	}

	// The refresh token itself is retained, not rotated.
	return &RefreshResult{AccessToken: accessToken, RefreshToken: rt.Token}, nil
}

// Logout revokes a refresh token. Idempotent: revoking an already-revoked or
// unknown token succeeds.
func (s *Service) Logout(ctx context.Context, token string) error {
	rt, found, err := s.tokens.FindByToken(ctx, token)
	if err != nil {
		return appErrors.NewInternal("failed to look up refresh token", err)
	}
	if !found || rt.Revoked {
		return nil
	}
	rt.Revoked = true
	if err := s.tokens.Update(ctx, rt); err != nil {
		return appErrors.NewInternal("failed to revoke refresh token", err)
	}
	s.logger.Info("refresh token revoked", zap.String("username", rt.Username))
	return nil
}

// CleanupExpired bulk-deletes revoked and expired rows. Run periodically.
func (s *Service) CleanupExpired(ctx context.Context) {
	deleted, err := s.tokens.DeleteExpiredAndRevoked(ctx)
	if err != nil {
		s.logger.Error("refresh token cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("expired refresh tokens removed", zap.Int64("deleted", deleted))
	}
}

// StartCleanupLoop runs CleanupExpired on a fixed interval until ctx ends.
func (s *Service) StartCleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CleanupExpired(ctx)
		}
	}
}
