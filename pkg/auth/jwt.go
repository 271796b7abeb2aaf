// Package auth provides signed access tokens and the principal attached to
// authenticated requests. Access tokens are stateless RS256 JWTs; refresh
// tokens are opaque and live in the database (see internal/service/token).
package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingToken     = errors.New("missing authentication token")
	ErrInvalidClaims    = errors.New("invalid token claims")
)

// RolePrefix is how roles are stored internally; the external API exposes
// roles without it.
const RolePrefix = "ROLE_"

const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

// Claims represents the JWT claims of an access token.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Principal is the authenticated identity attached to a request context.
type Principal struct {
	Username string
	Roles    []string
}

// IsAdmin reports whether the principal carries the admin role.
func (p *Principal) IsAdmin() bool {
	for _, r := range p.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// ExternalRoles returns the principal's roles without the storage prefix.
func (p *Principal) ExternalRoles() []string {
	return StripRolePrefixes(p.Roles)
}

// StripRolePrefixes converts storage-form roles ("ROLE_USER") to the
// external form ("USER").
func StripRolePrefixes(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, strings.TrimPrefix(r, RolePrefix))
	}
	return out
}

// TokenService mints and validates RS256 access tokens.
type TokenService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	ttl        time.Duration
}

// NewTokenService creates a token service from parsed RSA key material.
// The private key may be nil for verify-only deployments.
func NewTokenService(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, ttl time.Duration) (*TokenService, error) {
	if publicKey == nil {
		if privateKey == nil {
			return nil, errors.New("public key required")
		}
		publicKey = &privateKey.PublicKey
	}
	return &TokenService{privateKey: privateKey, publicKey: publicKey, ttl: ttl}, nil
}

// NewTokenServiceFromPEM parses PEM-encoded keys and builds a token service.
func NewTokenServiceFromPEM(privatePEM, publicPEM []byte, ttl time.Duration) (*TokenService, error) {
	var (
		priv *rsa.PrivateKey
		pub  *rsa.PublicKey
		err  error
	)
	if len(privatePEM) > 0 {
		priv, err = jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
	}
	if len(publicPEM) > 0 {
		pub, err = jwt.ParseRSAPublicKeyFromPEM(publicPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
	}
	return NewTokenService(priv, pub, ttl)
}

// GenerateToken mints a short-lived access token for the given principal.
func (s *TokenService) GenerateToken(username string, roles []string) (string, error) {
	if s.privateKey == nil {
		return "", errors.New("private key not configured")
	}
	now := time.Now()
	claims := &Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(s.privateKey)
}

// ValidateToken validates an access token and returns its claims.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodRS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method)
		}
		return s.publicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidClaims)
	}
	return claims, nil
}

// TTL returns the configured access token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// ContextKey for storing the principal
type contextKey string

const principalContextKey contextKey = "principal"

// PrincipalFromContext extracts the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok && p != nil
}

// WithPrincipal attaches a principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}
