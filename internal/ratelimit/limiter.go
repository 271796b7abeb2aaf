// Package ratelimit implements per-(principal,endpoint) token buckets backed
// by the coordination store, so limits hold across replicas and restarts.
package ratelimit

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"cardvault-backend/internal/coordination"

	"go.uber.org/zap"
)

const bucketPrefix = "rate_limit:"

// Policy is one row of the rate-limit table: a bucket of Capacity tokens
// refilled greedily over Window.
type Policy struct {
	Capacity int
	Window   time.Duration
}

// Default endpoint policies, applied in order of most-specific match.
var (
	loginPolicy     = Policy{Capacity: 5, Window: time.Minute}
	searchPolicy    = Policy{Capacity: 20, Window: time.Minute}
	cardWritePolicy = Policy{Capacity: 30, Window: time.Minute}
	defaultPolicy   = Policy{Capacity: 100, Window: time.Minute}
)

var resourceIDPattern = regexp.MustCompile(`^(/api/(?:cards|decks|archetypes))/[^/]+$`)

// bucketState is the serialized token-bucket stored per key.
type bucketState struct {
	Tokens     float64 `json:"tokens"`
	LastRefill int64   `json:"lastRefill"` // unix nanos
}

// Limiter consumes tokens from distributed buckets.
type Limiter struct {
	store  coordination.Store
	logger *zap.Logger
	now    func() time.Time
}

func New(store coordination.Store, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{store: store, logger: logger, now: time.Now}
}

// PolicyFor selects the policy for a request, or bypass=true for endpoints
// that are never limited.
func PolicyFor(method, path string, hasQuery bool) (policy Policy, bypass bool) {
	switch {
	case method == "POST" && hasPrefix(path, "/api/auth/login"):
		return loginPolicy, false
	case method == "GET" && hasPrefix(path, "/api/cards") && hasQuery:
		return searchPolicy, false
	case hasPrefix(path, "/api/cards") && isWrite(method):
		return cardWritePolicy, false
	case hasPrefix(path, "/actuator/"):
		return Policy{}, true
	default:
		return defaultPolicy, false
	}
}

// NormalizePath groups per-resource endpoints so /api/cards/Dark%20Magician
// and /api/cards/Blue-Eyes share one bucket.
func NormalizePath(path string) string {
	if m := resourceIDPattern.FindStringSubmatch(path); m != nil {
		return m[1] + "/*"
	}
	return path
}

// Allow consumes one token from the bucket identified by (id, path). A store
// outage degrades to allow.
func (l *Limiter) Allow(ctx context.Context, id, method, path string, hasQuery bool) bool {
	policy, bypass := PolicyFor(method, path, hasQuery)
	if bypass {
		return true
	}

	key := bucketPrefix + id + ":" + NormalizePath(path)
	allowed := false

	// Keep the bucket around a little past a full refill so idle buckets
	// expire from the store.
	err := l.store.Update(ctx, key, policy.Window*2, func(old []byte, exists bool) ([]byte, error) {
		now := l.now()
		state := bucketState{Tokens: float64(policy.Capacity), LastRefill: now.UnixNano()}
		if exists {
			if err := json.Unmarshal(old, &state); err != nil {
				// Corrupt bucket: reset to full.
				state = bucketState{Tokens: float64(policy.Capacity), LastRefill: now.UnixNano()}
			} else {
				elapsed := time.Duration(now.UnixNano() - state.LastRefill)
				refill := elapsed.Seconds() * float64(policy.Capacity) / policy.Window.Seconds()
				state.Tokens += refill
				if state.Tokens > float64(policy.Capacity) {
					state.Tokens = float64(policy.Capacity)
				}
				state.LastRefill = now.UnixNano()
			}
		}

		if state.Tokens >= 1 {
			state.Tokens--
			allowed = true
		} else {
			allowed = false
		}
		return json.Marshal(state)
	})
	if err != nil {
		l.logger.Error("rate limit check failed, allowing request",
			zap.String("key", key), zap.Error(err))
		return true
	}
	return allowed
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func isWrite(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}
