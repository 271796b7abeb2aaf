package observability

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// CardCounter reports the catalog size for the health probe.
type CardCounter interface {
	Count(ctx context.Context) (int64, error)
}

// HealthHandler reports UP when the catalog holds at least minHealthyCards
// rows, DEGRADED below the threshold and DOWN when the store is unreachable.
type HealthHandler struct {
	cards           CardCounter
	minHealthyCards int64
	logger          *zap.Logger
}

func NewHealthHandler(cards CardCounter, minHealthyCards int64, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{cards: cards, minHealthyCards: minHealthyCards, logger: logger}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	code := http.StatusOK
	detail := map[string]interface{}{}

	count, err := h.cards.Count(r.Context())
	switch {
	case err != nil:
		h.logger.Error("health check failed", zap.Error(err))
		status = "DOWN"
		code = http.StatusServiceUnavailable
		detail["error"] = "card store unreachable"
	case count < h.minHealthyCards:
		status = "DEGRADED"
		detail["cardCount"] = count
		detail["minHealthyCards"] = h.minHealthyCards
	default:
		detail["cardCount"] = count
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  status,
		"details": detail,
	})
}
