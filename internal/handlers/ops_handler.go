package handlers

import (
	"context"
	"net/http"

	"cardvault-backend/internal/queue"
	"cardvault-backend/internal/service/card"
	"cardvault-backend/pkg/api"
	appErrors "cardvault-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Reloader triggers a background catalog reload.
type Reloader interface {
	AsyncReload(ctx context.Context) bool
}

// OpsHandler serves the admin cache, queue and batch endpoints mounted under
// /api/cards.
type OpsHandler struct {
	catalog  *card.Service
	batch    *card.BatchRunner
	queue    *queue.MessageQueue
	reloader Reloader
	logger   *zap.Logger
}

func NewOpsHandler(catalog *card.Service, batch *card.BatchRunner, q *queue.MessageQueue,
	reloader Reloader, logger *zap.Logger) *OpsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpsHandler{catalog: catalog, batch: batch, queue: q, reloader: reloader, logger: logger}
}

func (h *OpsHandler) Routes(r chi.Router) {
	r.Use(requireAdmin)

	r.Post("/cache/clear", h.ClearCache)
	r.Get("/cache/stats", h.CacheStats)

	r.Post("/batch/warmup-cache", h.WarmupCache)
	r.Post("/batch/statistics", h.GenerateStatistics)
	r.Post("/run-batch-job", h.RunBatchJob)
	r.Post("/async-reload", h.AsyncReload)

	r.Post("/publish-event", h.PublishEvent)
	r.Post("/notification/send", h.SendNotification)

	r.Post("/queue/{queue}/send", h.QueueSend)
	r.Post("/queue/{queue}/peek", h.QueuePeek)
	r.Post("/queue/{queue}/size", h.QueueSize)
	r.Post("/queue/{queue}/clear", h.QueueClear)
}

func (h *OpsHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.EvictAll(r.Context()); err != nil {
		respondError(w, h.logger, appErrors.NewInternal("failed to clear cache", err))
		return
	}
	api.Success(w, http.StatusOK, "Cache cleared", nil)
}

func (h *OpsHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, "Cache statistics", h.catalog.CacheStats(r.Context()))
}

func (h *OpsHandler) WarmupCache(w http.ResponseWriter, r *http.Request) {
	h.submitBatch(w, h.batch.SubmitWarmup(), "Cache warm-up scheduled")
}

func (h *OpsHandler) GenerateStatistics(w http.ResponseWriter, r *http.Request) {
	h.submitBatch(w, h.batch.SubmitStatistics(), "Statistics generation scheduled")
}

func (h *OpsHandler) RunBatchJob(w http.ResponseWriter, r *http.Request) {
	h.submitBatch(w, h.batch.SubmitDemoJob(), "Batch job scheduled")
}

func (h *OpsHandler) submitBatch(w http.ResponseWriter, err error, message string) {
	if err != nil {
		api.Error(w, http.StatusConflict, "Batch worker is busy. Please try again later.")
		return
	}
	api.Success(w, http.StatusAccepted, message, nil)
}

func (h *OpsHandler) AsyncReload(w http.ResponseWriter, r *http.Request) {
	// Detached from the request context: the reload outlives the response.
	if !h.reloader.AsyncReload(context.WithoutCancel(r.Context())) {
		api.Error(w, http.StatusConflict, "A reload is already running")
		return
	}
	api.Success(w, http.StatusAccepted, "Catalog reload started", nil)
}

type publishEventRequest struct {
	Type    string                 `json:"type" validate:"required"`
	Payload map[string]interface{} `json:"payload"`
}

// PublishEvent enqueues an arbitrary typed envelope onto card-operations.
func (h *OpsHandler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	var req publishEventRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.queue.Enqueue(r.Context(), queue.QueueCardOperations, queue.NewMessage(req.Type, req.Payload))
	api.Success(w, http.StatusOK, "Event published", nil)
}

type notificationRequest struct {
	Type    string `json:"type" validate:"required,oneof=EMAIL SYSTEM"`
	Content string `json:"content" validate:"required"`
}

func (h *OpsHandler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.queue.Enqueue(r.Context(), queue.QueueNotifications, queue.NewMessage(req.Type, map[string]interface{}{
		"content": req.Content,
	}))
	api.Success(w, http.StatusOK, "Notification enqueued", nil)
}

func (h *OpsHandler) QueueSend(w http.ResponseWriter, r *http.Request) {
	var req publishEventRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.queue.Enqueue(r.Context(), chi.URLParam(r, "queue"), queue.NewMessage(req.Type, req.Payload))
	api.Success(w, http.StatusOK, "Message enqueued", nil)
}

func (h *OpsHandler) QueuePeek(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.queue.Peek(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		respondError(w, h.logger, appErrors.NewInternal("failed to peek queue", err))
		return
	}
	api.Success(w, http.StatusOK, "Queue contents", msgs)
}

func (h *OpsHandler) QueueSize(w http.ResponseWriter, r *http.Request) {
	size, err := h.queue.Size(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		respondError(w, h.logger, appErrors.NewInternal("failed to read queue size", err))
		return
	}
	api.Success(w, http.StatusOK, "Queue size", map[string]int64{"size": size})
}

func (h *OpsHandler) QueueClear(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Clear(r.Context(), chi.URLParam(r, "queue")); err != nil {
		respondError(w, h.logger, appErrors.NewInternal("failed to clear queue", err))
		return
	}
	api.Success(w, http.StatusOK, "Queue cleared", nil)
}
