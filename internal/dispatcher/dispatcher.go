// Package dispatcher drains the work queues on a fixed cycle and routes
// messages to typed handlers. One dispatcher runs per replica; replicas
// contend on the same queues, which is intentional fan-out.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"cardvault-backend/internal/queue"

	"go.uber.org/zap"
)

const (
	defaultInterval   = 5 * time.Second
	maxMessagesPerRun = 10
)

// CacheMaintainer is the slice of the catalog service the dispatcher needs
// for CLEAR_ALL messages.
type CacheMaintainer interface {
	EvictAll(ctx context.Context) error
}

// NotificationSink receives EMAIL and SYSTEM notifications.
type NotificationSink interface {
	Notify(ctx context.Context, kind, content string) error
}

// LogSink logs notifications instead of delivering them.
type LogSink struct {
	Logger *zap.Logger
}

func (s *LogSink) Notify(ctx context.Context, kind, content string) error {
	s.Logger.Info("notification", zap.String("kind", kind), zap.String("content", content))
	return nil
}

// Dispatcher periodically drains the three known queues with bounded batches.
type Dispatcher struct {
	queue    *queue.MessageQueue
	cache    CacheMaintainer
	sink     NotificationSink
	logger   *zap.Logger
	interval time.Duration
}

func New(q *queue.MessageQueue, cache CacheMaintainer, sink NotificationSink, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = &LogSink{Logger: logger}
	}
	return &Dispatcher{
		queue:    q,
		cache:    cache,
		sink:     sink,
		logger:   logger,
		interval: defaultInterval,
	}
}

// Start runs the dispatch loop until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("background dispatcher started", zap.Duration("interval", d.interval))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("background dispatcher stopped")
			return
		case <-ticker.C:
			d.RunCycle(ctx)
		}
	}
}

// RunCycle drains up to 10 messages from each known queue. A handler failure
// aborts the rest of that queue for this cycle so one bad message cannot
// cascade; the other queues still run.
func (d *Dispatcher) RunCycle(ctx context.Context) {
	for _, name := range []string{queue.QueueCardOperations, queue.QueueCacheOperations, queue.QueueNotifications} {
		d.drainQueue(ctx, name)
	}
}

func (d *Dispatcher) drainQueue(ctx context.Context, queueName string) {
	processed := 0
	for processed < maxMessagesPerRun {
		msg, ok := d.queue.DequeueNonBlocking(ctx, queueName)
		if !ok {
			break
		}

		if err := d.dispatch(ctx, queueName, msg); err != nil {
			d.logger.Error("handler failed, aborting queue for this cycle",
				zap.String("queue", queueName), zap.String("type", msg.Type), zap.Error(err))
			break
		}
		processed++
	}
	if processed > 0 {
		d.logger.Debug("queue drained",
			zap.String("queue", queueName), zap.Int("processed", processed))
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, queueName string, msg queue.Message) error {
	switch queueName {
	case queue.QueueCardOperations:
		return d.handleCardOperation(ctx, msg)
	case queue.QueueCacheOperations:
		return d.handleCacheOperation(ctx, msg)
	case queue.QueueNotifications:
		return d.handleNotification(ctx, msg)
	default:
		d.logger.Warn("unknown queue", zap.String("queue", queueName))
		return nil
	}
}

func (d *Dispatcher) handleCardOperation(ctx context.Context, msg queue.Message) error {
	cardName, _ := msg.Payload["cardName"].(string)
	switch msg.Type {
	case queue.TypeCardCreated, queue.TypeCardUpdated, queue.TypeCardDeleted:
		// Post-mutation hook point; currently advisory.
		d.logger.Info("card operation processed",
			zap.String("type", msg.Type), zap.String("cardName", cardName))
		return nil
	default:
		d.logger.Warn("unknown card operation type, dropping", zap.String("type", msg.Type))
		return nil
	}
}

func (d *Dispatcher) handleCacheOperation(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case queue.TypeClearAll:
		d.logger.Info("clearing catalog cache from queue message")
		if err := d.cache.EvictAll(ctx); err != nil {
			return fmt.Errorf("evict all: %w", err)
		}
		return nil
	default:
		d.logger.Warn("unknown cache operation type, dropping", zap.String("type", msg.Type))
		return nil
	}
}

func (d *Dispatcher) handleNotification(ctx context.Context, msg queue.Message) error {
	content, _ := msg.Payload["content"].(string)
	switch msg.Type {
	case queue.TypeEmail, queue.TypeSystem:
		return d.sink.Notify(ctx, msg.Type, content)
	default:
		d.logger.Warn("unknown notification type, dropping", zap.String("type", msg.Type))
		return nil
	}
}
