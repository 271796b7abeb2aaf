// Package queue provides named FIFO work queues over the coordination
// store's list primitives. Envelopes are msgpack-encoded so maps and integer
// types survive the producer/consumer round trip.
//
// Delivery is at-most-once in practice: the pop is destructive and there is
// no redelivery on handler failure. All current handlers are idempotent or
// advisory, so this tradeoff is documented rather than fixed.
package queue

import (
	"context"
	"time"

	"cardvault-backend/internal/coordination"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const (
	queuePrefix            = "cardvault:queue:"
	defaultBlockingTimeout = 10 * time.Second
)

// Well-known queue names drained by the background dispatcher.
const (
	QueueCardOperations  = "card-operations"
	QueueCacheOperations = "cache-operations"
	QueueNotifications   = "notifications"
)

// Message types routed by the dispatcher.
const (
	TypeCardCreated = "CARD_CREATED"
	TypeCardUpdated = "CARD_UPDATED"
	TypeCardDeleted = "CARD_DELETED"
	TypeClearAll    = "CLEAR_ALL"
	TypeEmail       = "EMAIL"
	TypeSystem      = "SYSTEM"
)

// Message is the typed envelope carried on every queue.
type Message struct {
	Type      string                 `msgpack:"type" json:"type"`
	Payload   map[string]interface{} `msgpack:"payload" json:"payload"`
	Timestamp int64                  `msgpack:"timestamp" json:"timestamp"` // unix millis
}

// NewMessage stamps an envelope with the current time.
func NewMessage(msgType string, payload map[string]interface{}) Message {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return Message{Type: msgType, Payload: payload, Timestamp: time.Now().UnixMilli()}
}

// MessageQueue exposes FIFO push/pop over named queues.
type MessageQueue struct {
	store  coordination.Store
	logger *zap.Logger
}

func New(store coordination.Store, logger *zap.Logger) *MessageQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageQueue{store: store, logger: logger}
}

func queueKey(name string) string { return queuePrefix + name }

// Enqueue pushes a message at the head of the queue. Store failures are
// logged and dropped: side effects are best-effort by design.
func (q *MessageQueue) Enqueue(ctx context.Context, queueName string, msg Message) {
	data, err := msgpack.Marshal(msg)
	if err != nil {
		q.logger.Error("failed to encode queue message",
			zap.String("queue", queueName), zap.Error(err))
		return
	}
	if err := q.store.ListPushLeft(ctx, queueKey(queueName), data); err != nil {
		q.logger.Error("failed to enqueue message",
			zap.String("queue", queueName), zap.Error(err))
		return
	}
	q.logger.Info("message enqueued",
		zap.String("queue", queueName), zap.String("type", msg.Type))
}

// Dequeue waits up to 10 seconds for a message. Use from dedicated workers
// that should wait for work instead of spinning.
func (q *MessageQueue) Dequeue(ctx context.Context, queueName string) (Message, bool) {
	data, found, err := q.store.ListPopRightBlocking(ctx, queueKey(queueName), defaultBlockingTimeout)
	if err != nil {
		q.logger.Error("failed to dequeue message",
			zap.String("queue", queueName), zap.Error(err))
		return Message{}, false
	}
	if !found {
		return Message{}, false
	}
	return q.decode(queueName, data)
}

// DequeueNonBlocking returns immediately; used by the dispatcher's 5 second
// polling cycle.
func (q *MessageQueue) DequeueNonBlocking(ctx context.Context, queueName string) (Message, bool) {
	data, found, err := q.store.ListPopRight(ctx, queueKey(queueName))
	if err != nil {
		q.logger.Error("failed to dequeue message",
			zap.String("queue", queueName), zap.Error(err))
		return Message{}, false
	}
	if !found {
		return Message{}, false
	}
	return q.decode(queueName, data)
}

func (q *MessageQueue) decode(queueName string, data []byte) (Message, bool) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		q.logger.Error("failed to decode queue message, dropping",
			zap.String("queue", queueName), zap.Error(err))
		return Message{}, false
	}
	return msg, true
}

// Peek returns a read-only snapshot of the queue, head first.
func (q *MessageQueue) Peek(ctx context.Context, queueName string) ([]Message, error) {
	raw, err := q.store.ListRange(ctx, queueKey(queueName))
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(raw))
	for _, data := range raw {
		var msg Message
		if err := msgpack.Unmarshal(data, &msg); err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Size returns the number of pending messages.
func (q *MessageQueue) Size(ctx context.Context, queueName string) (int64, error) {
	return q.store.ListLen(ctx, queueKey(queueName))
}

// Clear drops every pending message from the queue.
func (q *MessageQueue) Clear(ctx context.Context, queueName string) error {
	_, err := q.store.Delete(ctx, queueKey(queueName))
	if err == nil {
		q.logger.Info("queue cleared", zap.String("queue", queueName))
	}
	return err
}
