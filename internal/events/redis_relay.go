package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay forwards domain events to a Redis pub/sub channel so operators
// and out-of-process consumers can observe the ticket lifecycle.
type RedisRelay struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisRelay constructs the relay.
func NewRedisRelay(client *redis.Client, channel string, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, logger: logger}
}

// Attach subscribes the relay to every event type on the dispatcher.
func (r *RedisRelay) Attach(dispatcher Dispatcher) {
	if r == nil || r.client == nil {
		return
	}
	for _, eventType := range []EventType{EventTicketCreated, EventTicketSubmitted, EventTicketClosed, EventMessageAdded} {
		dispatcher.Subscribe(eventType, r.handle)
	}
}

func (r *RedisRelay) handle(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Warn("event marshal failed", zap.String("type", string(event.Type)), zap.Error(err))
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("event publish failed", zap.String("type", string(event.Type)), zap.Error(err))
		return err
	}
	return nil
}
