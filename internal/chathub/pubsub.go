package chathub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Relay scopes.
const (
	ScopeRoom   = "room"
	ScopeUser   = "user"
	ScopeGlobal = "global"
)

// RelayEvent is an encoded frame broadcast on one instance and replayed on
// the others.
type RelayEvent struct {
	Origin string          `json:"origin"`
	Scope  string          `json:"scope"`
	Target uint            `json:"target,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisRelay carries broadcasts between instances over Redis Pub/Sub.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
}

// NewRedisRelay creates a relay with a fresh origin id, so an instance can
// recognise and drop its own events.
func NewRedisRelay(client *redis.Client, channel string) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
	}
}

func (r *RedisRelay) Origin() string { return r.origin }

// Publish sends an event to every subscribed instance.
func (r *RedisRelay) Publish(ctx context.Context, ev RelayEvent) error {
	ev.Origin = r.origin
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode relay event: %w", err)
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Listen delivers events published by other instances to handle until ctx is
// done.
func (r *RedisRelay) Listen(ctx context.Context, handle func(RelayEvent)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	log.Printf("INFO: Relay: listening on %s as %s", r.channel, r.origin)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev RelayEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("WARNING: Relay: dropping malformed event: %v", err)
				continue
			}
			if ev.Origin == r.origin {
				continue
			}
			handle(ev)
		}
	}
}
