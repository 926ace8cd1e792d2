package chathub_test

import (
	"testing"

	"chatline/backend/internal/chathub"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisRelay_OriginIsPerInstance(t *testing.T) {
	// The client connects lazily, so no Redis server is needed here.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	a := chathub.NewRedisRelay(client, "chat-events")
	b := chathub.NewRedisRelay(client, "chat-events")

	assert.NotEmpty(t, a.Origin())
	assert.NotEqual(t, a.Origin(), b.Origin())
}
