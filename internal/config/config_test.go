package config_test

import (
	"testing"
	"time"

	"chatline/backend/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("TOKEN_TTL_HOURS", "")
	t.Setenv("RELAY_ENABLED", "")

	cfg := config.Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, config.DefaultPresencePersistAttempts, cfg.PresencePersistAttempts)
	assert.False(t, cfg.RelayEnabled)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("TOKEN_TTL_HOURS", "24")
	t.Setenv("PERSIST_TIMEOUT_MS", "1500")
	t.Setenv("PRESENCE_PERSIST_ATTEMPTS", "5")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("RELAY_ENABLED", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com/, http://localhost:3000")

	cfg := config.Load()

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 1500*time.Millisecond, cfg.PersistTimeout)
	assert.Equal(t, 5, cfg.PresencePersistAttempts)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.True(t, cfg.RelayEnabled)
	assert.Equal(t, []string{"https://chat.example.com", "http://localhost:3000"}, cfg.AllowedOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SEND_BUFFER_SIZE", "-4")
	t.Setenv("BCRYPT_COST", "abc")
	t.Setenv("PERSIST_TIMEOUT_MS", "0")

	cfg := config.Load()

	assert.Equal(t, config.DefaultSendBufferSize, cfg.SendBufferSize)
	assert.Equal(t, config.DefaultBcryptCost, cfg.BcryptCost)
	assert.Equal(t, config.DefaultPersistTimeout, cfg.PersistTimeout)
}

func TestAllowsOrigin(t *testing.T) {
	cfg := config.Default()
	cfg.AllowedOrigins = []string{"https://chat.example.com"}

	assert.True(t, cfg.AllowsOrigin(""))
	assert.True(t, cfg.AllowsOrigin("https://CHAT.example.com"))
	assert.False(t, cfg.AllowsOrigin("https://evil.example.com"))

	cfg.AllowedOrigins = []string{"*"}
	assert.True(t, cfg.AllowsOrigin("https://anything.example.com"))
}
