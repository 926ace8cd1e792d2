// Package config holds the runtime settings of the chat backend.
// Values come from the environment (a .env file is loaded by the binaries
// through godotenv before Load is called) and fall back to the defaults below.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// Tokens
	DefaultTokenTTL  = 7 * 24 * time.Hour
	DefaultJWTIssuer = "chatline-service"

	// Passwords
	DefaultBcryptCost = 10
	MaxPasswordBytes  = 72

	// Persistence
	DefaultPersistTimeout          = 5 * time.Second
	DefaultPresencePersistAttempts = 3
	DefaultPresenceRetryBackoff    = 200 * time.Millisecond

	// WebSocket
	DefaultSendBufferSize = 256
	DefaultMaxFrameBytes  = 8 << 10
	WriteWait             = 10 * time.Second
	PongWait              = 60 * time.Second
	PingPeriod            = (PongWait * 9) / 10

	// Messages
	DefaultMaxMessageLength = 4000

	// Relay
	DefaultRelayChannel = "chatline:events"

	DefaultShutdownTimeout = 30 * time.Second
)

// Config is the full set of runtime settings.
type Config struct {
	HTTPAddr    string
	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret  string
	JWTIssuer  string
	TokenTTL   time.Duration
	BcryptCost int

	PersistTimeout          time.Duration
	PresencePersistAttempts int
	PresenceRetryBackoff    time.Duration

	SendBufferSize   int
	MaxFrameBytes    int64
	MaxMessageLength int
	AllowedOrigins   []string

	RelayEnabled bool
	RelayChannel string

	TelegramBotToken string
	ShutdownTimeout  time.Duration
}

// Default returns a Config populated with development defaults.
func Default() Config {
	return Config{
		HTTPAddr:                ":8080",
		DatabaseDSN:             "host=localhost user=user password=password dbname=chatlinedb port=5432 sslmode=disable",
		RedisAddr:               "",
		JWTSecret:               "change-me-in-production",
		JWTIssuer:               DefaultJWTIssuer,
		TokenTTL:                DefaultTokenTTL,
		BcryptCost:              DefaultBcryptCost,
		PersistTimeout:          DefaultPersistTimeout,
		PresencePersistAttempts: DefaultPresencePersistAttempts,
		PresenceRetryBackoff:    DefaultPresenceRetryBackoff,
		SendBufferSize:          DefaultSendBufferSize,
		MaxFrameBytes:           DefaultMaxFrameBytes,
		MaxMessageLength:        DefaultMaxMessageLength,
		AllowedOrigins:          []string{"*"},
		RelayChannel:            DefaultRelayChannel,
		ShutdownTimeout:         DefaultShutdownTimeout,
	}
}

// Load reads the environment on top of Default.
func Load() Config {
	cfg := Default()

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = parseInt(os.Getenv("REDIS_DB"), 0, true)

	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	cfg.TokenTTL = time.Duration(parseInt(os.Getenv("TOKEN_TTL_HOURS"), int(DefaultTokenTTL/time.Hour), false)) * time.Hour
	cfg.BcryptCost = parseInt(os.Getenv("BCRYPT_COST"), DefaultBcryptCost, false)

	cfg.PersistTimeout = parseMillis(os.Getenv("PERSIST_TIMEOUT_MS"), DefaultPersistTimeout)
	cfg.PresencePersistAttempts = parseInt(os.Getenv("PRESENCE_PERSIST_ATTEMPTS"), DefaultPresencePersistAttempts, false)
	cfg.PresenceRetryBackoff = parseMillis(os.Getenv("PRESENCE_RETRY_BACKOFF_MS"), DefaultPresenceRetryBackoff)

	cfg.SendBufferSize = parseInt(os.Getenv("SEND_BUFFER_SIZE"), DefaultSendBufferSize, false)
	cfg.MaxFrameBytes = int64(parseInt(os.Getenv("MAX_FRAME_BYTES"), DefaultMaxFrameBytes, false))
	cfg.MaxMessageLength = parseInt(os.Getenv("MAX_MESSAGE_LENGTH"), DefaultMaxMessageLength, false)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = parseList(v)
	}

	cfg.RelayEnabled = parseBool(os.Getenv("RELAY_ENABLED"))
	if v := os.Getenv("RELAY_CHANNEL"); v != "" {
		cfg.RelayChannel = v
	}

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.ShutdownTimeout = time.Duration(parseInt(os.Getenv("SHUTDOWN_TIMEOUT_SECONDS"), int(DefaultShutdownTimeout/time.Second), false)) * time.Second

	return cfg
}

// AllowsOrigin reports whether a browser origin may open a WebSocket.
// An empty origin (non-browser client) is always allowed.
func (c Config) AllowsOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func parseInt(value string, def int, allowZero bool) int {
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 || (n == 0 && !allowZero) {
		return def
	}
	return n
}

func parseMillis(value string, def time.Duration) time.Duration {
	n := parseInt(value, 0, false)
	if n == 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

func parseBool(value string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && b
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.TrimRight(p, "/"))
		}
	}
	return out
}
