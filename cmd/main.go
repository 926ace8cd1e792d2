package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"chatline/backend/internal/api/handler"
	"chatline/backend/internal/auth"
	"chatline/backend/internal/chathub"
	"chatline/backend/internal/chatlist"
	"chatline/backend/internal/config"
	"chatline/backend/internal/localization"
	"chatline/backend/internal/storage"
	"chatline/backend/internal/telegram"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(cfg config.Config) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}
	if err := storage.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Redis is optional: it backs the online-users set and the relay.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Fatalf("Failed to connect Redis: %v", err)
		}
	}

	log.Println("Database connection established, migrations complete.")
	return db, rdb
}

func main() {
	log.Println("Starting Chatline Backend...")

	if err := godotenv.Load(); err != nil {
		log.Println("WARNING: Error loading .env file")
	}
	cfg := config.Load()

	db, rdb := setupDependencies(cfg)
	s := storage.NewStorageService(db, rdb)

	authSvc := auth.NewService(s, auth.NewPasswordHasher(cfg.BcryptCost), auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL))
	chats := chatlist.NewService(s)
	hub := chathub.NewManagerService(s, cfg)

	if cfg.RelayEnabled {
		if rdb == nil {
			log.Fatal("RELAY_ENABLED requires REDIS_ADDR")
		}
		relay := chathub.NewRedisRelay(rdb, cfg.RelayChannel)
		hub.SetRelay(relay)
		log.Printf("INFO: Relaying events over Redis channel %q as instance %s", cfg.RelayChannel, relay.Origin())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TelegramBotToken != "" {
		localizer, err := localization.Default()
		if err != nil {
			log.Fatalf("Failed to load locales: %v", err)
		}
		bot, err := telegram.NewBot(cfg.TelegramBotToken)
		if err != nil {
			log.Fatalf("Failed to start Telegram bot: %v", err)
		}
		notifier := telegram.NewNotifier(bot, s, localizer)
		hub.SetOfflineNotifier(notifier)
		go notifier.Listen(ctx)
		log.Printf("INFO: Telegram offline notifications enabled (languages: %s)", strings.Join(localizer.Languages(), ", "))
	}

	go func() {
		if err := hub.Run(ctx); err != nil {
			log.Printf("ERROR: Hub relay stopped: %v", err)
		}
	}()

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	handler.NewHandler(hub, authSvc, chats, s, cfg).Register(r)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		log.Printf("Listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// server.Shutdown does not touch hijacked WebSocket connections; the hub
	// closes those and persists offline for their users.
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.Shutdown(ctx)
			},
			"chat-hub": func(ctx context.Context) error {
				defer cancel()
				return hub.Shutdown(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}
