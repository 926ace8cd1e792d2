package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"chatline/backend/internal/chathub"
	"chatline/backend/internal/config"
	"chatline/backend/internal/models"
	"chatline/backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  online <user_id> <true|false>     set a user's stored status
  online-list                       list the Redis online-users set
  members <room_id>                 list the members of a room
  link-telegram <user_id> <chat_id> link a Telegram chat for offline notifications
  group <name> <user_id>...         create a group room`

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
	}
	s := storage.NewStorageService(db, rdb)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	args := os.Args[2:]
	switch os.Args[1] {
	case "online":
		if len(args) != 2 {
			fail("Usage: admin online <user_id> <true|false>")
		}
		userID := parseID(args[0])
		isOnline, err := strconv.ParseBool(args[1])
		if err != nil {
			fail("Invalid status. Please provide true or false.")
		}
		if err := setOnline(ctx, s, cfg, rdb, userID, isOnline); err != nil {
			log.Fatalf("Error updating status: %v", err)
		}
		fmt.Printf("User %d is now marked %s.\n", userID, statusWord(isOnline))

	case "online-list":
		ids, err := s.OnlineUserIDs(ctx)
		if err != nil {
			log.Fatalf("Error reading online users: %v", err)
		}
		fmt.Println(strings.Join(ids, "\n"))

	case "members":
		if len(args) != 1 {
			fail("Usage: admin members <room_id>")
		}
		members, err := s.ListRoomMemberProfiles(ctx, parseID(args[0]))
		if err != nil {
			log.Fatalf("Error listing members: %v", err)
		}
		for _, u := range members {
			fmt.Printf("%d\t%s\t%s\t%s\n", u.ID, u.FullName, u.Email, statusWord(u.IsOnline))
		}

	case "link-telegram":
		if len(args) != 2 {
			fail("Usage: admin link-telegram <user_id> <chat_id>")
		}
		chatID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fail("Invalid chat ID. Please provide an integer.")
		}
		if err := s.LinkTelegramChat(ctx, parseID(args[0]), chatID); err != nil {
			log.Fatalf("Error linking Telegram chat: %v", err)
		}
		fmt.Printf("User %s is linked to Telegram chat %d.\n", args[0], chatID)

	case "group":
		if len(args) < 2 {
			fail("Usage: admin group <name> <user_id>...")
		}
		ids := make([]uint, 0, len(args)-1)
		for _, a := range args[1:] {
			ids = append(ids, parseID(a))
		}
		room, err := s.CreateGroupRoom(ctx, args[0], ids)
		if err != nil {
			log.Fatalf("Error creating group: %v", err)
		}
		fmt.Printf("Group room %d created.\n", room.ID)

	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

// setOnline persists the status and, when the relay is enabled, tells the
// running servers so connected clients see the change.
func setOnline(ctx context.Context, s *storage.Service, cfg config.Config, rdb *redis.Client, userID uint, isOnline bool) error {
	if err := s.SetUserOnline(ctx, userID, isOnline); err != nil {
		return err
	}
	if !cfg.RelayEnabled || rdb == nil {
		return nil
	}

	frame, err := models.EncodeEvent(models.EventUserStatusChange, models.StatusChange{ID: userID, IsOnline: isOnline})
	if err != nil {
		return err
	}
	relay := chathub.NewRedisRelay(rdb, cfg.RelayChannel)
	return relay.Publish(ctx, chathub.RelayEvent{Scope: chathub.ScopeGlobal, Frame: frame})
}

func parseID(value string) uint {
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil || id == 0 {
		fail(fmt.Sprintf("Invalid ID %q. Please provide a positive integer.", value))
	}
	return uint(id)
}

func statusWord(isOnline bool) string {
	if isOnline {
		return "online"
	}
	return "offline"
}

func fail(msg string) {
	fmt.Println(msg)
	os.Exit(1)
}
