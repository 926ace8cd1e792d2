package storage

import (
	"context"
	"errors"
	"log"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// onlineUsersKey is the Redis set mirroring users.is_online.
const onlineUsersKey = "online_users"

// Storage is the persistence gateway used by the chat hub, the auth service
// and the HTTP handlers. Lookups that may legitimately miss (FindUserByEmail,
// FindPrivateRoom, GetLastMessage) return nil without an error; Get* methods
// return an apperr.ErrNotFound error instead.
type Storage interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	SetUserOnline(ctx context.Context, userID uint, isOnline bool) error
	GetUser(ctx context.Context, userID uint) (*models.User, error)
	ListUsersExcept(ctx context.Context, userID uint) ([]models.User, error)
	LinkTelegramChat(ctx context.Context, userID uint, chatID int64) error

	FindPrivateRoom(ctx context.Context, userA, userB uint) (*models.Room, error)
	CreatePrivateRoom(ctx context.Context, userA, userB uint) (*models.Room, error)
	CreateGroupRoom(ctx context.Context, name string, memberIDs []uint) (*models.Room, error)
	GetRoom(ctx context.Context, roomID uint) (*models.Room, error)
	ListRoomMembers(ctx context.Context, roomID uint) ([]uint, error)
	ListRoomMemberProfiles(ctx context.Context, roomID uint) ([]models.User, error)

	InsertMessage(ctx context.Context, roomID, senderID uint, body string) (*models.Message, error)
	GetMessage(ctx context.Context, messageID uint) (*models.Message, error)
	ListMessages(ctx context.Context, roomID uint) ([]models.Message, error)
	GetLastMessage(ctx context.Context, roomID uint) (*models.Message, error)

	OnlineUserIDs(ctx context.Context) ([]string, error)
}

// Service implements Storage on PostgreSQL (GORM) with an optional Redis
// client. Redis is nil for the admin CLI and in tests.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// AutoMigrate creates or updates every table the gateway uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.RoomMember{},
		&models.Message{},
	)
}

// FindUserByEmail returns nil when no user has this email.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence(err, "find user by email")
	}
	return &user, nil
}

// CreateUser inserts a user; user.ID is filled on success.
func (s *Service) CreateUser(ctx context.Context, user *models.User) error {
	err := s.DB.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Duplicate("email %s is already registered", user.Email)
	}
	if err != nil {
		log.Printf("ERROR: Failed to create user %s: %v", user.Email, err)
		return apperr.Persistence(err, "create user")
	}
	return nil
}

// SetUserOnline persists the online flag and mirrors it into the Redis set.
// The Redis mirror is best effort; the database row is authoritative.
func (s *Service) SetUserOnline(ctx context.Context, userID uint, isOnline bool) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("is_online", isOnline)
	if res.Error != nil {
		return apperr.Persistence(res.Error, "set user online")
	}
	if res.RowsAffected == 0 {
		// Some drivers count only changed rows; confirm the user exists before calling it a miss.
		var count int64
		if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return apperr.Persistence(err, "set user online")
		}
		if count == 0 {
			return apperr.NotFound("user %d", userID)
		}
	}

	if s.Redis != nil {
		member := uintKey(userID)
		var err error
		if isOnline {
			err = s.Redis.SAdd(ctx, onlineUsersKey, member).Err()
		} else {
			err = s.Redis.SRem(ctx, onlineUsersKey, member).Err()
		}
		if err != nil {
			log.Printf("WARNING: Failed to mirror online=%t for user %d to Redis: %v", isOnline, userID, err)
		}
	}
	return nil
}

// OnlineUserIDs returns the Redis mirror of online users.
func (s *Service) OnlineUserIDs(ctx context.Context) ([]string, error) {
	if s.Redis == nil {
		return nil, errors.New("redis is not configured")
	}
	ids, err := s.Redis.SMembers(ctx, onlineUsersKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return ids, err
}

func (s *Service) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user %d", userID)
	}
	if err != nil {
		return nil, apperr.Persistence(err, "get user")
	}
	return &user, nil
}

// ListUsersExcept returns every user but userID, ordered by id.
func (s *Service) ListUsersExcept(ctx context.Context, userID uint) ([]models.User, error) {
	var users []models.User
	if err := s.DB.WithContext(ctx).Where("id <> ?", userID).Order("id asc").Find(&users).Error; err != nil {
		return nil, apperr.Persistence(err, "list users")
	}
	return users, nil
}

// LinkTelegramChat stores the Telegram chat used for offline notifications.
func (s *Service) LinkTelegramChat(ctx context.Context, userID uint, chatID int64) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("telegram_chat_id", chatID)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return apperr.Duplicate("telegram chat %d is linked to another user", chatID)
	}
	if res.Error != nil {
		return apperr.Persistence(res.Error, "link telegram chat")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user %d", userID)
	}
	return nil
}
