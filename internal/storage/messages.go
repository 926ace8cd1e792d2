package storage

import (
	"context"
	"errors"
	"log"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/models"

	"gorm.io/gorm"
)

// messageWithSender selects a message together with the sender's name and avatar.
func (s *Service) messageWithSender(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx).
		Model(&models.Message{}).
		Select("messages.*, users.full_name AS sender_name, users.avatar AS sender_avatar").
		Joins("JOIN users ON users.id = messages.sender_id")
}

// InsertMessage stores a message in an existing room and returns it with the
// generated id, timestamp and sender details.
func (s *Service) InsertMessage(ctx context.Context, roomID, senderID uint, body string) (*models.Message, error) {
	msg := models.Message{RoomID: roomID, SenderID: senderID, Body: body}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rooms int64
		if err := tx.Model(&models.Room{}).Where("id = ?", roomID).Count(&rooms).Error; err != nil {
			return err
		}
		if rooms == 0 {
			return apperr.NotFound("room %d", roomID)
		}
		return tx.Create(&msg).Error
	})
	if err != nil {
		if !apperr.Classified(err) {
			log.Printf("ERROR: Failed to save message for room %d: %v", roomID, err)
		}
		return nil, apperr.Persistence(err, "insert message")
	}

	stored, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		// The row is durable; fall back to what we inserted.
		log.Printf("WARNING: Failed to reload message %d: %v", msg.ID, err)
		return &msg, nil
	}
	return stored, nil
}

func (s *Service) GetMessage(ctx context.Context, messageID uint) (*models.Message, error) {
	var msg models.Message
	err := s.messageWithSender(ctx).Where("messages.id = ?", messageID).Take(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("message %d", messageID)
	}
	if err != nil {
		return nil, apperr.Persistence(err, "get message")
	}
	return &msg, nil
}

// ListMessages returns the room history ordered by creation time ascending.
func (s *Service) ListMessages(ctx context.Context, roomID uint) ([]models.Message, error) {
	var history []models.Message
	err := s.messageWithSender(ctx).
		Where("messages.room_id = ?", roomID).
		Order("messages.created_at asc").
		Order("messages.id asc").
		Find(&history).Error
	if err != nil {
		log.Printf("ERROR: Failed to get chat history for room %d: %v", roomID, err)
		return nil, apperr.Persistence(err, "list messages")
	}
	return history, nil
}

// GetLastMessage returns the newest message of a room, or nil for an empty room.
func (s *Service) GetLastMessage(ctx context.Context, roomID uint) (*models.Message, error) {
	var msg models.Message
	err := s.messageWithSender(ctx).
		Where("messages.room_id = ?", roomID).
		Order("messages.created_at desc").
		Order("messages.id desc").
		Take(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence(err, "get last message")
	}
	return &msg, nil
}
