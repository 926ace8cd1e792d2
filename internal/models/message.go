package models

import "time"

// Message is an immutable chat message.
// SenderName and SenderAvatar are read-only columns filled by a join with
// users; they are not part of the messages table.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    uint      `gorm:"not null;index:idx_room_created,priority:1" json:"room_id"`
	SenderID  uint      `gorm:"not null;index" json:"sender_id"`
	Body      string    `gorm:"column:message;type:text;not null" json:"message"`
	CreatedAt time.Time `gorm:"index:idx_room_created,priority:2" json:"created_at"`

	SenderName   string `gorm:"->;-:migration" json:"sender_name,omitempty"`
	SenderAvatar string `gorm:"->;-:migration" json:"sender_avatar,omitempty"`
}
