package models

import (
	"fmt"
	"time"
)

const (
	RoomTypePrivate = "private"
	RoomTypeGroup   = "group"
)

// Room is a chat channel. A private room has exactly two members and a
// PairKey built from them; the unique index on PairKey keeps one private
// room per unordered pair of users.
type Room struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Type      string    `gorm:"type:varchar(16);not null;index" json:"type"`
	Name      *string   `json:"name"`
	PairKey   *string   `gorm:"uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomMember is one row of the room membership table.
type RoomMember struct {
	RoomID   uint      `gorm:"primaryKey;autoIncrement:false"`
	UserID   uint      `gorm:"primaryKey;autoIncrement:false;index"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

// PrivatePairKey returns the same key for (a, b) and (b, a).
func PrivatePairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// RoomWithMembers is the read model of the room-members endpoint.
type RoomWithMembers struct {
	ID      uint    `json:"id"`
	Type    string  `json:"type"`
	Name    *string `json:"name"`
	Members []User  `json:"members"`
}
