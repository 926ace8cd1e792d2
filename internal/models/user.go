package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is a registered account.
// PasswordHash never leaves the server; it is excluded from JSON.
type User struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	FullName  string     `gorm:"not null" json:"full_name"`
	Nickname  string     `json:"nickname"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Email     string     `gorm:"uniqueIndex;not null" json:"email"`
	Hometown  string     `json:"hometown"`
	Avatar    string     `gorm:"type:text" json:"avatar,omitempty"`

	PasswordHash string `gorm:"not null" json:"-"`
	IsOnline     bool   `gorm:"not null;default:false" json:"isOnline"`

	// TelegramChatID links the account to a Telegram chat for offline notifications.
	TelegramChatID *int64 `gorm:"uniqueIndex" json:"-"`
	Language       string `gorm:"default:en" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

// BeforeCreate normalizes the email so the unique index is case-insensitive
// in practice and fills the default language.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	u.Email = NormalizeEmail(u.Email)
	if u.Language == "" {
		u.Language = "en"
	}
	return
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
