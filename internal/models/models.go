package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the durable account record. Username and email are stored
// lowercased so the unique indexes double as case-insensitive checks.
// PasswordHash and RefreshToken never leave the lifecycle: both are
// excluded from JSON, and RefreshToken holds the single active session
// (empty means no session).
type User struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey"  json:"id"`
	Username     string       `gorm:"uniqueIndex;not null"  json:"username"`
	Email        string       `gorm:"uniqueIndex;not null"  json:"email"`
	FullName     string       `gorm:"not null"              json:"fullname"`
	PasswordHash string       `gorm:"not null"              json:"-"`
	AvatarURL    string       `json:"avatar"`
	CoverURL     string       `json:"coverImage"`
	RefreshToken string       `json:"-"`
	WatchHistory []WatchEntry `gorm:"foreignKey:UserID"     json:"-"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// WatchEntry is an opaque reference to previously watched content.
type WatchEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	VideoID   string    `gorm:"not null"                 json:"video_id"`
	WatchedAt time.Time `json:"watched_at"`
}
