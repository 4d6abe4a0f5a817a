package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a Telegram account known to the shop.
type User struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	TelegramID    int64     `gorm:"column:telegram_id;not null;uniqueIndex"`
	Username      *string   `gorm:"column:username"`
	FirstName     string    `gorm:"column:first_name;not null;default:''"`
	LastName      *string   `gorm:"column:last_name"`
	LanguageCode  *string   `gorm:"column:language_code"`
	IsPremium     bool      `gorm:"column:is_premium;not null;default:false"`
	PhotoURL      *string   `gorm:"column:photo_url"`
	GiftsReceived int       `gorm:"column:gifts_received;not null;default:0"`
	Rank          int       `gorm:"column:rank;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return nil
}

// DisplayName prefers the @username and falls back to the first name.
func (u User) DisplayName() string {
	if u.Username != nil && *u.Username != "" {
		return "@" + *u.Username
	}
	return u.FirstName
}
