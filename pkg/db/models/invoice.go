package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
)

// Invoice records one reservation attempt and the gateway invoice backing it.
type Invoice struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ExternalID    string              `gorm:"column:external_id;not null;uniqueIndex"`
	Hash          string              `gorm:"column:hash;not null;default:''"`
	PayURL        string              `gorm:"column:pay_url;not null;default:''"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	GiftID        uuid.UUID           `gorm:"column:gift_id;type:uuid;not null"`
	Price         decimal.Decimal     `gorm:"column:price;type:numeric(20,8);not null"`
	Asset         enums.Asset         `gorm:"column:asset;type:text;not null"`
	Status        enums.InvoiceStatus `gorm:"column:status;type:text;not null;index:idx_invoices_sweep,priority:1"`
	LastCheckedAt time.Time           `gorm:"column:last_checked_at;not null;index:idx_invoices_sweep,priority:3"`
	ExpiresAt     time.Time           `gorm:"column:expires_at;not null;index:idx_invoices_sweep,priority:2"`
	PaidAt        *time.Time          `gorm:"column:paid_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
