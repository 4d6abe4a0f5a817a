package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
)

// Activity is an append-only audit row for purchases and receipts.
type Activity struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Type              enums.ActivityType  `gorm:"column:type;type:text;not null"`
	ActorID           uuid.UUID           `gorm:"column:actor_id;type:uuid;not null;index"`
	TargetID          *uuid.UUID          `gorm:"column:target_id;type:uuid;index"`
	GiftID            uuid.UUID           `gorm:"column:gift_id;type:uuid;not null;index"`
	PurchasedGiftID   uuid.UUID           `gorm:"column:purchased_gift_id;type:uuid;not null"`
	InvoiceExternalID *string             `gorm:"column:invoice_external_id"`
	Price             decimal.NullDecimal `gorm:"column:price;type:numeric(20,8)"`
	Asset             *enums.Asset        `gorm:"column:asset;type:text"`
	CreatedAt         time.Time           `gorm:"column:created_at;not null"`
}

func (a *Activity) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}
