package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
)

// PurchasedGift is one owned unit of a Gift. BuyerID never changes; OwnerID
// only moves through a transfer claim.
type PurchasedGift struct {
	ID        uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	GiftID    uuid.UUID                 `gorm:"column:gift_id;type:uuid;not null;index"`
	OwnerID   uuid.UUID                 `gorm:"column:owner_id;type:uuid;not null;index"`
	BuyerID   uuid.UUID                 `gorm:"column:buyer_id;type:uuid;not null"`
	Status    enums.PurchasedGiftStatus `gorm:"column:status;type:text;not null"`
	BoughtAt  time.Time                 `gorm:"column:bought_at;not null"`
	UpdatedAt time.Time                 `gorm:"column:updated_at;autoUpdateTime"`

	Gift *Gift `gorm:"foreignKey:GiftID;references:ID"`
}

func (p *PurchasedGift) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
