package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
)

// GiftTransfer is the single handoff record of a purchased gift.
type GiftTransfer struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	PurchasedGiftID uuid.UUID            `gorm:"column:purchased_gift_id;type:uuid;not null;uniqueIndex"`
	SenderID        uuid.UUID            `gorm:"column:sender_id;type:uuid;not null"`
	SendToken       string               `gorm:"column:send_token;not null;uniqueIndex"`
	Status          enums.TransferStatus `gorm:"column:status;type:text;not null"`
	ReceiverID      *uuid.UUID           `gorm:"column:receiver_id;type:uuid"`
	ReceivedAt      *time.Time           `gorm:"column:received_at"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (g *GiftTransfer) BeforeCreate(*gorm.DB) error {
	ensureID(&g.ID)
	return nil
}
