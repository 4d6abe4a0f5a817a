package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
)

// Gift is a limited-edition catalog entry. BoughtCount counts reservations,
// paid or still pending, and never exceeds TotalCount.
type Gift struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Slug        string          `gorm:"column:slug;not null;uniqueIndex"`
	Name        string          `gorm:"column:name;not null"`
	Description string          `gorm:"column:description;not null;default:''"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(20,8);not null"`
	Asset       enums.Asset     `gorm:"column:asset;type:text;not null"`
	TotalCount  int             `gorm:"column:total_count;not null"`
	BoughtCount int             `gorm:"column:bought_count;not null;default:0"`
	IsActive    bool            `gorm:"column:is_active;not null"`
	BgVariant   string          `gorm:"column:bg_variant;not null;default:''"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (g *Gift) BeforeCreate(*gorm.DB) error {
	ensureID(&g.ID)
	return nil
}

// Remaining reports how many units can still be reserved.
func (g Gift) Remaining() int {
	if g.BoughtCount >= g.TotalCount {
		return 0
	}
	return g.TotalCount - g.BoughtCount
}
