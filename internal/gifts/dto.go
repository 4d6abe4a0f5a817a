package gifts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
)

// GiftDTO is the storefront representation of a catalog entry.
type GiftDTO struct {
	ID          uuid.UUID       `json:"id"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Asset       enums.Asset     `json:"asset"`
	TotalCount  int             `json:"totalCount"`
	BoughtCount int             `json:"boughtCount"`
	Remaining   int             `json:"remaining"`
	IsActive    bool            `json:"isActive"`
	BgVariant   string          `json:"bgVariant,omitempty"`
}

func FromModel(m models.Gift) GiftDTO {
	return GiftDTO{
		ID:          m.ID,
		Slug:        m.Slug,
		Name:        m.Name,
		Description: m.Description,
		Price:       m.Price,
		Asset:       m.Asset,
		TotalCount:  m.TotalCount,
		BoughtCount: m.BoughtCount,
		Remaining:   m.Remaining(),
		IsActive:    m.IsActive,
		BgVariant:   m.BgVariant,
	}
}

// CreateGiftInput is the admin payload for a new catalog entry.
type CreateGiftInput struct {
	Slug        string          `json:"slug" validate:"required,min=2,max=64"`
	Name        string          `json:"name" validate:"required,max=120"`
	Description string          `json:"description" validate:"max=2000"`
	Price       decimal.Decimal `json:"price" validate:"gt=0"`
	Asset       enums.Asset     `json:"asset" validate:"required,asset"`
	TotalCount  int             `json:"totalCount" validate:"gte=1"`
	IsActive    *bool           `json:"isActive"`
	BgVariant   string          `json:"bgVariant" validate:"max=64"`
}

// UpdateGiftInput patches an existing entry. Nil fields are left unchanged.
type UpdateGiftInput struct {
	Name        *string          `json:"name" validate:"omitempty,max=120"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gt=0"`
	Asset       *enums.Asset     `json:"asset" validate:"omitempty,asset"`
	TotalCount  *int             `json:"totalCount" validate:"omitempty,gte=1"`
	IsActive    *bool            `json:"isActive"`
	BgVariant   *string          `json:"bgVariant" validate:"omitempty,max=64"`
}

// BuyResult is returned to the buyer once an invoice is open.
type BuyResult struct {
	InvoiceID  uuid.UUID `json:"invoiceId"`
	ExternalID string    `json:"externalId"`
	PayURL     string    `json:"payUrl"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
