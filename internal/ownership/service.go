package ownership

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/giftdrop-backend/internal/gifts"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
	"github.com/angelmondragon/giftdrop-backend/pkg/pagination"
)

// OwnedGift is a purchased gift with its catalog entry.
type OwnedGift struct {
	ID       uuid.UUID                 `json:"id"`
	Status   enums.PurchasedGiftStatus `json:"status"`
	BuyerID  uuid.UUID                 `json:"buyerId"`
	OwnerID  uuid.UUID                 `json:"ownerId"`
	BoughtAt time.Time                 `json:"boughtAt"`
	Gift     *gifts.GiftDTO            `json:"gift,omitempty"`
}

type Page struct {
	Items      []OwnedGift `json:"items"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Available lists the gifts the user can still send.
func (s *Service) Available(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*Page, error) {
	status := enums.PurchasedGiftStatusAvailable
	return s.list(ctx, ownerID, &status, params)
}

// Owned lists every gift the user currently holds, bought or received.
func (s *Service) Owned(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*Page, error) {
	return s.list(ctx, ownerID, nil, params)
}

func (s *Service) list(ctx context.Context, ownerID uuid.UUID, status *enums.PurchasedGiftStatus, params pagination.Params) (*Page, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListOwned(ctx, ownerID, status, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "list owned gifts")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(p models.PurchasedGift) pagination.Cursor {
		return pagination.Cursor{At: p.BoughtAt, ID: p.ID}
	})
	page := &Page{Items: make([]OwnedGift, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		page.Items = append(page.Items, fromModel(row))
	}
	return page, nil
}

func fromModel(m models.PurchasedGift) OwnedGift {
	out := OwnedGift{
		ID:       m.ID,
		Status:   m.Status,
		BuyerID:  m.BuyerID,
		OwnerID:  m.OwnerID,
		BoughtAt: m.BoughtAt,
	}
	if m.Gift != nil {
		dto := gifts.FromModel(*m.Gift)
		out.Gift = &dto
	}
	return out
}

// Materialize builds the purchased gift created for a paid invoice.
func Materialize(invoice models.Invoice, at time.Time) *models.PurchasedGift {
	return &models.PurchasedGift{
		GiftID:   invoice.GiftID,
		OwnerID:  invoice.UserID,
		BuyerID:  invoice.UserID,
		Status:   enums.PurchasedGiftStatusAvailable,
		BoughtAt: at,
	}
}
