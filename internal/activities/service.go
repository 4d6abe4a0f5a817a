package activities

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
	"github.com/angelmondragon/giftdrop-backend/pkg/pagination"
)

// Entry is the API view of one activity row.
type Entry struct {
	ID                uuid.UUID          `json:"id"`
	Type              enums.ActivityType `json:"type"`
	ActorID           uuid.UUID          `json:"actorId"`
	TargetID          *uuid.UUID         `json:"targetId,omitempty"`
	PurchasedGiftID   uuid.UUID          `json:"purchasedGiftId"`
	InvoiceExternalID *string            `json:"invoiceId,omitempty"`
	Price             *decimal.Decimal   `json:"price,omitempty"`
	Asset             *enums.Asset       `json:"asset,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
}

type Page struct {
	Items      []Entry `json:"items"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListForGift(ctx context.Context, giftID uuid.UUID, params pagination.Params) (*Page, error) {
	if giftID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gift id required")
	}
	return s.list(ctx, params, func(cursor *pagination.Cursor, limit int) ([]models.Activity, error) {
		return s.repo.ListForGift(ctx, giftID, cursor, limit)
	})
}

// ListForUser returns the recent actions a profile took part in.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*Page, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return s.list(ctx, params, func(cursor *pagination.Cursor, limit int) ([]models.Activity, error) {
		return s.repo.ListForUser(ctx, userID, cursor, limit)
	})
}

func (s *Service) list(ctx context.Context, params pagination.Params, fetch func(*pagination.Cursor, int) ([]models.Activity, error)) (*Page, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := fetch(cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "list activity")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(a models.Activity) pagination.Cursor {
		return pagination.Cursor{At: a.CreatedAt, ID: a.ID}
	})
	page := &Page{Items: make([]Entry, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		page.Items = append(page.Items, entryFromModel(row))
	}
	return page, nil
}

func entryFromModel(m models.Activity) Entry {
	e := Entry{
		ID:                m.ID,
		Type:              m.Type,
		ActorID:           m.ActorID,
		TargetID:          m.TargetID,
		PurchasedGiftID:   m.PurchasedGiftID,
		InvoiceExternalID: m.InvoiceExternalID,
		Asset:             m.Asset,
		CreatedAt:         m.CreatedAt,
	}
	if m.Price.Valid {
		price := m.Price.Decimal
		e.Price = &price
	}
	return e
}

// Purchase builds the activity recorded when an invoice is paid.
func Purchase(invoice models.Invoice, purchasedGiftID uuid.UUID, at time.Time) *models.Activity {
	externalID := invoice.ExternalID
	asset := invoice.Asset
	return &models.Activity{
		Type:              enums.ActivityTypeGiftPurchased,
		ActorID:           invoice.UserID,
		GiftID:            invoice.GiftID,
		PurchasedGiftID:   purchasedGiftID,
		InvoiceExternalID: &externalID,
		Price:             decimal.NewNullDecimal(invoice.Price),
		Asset:             &asset,
		CreatedAt:         at,
	}
}

// Sent builds the activity recorded when a transfer is claimed.
func Sent(senderID, receiverID, giftID, purchasedGiftID uuid.UUID, at time.Time) *models.Activity {
	target := receiverID
	return &models.Activity{
		Type:            enums.ActivityTypeGiftSent,
		ActorID:         senderID,
		TargetID:        &target,
		GiftID:          giftID,
		PurchasedGiftID: purchasedGiftID,
		CreatedAt:       at,
	}
}
