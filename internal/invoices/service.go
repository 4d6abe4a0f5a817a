package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/giftdrop-backend/pkg/db"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
)

// View is what a buyer sees while polling an invoice.
type View struct {
	ID         uuid.UUID           `json:"invoiceId"`
	ExternalID string              `json:"externalId"`
	GiftID     uuid.UUID           `json:"giftId"`
	Status     enums.InvoiceStatus `json:"status"`
	Price      decimal.Decimal     `json:"price"`
	Asset      enums.Asset         `json:"asset"`
	PayURL     string              `json:"payUrl"`
	ExpiresAt  time.Time           `json:"expiresAt"`
	PaidAt     *time.Time          `json:"paidAt,omitempty"`
}

func ViewFromModel(m models.Invoice) View {
	return View{
		ID:         m.ID,
		ExternalID: m.ExternalID,
		GiftID:     m.GiftID,
		Status:     m.Status,
		Price:      m.Price,
		Asset:      m.Asset,
		PayURL:     m.PayURL,
		ExpiresAt:  m.ExpiresAt,
		PaidAt:     m.PaidAt,
	}
}

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the caller's invoice. Invoices of other users are reported as missing.
func (s *Service) Get(ctx context.Context, userID, invoiceID uuid.UUID) (*View, error) {
	if invoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	invoice, err := s.repo.FindForUser(ctx, invoiceID, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "load invoice")
	}
	view := ViewFromModel(*invoice)
	return &view, nil
}
