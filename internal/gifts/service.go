package gifts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftdrop-backend/internal/invoices"
	"github.com/angelmondragon/giftdrop-backend/pkg/cryptopay"
	"github.com/angelmondragon/giftdrop-backend/pkg/db"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
)

const (
	DefaultHardExpiry    = time.Hour
	DefaultGatewayExpiry = 30 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type invoiceCreator interface {
	CreateInvoice(ctx context.Context, params cryptopay.CreateInvoiceParams) (*cryptopay.Invoice, error)
}

type issueObserver interface {
	InvoiceIssued()
}

// ServiceParams wires the catalog service.
type ServiceParams struct {
	DB      txRunner
	Gifts   *Repository
	Ledger  *invoices.Repository
	Gateway invoiceCreator
	Logger  *logger.Logger
	Metrics issueObserver

	HardExpiry    time.Duration
	GatewayExpiry time.Duration
	Now           func() time.Time
}

type Service struct {
	db            txRunner
	gifts         *Repository
	ledger        *invoices.Repository
	gateway       invoiceCreator
	logg          *logger.Logger
	metrics       issueObserver
	hardExpiry    time.Duration
	gatewayExpiry time.Duration
	now           func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Gifts == nil {
		return nil, errors.New("gift repository required")
	}
	if params.Ledger == nil {
		return nil, errors.New("invoice ledger required")
	}
	if params.Gateway == nil {
		return nil, errors.New("payment gateway required")
	}
	svc := &Service{
		db:            params.DB,
		gifts:         params.Gifts,
		ledger:        params.Ledger,
		gateway:       params.Gateway,
		logg:          params.Logger,
		metrics:       params.Metrics,
		hardExpiry:    params.HardExpiry,
		gatewayExpiry: params.GatewayExpiry,
		now:           params.Now,
	}
	if svc.hardExpiry <= 0 {
		svc.hardExpiry = DefaultHardExpiry
	}
	if svc.gatewayExpiry <= 0 {
		svc.gatewayExpiry = DefaultGatewayExpiry
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc, nil
}

// Store lists the gifts that can currently be bought.
func (s *Service) Store(ctx context.Context) ([]GiftDTO, error) {
	rows, err := s.gifts.ListAvailable(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "list gifts")
	}
	out := make([]GiftDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, giftID uuid.UUID) (*GiftDTO, error) {
	gift, err := s.load(ctx, giftID)
	if err != nil {
		return nil, err
	}
	dto := FromModel(*gift)
	return &dto, nil
}

// Buy reserves one unit of the gift and opens a gateway invoice for it. The
// gateway is called before anything is written, so a gateway failure leaves
// the store untouched.
func (s *Service) Buy(ctx context.Context, userID, giftID uuid.UUID) (*BuyResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if giftID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gift id required")
	}

	gift, err := s.load(ctx, giftID)
	if err != nil {
		return nil, err
	}
	if !gift.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "gift is not available")
	}
	if gift.Remaining() == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "gift out of stock")
	}

	remote, err := s.gateway.CreateInvoice(ctx, cryptopay.CreateInvoiceParams{
		Amount:      gift.Price,
		Asset:       gift.Asset,
		ExpiresIn:   s.gatewayExpiry,
		Description: gift.Name,
		Payload:     gift.ID.String(),
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create gateway invoice")
	}

	now := s.now()
	invoice := models.Invoice{
		ExternalID:    remote.InvoiceID,
		Hash:          remote.Hash,
		PayURL:        remote.CheckoutURL(),
		UserID:        userID,
		GiftID:        gift.ID,
		Price:         gift.Price,
		Asset:         gift.Asset,
		Status:        enums.InvoiceStatusPending,
		LastCheckedAt: now,
		ExpiresAt:     now.Add(s.hardExpiry),
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		reserved, err := s.gifts.WithTx(tx).Reserve(ctx, gift.ID)
		if err != nil {
			return err
		}
		if !reserved {
			return pkgerrors.New(pkgerrors.CodeConflict, "gift out of stock")
		}
		return s.ledger.WithTx(tx).Create(ctx, &invoice)
	})
	if err != nil {
		s.warnOrphan(ctx, remote.InvoiceID, err)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "reserve gift")
	}

	if s.metrics != nil {
		s.metrics.InvoiceIssued()
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"invoice_id": invoice.ExternalID,
			"gift_id":    gift.ID.String(),
			"user_id":    userID.String(),
		})
		s.logg.Info(logCtx, "gift reserved")
	}

	return &BuyResult{
		InvoiceID:  invoice.ID,
		ExternalID: invoice.ExternalID,
		PayURL:     invoice.PayURL,
		ExpiresAt:  invoice.ExpiresAt,
	}, nil
}

// The gateway invoice outlives a failed reservation. It is never paid out
// because ConfirmPaid cannot find a local row for it.
func (s *Service) warnOrphan(ctx context.Context, externalID string, cause error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"invoice_id": externalID,
		"error":      cause.Error(),
	})
	s.logg.Warn(logCtx, "gateway invoice orphaned by failed reservation")
}

// Create adds a catalog entry.
func (s *Service) Create(ctx context.Context, input CreateGiftInput) (*GiftDTO, error) {
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug required")
	}
	if !input.Price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if !input.Asset.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported asset %q", input.Asset))
	}
	if input.TotalCount < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total count must be at least 1")
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}
	gift := models.Gift{
		Slug:        slug,
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Price:       input.Price,
		Asset:       input.Asset,
		TotalCount:  input.TotalCount,
		IsActive:    active,
		BgVariant:   input.BgVariant,
	}
	if err := s.gifts.Create(ctx, &gift); err != nil {
		if db.IsUniqueViolation(err, "slug") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "gift slug already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "create gift")
	}
	dto := FromModel(gift)
	return &dto, nil
}

// Update patches a catalog entry. Shrinking total below the reserved count is rejected.
func (s *Service) Update(ctx context.Context, giftID uuid.UUID, input UpdateGiftInput) (*GiftDTO, error) {
	var out GiftDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.gifts.WithTx(tx)
		gift, err := repo.FindForUpdate(ctx, giftID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "gift not found")
			}
			return err
		}
		if input.Name != nil {
			gift.Name = strings.TrimSpace(*input.Name)
		}
		if input.Description != nil {
			gift.Description = *input.Description
		}
		if input.Price != nil {
			if !input.Price.IsPositive() {
				return pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
			}
			gift.Price = *input.Price
		}
		if input.Asset != nil {
			if !input.Asset.IsValid() {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported asset %q", *input.Asset))
			}
			gift.Asset = *input.Asset
		}
		if input.TotalCount != nil {
			if *input.TotalCount < gift.BoughtCount {
				return pkgerrors.New(pkgerrors.CodeConflict, "total count below units already reserved")
			}
			gift.TotalCount = *input.TotalCount
		}
		if input.IsActive != nil {
			gift.IsActive = *input.IsActive
		}
		if input.BgVariant != nil {
			gift.BgVariant = *input.BgVariant
		}
		saved, err := repo.UpdateCatalog(ctx, gift)
		if err != nil {
			return err
		}
		if !saved {
			return pkgerrors.New(pkgerrors.CodeConflict, "total count below units already reserved")
		}
		fresh, err := repo.FindByID(ctx, giftID)
		if err != nil {
			return err
		}
		out = FromModel(*fresh)
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "update gift")
	}
	return &out, nil
}

func (s *Service) load(ctx context.Context, giftID uuid.UUID) (*models.Gift, error) {
	gift, err := s.gifts.FindByID(ctx, giftID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gift not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "load gift")
	}
	return gift, nil
}
