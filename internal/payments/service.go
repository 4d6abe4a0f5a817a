package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftdrop-backend/internal/activities"
	"github.com/angelmondragon/giftdrop-backend/internal/gifts"
	"github.com/angelmondragon/giftdrop-backend/internal/invoices"
	"github.com/angelmondragon/giftdrop-backend/internal/ownership"
	"github.com/angelmondragon/giftdrop-backend/internal/users"
	"github.com/angelmondragon/giftdrop-backend/pkg/db"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
	"github.com/angelmondragon/giftdrop-backend/pkg/outbox"
	"github.com/angelmondragon/giftdrop-backend/pkg/outbox/payloads"
)

// Trigger names the channel that observed the gateway state.
type Trigger string

const (
	TriggerWebhook     Trigger = "webhook"
	TriggerReconcile   Trigger = "reconcile"
	TriggerLocalExpiry Trigger = "local_expiry"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type outcomeObserver interface {
	PaymentConfirmed(trigger string)
	InvoiceExpired(trigger string)
}

// Repositories groups the stores touched by a confirmation or an expiry.
type Repositories struct {
	Invoices   *invoices.Repository
	Gifts      *gifts.Repository
	Ownership  *ownership.Repository
	Activities *activities.Repository
	Users      *users.Repository
}

func (r Repositories) validate() error {
	switch {
	case r.Invoices == nil:
		return errors.New("invoice repository required")
	case r.Gifts == nil:
		return errors.New("gift repository required")
	case r.Ownership == nil:
		return errors.New("ownership repository required")
	case r.Activities == nil:
		return errors.New("activity repository required")
	case r.Users == nil:
		return errors.New("user repository required")
	}
	return nil
}

// Result reports whether the call moved the invoice out of pending. A false
// Applied with a nil error means another caller got there first.
type Result struct {
	Applied         bool
	InvoiceID       uuid.UUID
	Status          enums.InvoiceStatus
	PurchasedGiftID uuid.UUID
	// Released is set by Expire when a reserved unit went back to the catalog.
	Released bool
}

// Service is the only writer of the paid and expired invoice states.
type Service struct {
	db      txRunner
	repos   Repositories
	outbox  outboxEmitter
	metrics outcomeObserver
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(tx txRunner, repos Repositories, emitter outboxEmitter, metrics outcomeObserver, logg *logger.Logger) (*Service, error) {
	if tx == nil {
		return nil, errors.New("tx runner required")
	}
	if err := repos.validate(); err != nil {
		return nil, err
	}
	if emitter == nil {
		return nil, errors.New("outbox emitter required")
	}
	return &Service{
		db:      tx,
		repos:   repos,
		outbox:  emitter,
		metrics: metrics,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// ConfirmPaid applies a paid observation. The invoice, purchased gift,
// activity and outbox event are written together or not at all, and only the
// first caller for an invoice writes anything.
func (s *Service) ConfirmPaid(ctx context.Context, externalID string, trigger Trigger) (Result, error) {
	if externalID == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}

	var result Result
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		invoice, err := s.loadInvoice(ctx, tx, externalID)
		if err != nil {
			return err
		}
		result = Result{InvoiceID: invoice.ID, Status: invoice.Status}

		now := s.now()
		changed, err := s.repos.Invoices.WithTx(tx).MarkPaid(ctx, invoice.ID, now)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		purchased := ownership.Materialize(*invoice, now)
		if err := s.repos.Ownership.WithTx(tx).Create(ctx, purchased); err != nil {
			return err
		}
		if err := s.repos.Activities.WithTx(tx).Append(ctx, activities.Purchase(*invoice, purchased.ID, now)); err != nil {
			return err
		}
		if err := s.emitPurchased(ctx, tx, invoice, purchased); err != nil {
			return err
		}

		result.Applied = true
		result.Status = enums.InvoiceStatusPaid
		result.PurchasedGiftID = purchased.ID
		return nil
	})
	if err != nil {
		return Result{}, wrapStoreError(err, "confirm payment")
	}

	if result.Applied {
		if s.metrics != nil {
			s.metrics.PaymentConfirmed(string(trigger))
		}
		s.logOutcome(ctx, externalID, trigger, "invoice paid")
	}
	return result, nil
}

// Expire applies an expired observation and hands the reserved unit back to
// the catalog. Repeated calls release the unit at most once.
func (s *Service) Expire(ctx context.Context, externalID string, trigger Trigger) (Result, error) {
	if externalID == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}

	var result Result
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		invoice, err := s.loadInvoice(ctx, tx, externalID)
		if err != nil {
			return err
		}
		result = Result{InvoiceID: invoice.ID, Status: invoice.Status}

		changed, err := s.repos.Invoices.WithTx(tx).MarkExpired(ctx, invoice.ID, s.now())
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		released, err := s.repos.Gifts.WithTx(tx).Release(ctx, invoice.GiftID)
		if err != nil {
			return err
		}
		result.Released = released
		result.Applied = true
		result.Status = enums.InvoiceStatusExpired
		return nil
	})
	if err != nil {
		return Result{}, wrapStoreError(err, "expire invoice")
	}

	if result.Applied {
		if s.metrics != nil {
			s.metrics.InvoiceExpired(string(trigger))
		}
		if !result.Released && s.logg != nil {
			// The expiry stands; a counter already at zero means it drifted.
			s.logg.Warn(s.logg.WithInvoiceID(ctx, externalID), "invoice expired but gift had no reserved unit to release")
		}
		s.logOutcome(ctx, externalID, trigger, "invoice expired")
	}
	return result, nil
}

func (s *Service) loadInvoice(ctx context.Context, tx *gorm.DB, externalID string) (*models.Invoice, error) {
	invoice, err := s.repos.Invoices.WithTx(tx).FindByExternalID(ctx, externalID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, err
	}
	return invoice, nil
}

func (s *Service) emitPurchased(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, purchased *models.PurchasedGift) error {
	event := payloads.GiftPurchasedEvent{
		InvoiceID:       invoice.ExternalID,
		PurchasedGiftID: purchased.ID,
		GiftID:          invoice.GiftID,
		BuyerID:         invoice.UserID,
	}
	gift, err := s.repos.Gifts.WithTx(tx).FindByID(ctx, invoice.GiftID)
	if err != nil {
		return err
	}
	event.GiftName = gift.Name

	buyer, err := s.repos.Users.WithTx(tx).FindByID(ctx, invoice.UserID)
	switch {
	case err == nil:
		event.BuyerTelegramID = buyer.TelegramID
	case !db.IsNotFound(err):
		return err
	}

	actor := &outbox.ActorRef{UserID: invoice.UserID, TelegramID: event.BuyerTelegramID}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventGiftPurchased,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoice.ID,
		Actor:         actor,
		Data:          event,
	})
}

func (s *Service) logOutcome(ctx context.Context, externalID string, trigger Trigger, msg string) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithInvoiceID(ctx, externalID)
	logCtx = s.logg.WithField(logCtx, "trigger", string(trigger))
	s.logg.Info(logCtx, msg)
}

// Typed errors raised inside the transaction pass through. Anything else is a
// store failure that rolled the transaction back.
func wrapStoreError(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeTransaction, err, msg)
}
