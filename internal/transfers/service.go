package transfers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftdrop-backend/internal/activities"
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

const (
	tokenBytes      = 6
	maxTokenRetries = 3
)

var (
	errTransferUnavailable = pkgerrors.New(pkgerrors.CodeNotFound, "transfer not found or already received")
	errSelfClaim           = pkgerrors.New(pkgerrors.CodeConflict, "cannot receive your own gift")
)

// TokenGenerator produces claim tokens.
type TokenGenerator func() (string, error)

// RandomToken returns 12 hex characters from a CSPRNG.
func RandomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type claimObserver interface {
	TransferClaimed()
}

type ServiceParams struct {
	DB         txRunner
	Transfers  *Repository
	Ownership  *ownership.Repository
	Activities *activities.Repository
	Users      *users.Repository
	Outbox     outboxEmitter
	Tokens     TokenGenerator
	Metrics    claimObserver
	Logger     *logger.Logger
}

type Service struct {
	db         txRunner
	transfers  *Repository
	ownership  *ownership.Repository
	activities *activities.Repository
	users      *users.Repository
	outbox     outboxEmitter
	tokens     TokenGenerator
	metrics    claimObserver
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, errors.New("tx runner required")
	case params.Transfers == nil:
		return nil, errors.New("transfer repository required")
	case params.Ownership == nil:
		return nil, errors.New("ownership repository required")
	case params.Activities == nil:
		return nil, errors.New("activity repository required")
	case params.Users == nil:
		return nil, errors.New("user repository required")
	case params.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	}
	tokens := params.Tokens
	if tokens == nil {
		tokens = RandomToken
	}
	return &Service{
		db:         params.DB,
		transfers:  params.Transfers,
		ownership:  params.Ownership,
		activities: params.Activities,
		users:      params.Users,
		outbox:     params.Outbox,
		tokens:     tokens,
		metrics:    params.Metrics,
		logg:       params.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Issue returns the claim token of a purchased gift, creating the transfer on
// first use. Repeated calls for the same gift return the same token.
func (s *Service) Issue(ctx context.Context, ownerID, purchasedGiftID uuid.UUID) (string, error) {
	if ownerID == uuid.Nil || purchasedGiftID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "owner and purchased gift required")
	}
	if _, err := s.ownership.FindTransferable(ctx, purchasedGiftID, ownerID); err != nil {
		if db.IsNotFound(err) {
			return "", pkgerrors.New(pkgerrors.CodeNotFound, "gift not found")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "load purchased gift")
	}

	if existing, err := s.existingToken(ctx, purchasedGiftID); err != nil || existing != "" {
		return existing, err
	}

	for attempt := 0; attempt < maxTokenRetries; attempt++ {
		token, err := s.tokens()
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate token")
		}
		transfer := models.GiftTransfer{
			PurchasedGiftID: purchasedGiftID,
			SenderID:        ownerID,
			SendToken:       token,
			Status:          enums.TransferStatusPending,
		}
		err = s.transfers.Create(ctx, &transfer)
		switch {
		case err == nil:
			return token, nil
		case db.IsUniqueViolation(err, "purchased_gift_id"):
			return s.existingToken(ctx, purchasedGiftID)
		case db.IsUniqueViolation(err, "send_token"):
			continue
		default:
			return "", pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "create transfer")
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a unique token")
}

func (s *Service) existingToken(ctx context.Context, purchasedGiftID uuid.UUID) (string, error) {
	existing, err := s.transfers.FindByPurchasedGift(ctx, purchasedGiftID)
	if err != nil {
		if db.IsNotFound(err) {
			return "", nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "load transfer")
	}
	return existing.SendToken, nil
}

// ClaimResult describes a completed handoff.
type ClaimResult struct {
	TransferID      uuid.UUID `json:"transferId"`
	PurchasedGiftID uuid.UUID `json:"purchasedGiftId"`
	SenderID        uuid.UUID `json:"senderId"`
}

// Claim moves the gift behind token to claimantID. The ownership change,
// activity, counter and outbox event commit together.
func (s *Service) Claim(ctx context.Context, claimantID uuid.UUID, token string) (*ClaimResult, error) {
	if claimantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "claimant required")
	}
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token required")
	}

	transfer, err := s.transfers.FindByToken(ctx, token)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errTransferUnavailable
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "load transfer")
	}
	if transfer.Status == enums.TransferStatusReceived {
		return nil, errTransferUnavailable
	}
	if transfer.SenderID == claimantID {
		return nil, errSelfClaim
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now()
		consumed, err := s.transfers.WithTx(tx).MarkReceived(ctx, transfer.ID, claimantID, now)
		if err != nil {
			return err
		}
		if !consumed {
			return errTransferUnavailable
		}

		owned := s.ownership.WithTx(tx)
		moved, err := owned.Reassign(ctx, transfer.PurchasedGiftID, transfer.SenderID, claimantID)
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeConflict, "gift no longer held by sender")
		}
		purchased, err := owned.FindByID(ctx, transfer.PurchasedGiftID)
		if err != nil {
			return err
		}

		sent := activities.Sent(transfer.SenderID, claimantID, purchased.GiftID, purchased.ID, now)
		if err := s.activities.WithTx(tx).Append(ctx, sent); err != nil {
			return err
		}
		people := s.users.WithTx(tx)
		if err := people.IncrementGiftsReceived(ctx, claimantID); err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "claimant not found")
			}
			return err
		}
		return s.emitReceived(ctx, tx, people, transfer, purchased, claimantID)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "claim transfer")
	}

	if s.metrics != nil {
		s.metrics.TransferClaimed()
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"transfer_id":       transfer.ID.String(),
			"purchased_gift_id": transfer.PurchasedGiftID.String(),
			"receiver_id":       claimantID.String(),
		})
		s.logg.Info(logCtx, "gift transfer claimed")
	}
	return &ClaimResult{
		TransferID:      transfer.ID,
		PurchasedGiftID: transfer.PurchasedGiftID,
		SenderID:        transfer.SenderID,
	}, nil
}

func (s *Service) emitReceived(ctx context.Context, tx *gorm.DB, people *users.Repository, transfer *models.GiftTransfer, purchased *models.PurchasedGift, receiverID uuid.UUID) error {
	receiver, err := people.FindByID(ctx, receiverID)
	if err != nil {
		return err
	}
	event := payloads.GiftReceivedEvent{
		TransferID:          transfer.ID,
		PurchasedGiftID:     purchased.ID,
		SenderID:            transfer.SenderID,
		ReceiverID:          receiverID,
		ReceiverDisplayName: receiver.DisplayName(),
	}
	if purchased.Gift != nil {
		event.GiftName = purchased.Gift.Name
	}
	buyer, err := people.FindByID(ctx, purchased.BuyerID)
	switch {
	case err == nil:
		event.BuyerTelegramID = buyer.TelegramID
	case !db.IsNotFound(err):
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventGiftReceived,
		AggregateType: enums.AggregateGiftTransfer,
		AggregateID:   transfer.ID,
		Actor:         &outbox.ActorRef{UserID: receiverID, TelegramID: receiver.TelegramID},
		Data:          event,
	})
}
