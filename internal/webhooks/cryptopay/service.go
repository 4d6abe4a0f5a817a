// Package cryptopaywebhook applies gateway push updates to the invoice ledger.
package cryptopaywebhook

import (
	"context"

	"github.com/angelmondragon/giftdrop-backend/internal/payments"
	"github.com/angelmondragon/giftdrop-backend/pkg/cryptopay"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
)

// ConsumerName scopes the update ids remembered for redelivered webhooks.
const ConsumerName = "cryptopay-webhook"

type paymentConfirmer interface {
	ConfirmPaid(ctx context.Context, externalID string, trigger payments.Trigger) (payments.Result, error)
}

type Service struct {
	payments paymentConfirmer
	logg     *logger.Logger
}

func NewService(confirmer paymentConfirmer, logg *logger.Logger) (*Service, error) {
	if confirmer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment service required")
	}
	return &Service{payments: confirmer, logg: logg}, nil
}

// HandleUpdate confirms invoice_paid updates. Other update types, unusable
// payloads and invoices this shop never issued are acknowledged without effect.
func (s *Service) HandleUpdate(ctx context.Context, update *cryptopay.Update) error {
	if update == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "update required")
	}
	ctx = s.withField(ctx, "update_id", update.UpdateID)
	if update.UpdateType != cryptopay.UpdateInvoicePaid {
		s.debug(ctx, "ignoring "+update.UpdateType+" update")
		return nil
	}

	invoice, err := update.PaidInvoice()
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "ignoring invoice_paid update with unusable payload")
		}
		return nil
	}
	ctx = s.withField(ctx, "invoice_id", invoice.InvoiceID)

	result, err := s.payments.ConfirmPaid(ctx, invoice.InvoiceID, payments.TriggerWebhook)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			if s.logg != nil {
				s.logg.Warn(ctx, "paid update for unknown invoice")
			}
			return nil
		}
		return err
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"applied": result.Applied,
			"status":  result.Status,
		})
		s.logg.Info(ctx, "invoice_paid update processed")
	}
	return nil
}

func (s *Service) withField(ctx context.Context, key string, value any) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithField(ctx, key, value)
}

func (s *Service) debug(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Debug(ctx, msg)
	}
}
