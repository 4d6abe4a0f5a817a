package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/giftdrop-backend/api/responses"
	"github.com/angelmondragon/giftdrop-backend/pkg/cryptopay"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

type CryptoPayWebhookService interface {
	HandleUpdate(ctx context.Context, update *cryptopay.Update) error
}

type cryptoPayWebhookGuard interface {
	CheckAndMark(ctx context.Context, updateID string) (bool, error)
	Forget(ctx context.Context, updateID string) error
}

type signatureVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

// CryptoPayWebhookParams configures the gateway push endpoint. Verifier may be
// nil when signature checks are disabled.
type CryptoPayWebhookParams struct {
	Service  CryptoPayWebhookService
	Guard    cryptoPayWebhookGuard
	Verifier signatureVerifier
	Secret   string
	Logger   *logger.Logger
}

// CryptoPayWebhook handles Crypto Pay update deliveries on the secret path.
func CryptoPayWebhook(params CryptoPayWebhookParams) http.HandlerFunc {
	logg := params.Logger
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		secret := chi.URLParam(r, "secret")
		if params.Secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(params.Secret)) != 1 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "not found"))
			return
		}
		if params.Service == nil || params.Guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if params.Verifier != nil && !params.Verifier.VerifySignature(payload, r.Header.Get(cryptopay.SignatureHeader)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature"))
			return
		}

		// Bodies that cannot be applied are acknowledged so the gateway stops
		// redelivering them.
		var update cryptopay.Update
		if err := json.Unmarshal(payload, &update); err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "crypto pay update ignored, undecodable body")
			}
			responses.WriteSuccess(w, nil)
			return
		}

		if update.UpdateID == "" {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "update_type", update.UpdateType), "crypto pay update without update_id")
			}
			if err := params.Service.HandleUpdate(ctx, &update); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, nil)
			return
		}

		alreadyProcessed, err := params.Guard.CheckAndMark(ctx, update.UpdateID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := params.Service.HandleUpdate(ctx, &update); err != nil {
			_ = params.Guard.Forget(ctx, update.UpdateID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "update_id", update.UpdateID), "crypto pay update processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
