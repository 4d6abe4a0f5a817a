package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/giftdrop-backend/api/middleware"
	"github.com/angelmondragon/giftdrop-backend/api/responses"
	"github.com/angelmondragon/giftdrop-backend/api/validators"
	"github.com/angelmondragon/giftdrop-backend/internal/activities"
	"github.com/angelmondragon/giftdrop-backend/internal/gifts"
	"github.com/angelmondragon/giftdrop-backend/internal/invoices"
	"github.com/angelmondragon/giftdrop-backend/internal/ownership"
	"github.com/angelmondragon/giftdrop-backend/internal/transfers"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
	"github.com/angelmondragon/giftdrop-backend/pkg/pagination"
)

// sendStartPrefix prefixes the claim token in the mini-app start parameter.
const sendStartPrefix = "gift_"

type GiftCatalog interface {
	Store(ctx context.Context) ([]gifts.GiftDTO, error)
}

type GiftBuyer interface {
	Buy(ctx context.Context, userID, giftID uuid.UUID) (*gifts.BuyResult, error)
}

type InvoiceReader interface {
	Get(ctx context.Context, userID, invoiceID uuid.UUID) (*invoices.View, error)
}

type AvailableGiftLister interface {
	Available(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*ownership.Page, error)
}

type TransferService interface {
	Issue(ctx context.Context, ownerID, purchasedGiftID uuid.UUID) (string, error)
	Claim(ctx context.Context, claimantID uuid.UUID, token string) (*transfers.ClaimResult, error)
}

type GiftActivityLister interface {
	ListForGift(ctx context.Context, giftID uuid.UUID, params pagination.Params) (*activities.Page, error)
}

type shareLinker interface {
	MiniAppURL(startParam string) string
}

type buyRequest struct {
	GiftID string `json:"giftId" validate:"required,uuid"`
}

type sendRequest struct {
	PurchasedGiftID string `json:"purchasedGiftId" validate:"required,uuid"`
}

type receiveRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

type sendResponse struct {
	SendToken string `json:"sendToken"`
	ShareURL  string `json:"shareUrl,omitempty"`
}

// GiftStore lists the gifts still on sale.
func GiftStore(svc GiftCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.Store(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// GiftBuy reserves a unit and opens the payment invoice.
func GiftBuy(svc GiftBuyer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r, logg)
		if !ok {
			return
		}
		var body buyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Buy(r.Context(), userID, uuid.MustParse(body.GiftID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func InvoiceStatus(svc InvoiceReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r, logg)
		if !ok {
			return
		}
		invoiceID, err := validators.ParseUUIDParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), userID, invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// MyGifts lists the caller's gifts that can still be sent.
func MyGifts(svc AvailableGiftLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r, logg)
		if !ok {
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.Available(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// GiftSend issues the claim token for one of the caller's gifts.
func GiftSend(svc TransferService, links shareLinker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r, logg)
		if !ok {
			return
		}
		var body sendRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		token, err := svc.Issue(r.Context(), userID, uuid.MustParse(body.PurchasedGiftID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := sendResponse{SendToken: token}
		if links != nil {
			out.ShareURL = links.MiniAppURL(sendStartPrefix + token)
		}
		responses.WriteSuccess(w, out)
	}
}

// GiftReceive claims a gift by token. A leading start prefix is accepted.
func GiftReceive(svc TransferService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r, logg)
		if !ok {
			return
		}
		var body receiveRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		token := strings.TrimPrefix(strings.TrimSpace(body.Token), sendStartPrefix)
		result, err := svc.Claim(r.Context(), userID, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func GiftActions(svc GiftActivityLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		giftID, err := validators.ParseUUIDParam(r, "giftId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListForGift(r.Context(), giftID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func callerID(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, false
	}
	return userID, true
}
