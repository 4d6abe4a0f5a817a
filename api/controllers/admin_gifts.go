package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/giftdrop-backend/api/responses"
	"github.com/angelmondragon/giftdrop-backend/api/validators"
	"github.com/angelmondragon/giftdrop-backend/internal/gifts"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
)

const maxGiftNameLen = 120

type GiftAdmin interface {
	Create(ctx context.Context, input gifts.CreateGiftInput) (*gifts.GiftDTO, error)
	Update(ctx context.Context, giftID uuid.UUID, input gifts.UpdateGiftInput) (*gifts.GiftDTO, error)
}

func AdminCreateGift(svc GiftAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body gifts.CreateGiftInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body.Slug = validators.SanitizeString(body.Slug, 64)
		body.Name = validators.SanitizeString(body.Name, maxGiftNameLen)

		gift, err := svc.Create(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, gift)
	}
}

func AdminUpdateGift(svc GiftAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		giftID, err := validators.ParseUUIDParam(r, "giftId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body gifts.UpdateGiftInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.Name != nil {
			name := validators.SanitizeString(*body.Name, maxGiftNameLen)
			body.Name = &name
		}

		gift, err := svc.Update(r.Context(), giftID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, gift)
	}
}
