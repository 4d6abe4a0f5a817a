package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/giftdrop-backend/api/responses"
	"github.com/angelmondragon/giftdrop-backend/api/validators"
	"github.com/angelmondragon/giftdrop-backend/internal/activities"
	"github.com/angelmondragon/giftdrop-backend/internal/ownership"
	"github.com/angelmondragon/giftdrop-backend/internal/users"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
	"github.com/angelmondragon/giftdrop-backend/pkg/pagination"
)

type ProfileReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	Leaderboard(ctx context.Context, limit, offset int) ([]users.Profile, error)
}

type OwnedGiftLister interface {
	Owned(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*ownership.Page, error)
}

type UserActivityLister interface {
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*activities.Page, error)
}

func ProfileMe(svc ProfileReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r, logg)
		if !ok {
			return
		}
		user, err := svc.GetByID(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, users.ProfileFromModel(*user))
	}
}

func ProfileByTelegramID(svc ProfileReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := profileFromParam(w, r, svc, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, users.ProfileFromModel(*user))
	}
}

// ProfileGifts lists every gift the profile currently holds.
func ProfileGifts(svc ProfileReader, owned OwnedGiftLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := profileFromParam(w, r, svc, logg)
		if !ok {
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := owned.Owned(r.Context(), user.ID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func ProfileActions(svc ProfileReader, feed UserActivityLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := profileFromParam(w, r, svc, logg)
		if !ok {
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := feed.ListForUser(r.Context(), user.ID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Leaderboard pages through profiles by rank using limit/offset.
func Leaderboard(svc ProfileReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.Leaderboard(r.Context(), limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func profileFromParam(w http.ResponseWriter, r *http.Request, svc ProfileReader, logg *logger.Logger) (*models.User, bool) {
	telegramID, err := validators.ParseInt64Param(r, "telegramId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	user, err := svc.GetByTelegramID(r.Context(), telegramID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	return user, true
}
