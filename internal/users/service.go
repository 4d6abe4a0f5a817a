package users

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/giftdrop-backend/pkg/db"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
	"github.com/angelmondragon/giftdrop-backend/pkg/pagination"
	"github.com/angelmondragon/giftdrop-backend/pkg/telegram"
)

// Profile is the public view of an account.
type Profile struct {
	ID            uuid.UUID `json:"id"`
	TelegramID    int64     `json:"telegramId"`
	Username      *string   `json:"username,omitempty"`
	FirstName     string    `json:"firstName"`
	LastName      *string   `json:"lastName,omitempty"`
	IsPremium     bool      `json:"isPremium"`
	PhotoURL      *string   `json:"photoUrl,omitempty"`
	GiftsReceived int       `json:"giftsReceived"`
	Rank          int       `json:"rank"`
}

func ProfileFromModel(u models.User) Profile {
	return Profile{
		ID:            u.ID,
		TelegramID:    u.TelegramID,
		Username:      u.Username,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		IsPremium:     u.IsPremium,
		PhotoURL:      u.PhotoURL,
		GiftsReceived: u.GiftsReceived,
		Rank:          u.Rank,
	}
}

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Ensure upserts the account behind a verified mini-app identity.
func (s *Service) Ensure(ctx context.Context, tgUser telegram.WebAppUser) (*models.User, error) {
	if tgUser.ID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "telegram id required")
	}
	user := &models.User{
		TelegramID:   tgUser.ID,
		Username:     optional(tgUser.Username),
		FirstName:    tgUser.FirstName,
		LastName:     optional(tgUser.LastName),
		LanguageCode: optional(tgUser.LanguageCode),
		IsPremium:    tgUser.IsPremium,
		PhotoURL:     optional(tgUser.PhotoURL),
	}
	saved, err := s.repo.Upsert(ctx, user)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "save user")
	}
	return saved, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

func (s *Service) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	user, err := s.repo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

// Leaderboard returns one page of profiles in rank order.
func (s *Service) Leaderboard(ctx context.Context, limit, offset int) ([]Profile, error) {
	if offset < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offset must be non-negative")
	}
	rows, err := s.repo.Leaderboard(ctx, pagination.NormalizeLimit(limit), offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "load leaderboard")
	}
	out := make([]Profile, 0, len(rows))
	for _, row := range rows {
		out = append(out, ProfileFromModel(row))
	}
	return out, nil
}

func (s *Service) RecomputeRanks(ctx context.Context) error {
	if _, err := s.repo.RecomputeRanks(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "recompute ranks")
	}
	return nil
}

func translate(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeTransaction, err, "load user")
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
