package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/giftdrop-backend/internal/repo"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
)

// Repository exposes user persistence operations.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx scopes the repository to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

// Upsert inserts the account or refreshes its profile fields, keyed by telegram id.
// Counters and rank are never touched.
func (r *Repository) Upsert(ctx context.Context, user *models.User) (*models.User, error) {
	user.UpdatedAt = time.Now().UTC()
	err := r.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "first_name", "last_name", "language_code", "is_premium", "photo_url", "updated_at",
		}),
	}).Create(user).Error
	if err != nil {
		return nil, err
	}
	return r.FindByTelegramID(ctx, user.TelegramID)
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// IncrementGiftsReceived bumps the received counter of the claimant.
func (r *Repository) IncrementGiftsReceived(ctx context.Context, id uuid.UUID) error {
	res := r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("gifts_received", gorm.Expr("gifts_received + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

const recomputeRanksSQL = `
UPDATE users SET "rank" = ranked.position
FROM (
	SELECT id, ROW_NUMBER() OVER (ORDER BY gifts_received DESC, created_at ASC) AS position
	FROM users
) AS ranked
WHERE users.id = ranked.id`

// RecomputeRanks renumbers every user by gifts received, oldest account first on ties.
func (r *Repository) RecomputeRanks(ctx context.Context) (int64, error) {
	res := r.DB(ctx).Exec(recomputeRanksSQL)
	return res.RowsAffected, res.Error
}

// Leaderboard lists users in rank order.
func (r *Repository) Leaderboard(ctx context.Context, limit, offset int) ([]models.User, error) {
	var rows []models.User
	err := r.DB(ctx).
		Order("gifts_received DESC").
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	return rows, err
}
