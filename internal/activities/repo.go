package activities

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftdrop-backend/internal/repo"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/pagination"
)

// Repository appends to and reads the activity log. Rows are never updated.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

func (r *Repository) Append(ctx context.Context, activity *models.Activity) error {
	return r.DB(ctx).Create(activity).Error
}

// ListForGift returns the newest activity of a catalog gift first, starting after cursor.
func (r *Repository) ListForGift(ctx context.Context, giftID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Activity, error) {
	q := r.DB(ctx).Where("gift_id = ?", giftID)
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.At, cursor.At, cursor.ID)
	}
	var rows []models.Activity
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// ListForUser returns activity where the user acted or was the recipient, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Activity, error) {
	q := r.DB(ctx).Where("actor_id = ? OR target_id = ?", userID, userID)
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.At, cursor.At, cursor.ID)
	}
	var rows []models.Activity
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
